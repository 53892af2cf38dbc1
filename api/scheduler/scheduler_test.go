package scheduler_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/civicreport/civic-issue-api/api/scheduler"
	"github.com/civicreport/civic-issue-api/config"
	"github.com/civicreport/civic-issue-api/databases/mocks"
	"github.com/civicreport/civic-issue-api/storage"
)

func writeAgedFile(t *testing.T, dir, name string, age time.Duration) {
	t.Helper()
	path := filepath.Join(dir, name)
	assert.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0o644))
	stamp := time.Now().Add(-age)
	assert.NoError(t, os.Chtimes(path, stamp, stamp))
}

func TestSweepOrphanImages(t *testing.T) {
	store, err := storage.NewImageStore(&config.Config{UploadDir: t.TempDir()})
	assert.NoError(t, err)

	// referenced and orphaned files old enough to sweep, plus a fresh
	// orphan whose insert may still be in flight
	writeAgedFile(t, store.Dir, "referenced.jpg", 2*time.Hour)
	writeAgedFile(t, store.Dir, "orphan.jpg", 2*time.Hour)
	writeAgedFile(t, store.Dir, "fresh-orphan.jpg", time.Minute)

	idb := &mocks.IssueDatabase{}
	idb.On("CountDocuments", mock.Anything, bson.M{"image": "referenced.jpg"}).
		Return(int64(1), nil)
	idb.On("CountDocuments", mock.Anything, bson.M{"image": "orphan.jpg"}).
		Return(int64(0), nil)

	s := scheduler.New(idb, store)
	s.SweepOrphanImages()

	names, err := store.List()
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"referenced.jpg", "fresh-orphan.jpg"}, names)

	// the fresh file must not even be looked up
	idb.AssertNotCalled(t, "CountDocuments", mock.Anything, bson.M{"image": "fresh-orphan.jpg"})
}

func TestSweepOrphanImagesKeepsFileOnLookupError(t *testing.T) {
	store, err := storage.NewImageStore(&config.Config{UploadDir: t.TempDir()})
	assert.NoError(t, err)

	writeAgedFile(t, store.Dir, "unknown.jpg", 2*time.Hour)

	idb := &mocks.IssueDatabase{}
	idb.On("CountDocuments", mock.Anything, bson.M{"image": "unknown.jpg"}).
		Return(int64(0), assert.AnError)

	s := scheduler.New(idb, store)
	s.SweepOrphanImages()

	names, err := store.List()
	assert.NoError(t, err)
	assert.Equal(t, []string{"unknown.jpg"}, names)
}
