package storage

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/civicreport/civic-issue-api/config"
)

func newStore(t *testing.T) *ImageStore {
	t.Helper()
	store, err := NewImageStore(&config.Config{UploadDir: t.TempDir()})
	assert.NoError(t, err)
	return store
}

func uploadRequest(t *testing.T, filename string, content []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filename)
	assert.NoError(t, err)
	_, err = part.Write(content)
	assert.NoError(t, err)
	assert.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/issues", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	file, header, err := req.FormFile("image")
	assert.NoError(t, err)
	return file, header
}

func TestSaveStoresFileUnderFreshName(t *testing.T) {
	store := newStore(t)

	file, header := uploadRequest(t, "pothole.JPG", []byte("jpeg-bytes"))
	defer file.Close()

	filename, err := store.Save(file, header)

	assert.NoError(t, err)
	assert.NotEqual(t, "pothole.JPG", filename)
	assert.True(t, strings.HasSuffix(filename, ".jpg"))

	stored, err := os.ReadFile(store.Path(filename))
	assert.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), stored)
}

func TestSaveRejectsUnsupportedExtension(t *testing.T) {
	store := newStore(t)

	file, header := uploadRequest(t, "payload.exe", []byte("not-an-image"))
	defer file.Close()

	_, err := store.Save(file, header)

	assert.ErrorIs(t, err, ErrInvalidImage)

	entries, readErr := os.ReadDir(store.Dir)
	assert.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestSaveRejectsOversizedFile(t *testing.T) {
	store := newStore(t)

	file, header := uploadRequest(t, "huge.png", []byte("png-bytes"))
	defer file.Close()
	header.Size = MaxImageSize + 1

	_, err := store.Save(file, header)

	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestRemoveToleratesMissingFile(t *testing.T) {
	store := newStore(t)

	assert.NoError(t, store.Remove("does-not-exist.jpg"))
	assert.NoError(t, store.Remove(""))
}

func TestPathFlattensTraversal(t *testing.T) {
	store := newStore(t)

	got := store.Path("../../etc/passwd")

	assert.Equal(t, filepath.Join(store.Dir, "passwd"), got)
}

func TestListSkipsDirectories(t *testing.T) {
	store := newStore(t)

	assert.NoError(t, os.WriteFile(filepath.Join(store.Dir, "a.jpg"), []byte("x"), 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(store.Dir, "b.png"), []byte("y"), 0o644))
	assert.NoError(t, os.Mkdir(filepath.Join(store.Dir, "nested"), 0o755))

	names, err := store.List()

	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.jpg", "b.png"}, names)
}
