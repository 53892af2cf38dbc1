package scheduler

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/civicreport/civic-issue-api/databases"
	"github.com/civicreport/civic-issue-api/storage"
)

// files younger than this are left alone: their issue insert may still be
// in flight
const sweepMinAge = time.Hour

// Scheduler runs the periodic maintenance jobs
type Scheduler struct {
	cron   *cron.Cron
	IDB    databases.IssueDatabase
	Images *storage.ImageStore
}

// New creates a new scheduler instance
func New(idb databases.IssueDatabase, images *storage.ImageStore) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		IDB:    idb,
		Images: images,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// nightly orphan sweep at 03:00 UTC
	if _, err := s.cron.AddFunc("0 3 * * *", s.SweepOrphanImages); err != nil {
		zap.S().Errorw("failed to register orphan sweep job", "error", err)
		return
	}
	s.cron.Start()
	zap.S().Info("scheduler started")
}

// Stop halts the scheduler, letting running jobs finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// SweepOrphanImages deletes uploaded files that no issue references. The
// handlers already delete images together with their records; this job
// covers the crash window between those two steps.
func (s *Scheduler) SweepOrphanImages() {
	files, err := s.Images.List()
	if err != nil {
		zap.S().Errorw("orphan sweep failed to list images", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	removed := 0
	for _, name := range files {
		info, err := os.Stat(s.Images.Path(name))
		if err != nil || time.Since(info.ModTime()) < sweepMinAge {
			continue
		}

		count, err := s.IDB.CountDocuments(ctx, bson.M{"image": name})
		if err != nil {
			zap.S().Warnw("orphan sweep failed to check image reference",
				"image", name,
				"error", err,
			)
			continue
		}
		if count > 0 {
			continue
		}

		if err := s.Images.Remove(name); err != nil {
			zap.S().Warnw("orphan sweep failed to remove image",
				"image", name,
				"error", err,
			)
			continue
		}
		removed++
	}

	zap.S().Infow("orphan image sweep finished",
		"scanned", len(files),
		"removed", removed,
	)
}
