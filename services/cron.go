package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"rag-knowledge-platform/internal/logger"
)

// SyncScheduler runs the periodic full-corpus sync on a cron expression.
type SyncScheduler struct {
	scheduler *gocron.Scheduler
	pipeline  *IndexingPipeline
}

func NewSyncScheduler(pipeline *IndexingPipeline) *SyncScheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &SyncScheduler{
		scheduler: s,
		pipeline:  pipeline,
	}
}

// Schedule registers the sync job. An empty expression disables scheduling.
func (s *SyncScheduler) Schedule(cronExpr string) error {
	if cronExpr == "" {
		logger.Info("scheduled sync disabled")
		return nil
	}

	_, err := s.scheduler.Cron(cronExpr).Tag("corpus-sync").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Minute)
		defer cancel()

		report, err := s.pipeline.FullSync(ctx)
		if err != nil {
			// A sync already in flight is not a failure of the schedule.
			if errors.Is(err, ErrSyncInProgress) {
				logger.Warn("scheduled sync skipped, sync already running")
				return
			}
			logger.Error("scheduled sync failed", "error", err)
			return
		}
		logger.Info("scheduled sync finished",
			"indexed", report.Indexed, "failed", report.Failed, "pruned", report.Pruned)
	})
	if err != nil {
		return fmt.Errorf("schedule sync %q: %w", cronExpr, err)
	}

	logger.Info("scheduled sync registered", "cron", cronExpr)
	return nil
}

// Start begins executing scheduled jobs in the background.
func (s *SyncScheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop halts the scheduler. A sync already running completes on its own.
func (s *SyncScheduler) Stop() {
	s.scheduler.Stop()
}
