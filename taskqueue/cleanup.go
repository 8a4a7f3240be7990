package taskqueue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CleanupScheduler periodically removes old terminal task records.
type CleanupScheduler struct {
	cron          *cron.Cron
	queue         *Queue
	retentionDays int
}

// NewCleanupScheduler wires CleanupOld to a cron spec (standard 5-field
// syntax, e.g. "0 3 * * *" for daily at 03:00).
func NewCleanupScheduler(q *Queue, spec string, retentionDays int) (*CleanupScheduler, error) {
	s := &CleanupScheduler{cron: cron.New(), queue: q, retentionDays: retentionDays}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *CleanupScheduler) runOnce() {
	if _, err := s.queue.CleanupOld(context.Background(), s.retentionDays); err != nil {
		slog.Error("taskqueue: scheduled cleanup failed", "error", err)
	}
}

// Start begins running cleanups on schedule.
func (s *CleanupScheduler) Start() {
	s.cron.Start()
	slog.Info("taskqueue: cleanup scheduler started", "retention_days", s.retentionDays)
}

// Stop halts the schedule and waits for an in-flight cleanup to finish.
func (s *CleanupScheduler) Stop() {
	<-s.cron.Stop().Done()
}
