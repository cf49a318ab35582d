package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
)

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Job drains TaskRecord tasks into the repository and applies retention.
type Job struct {
	repo    Recorder
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewJob builds a Job.
func NewJob(repo Recorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{repo: repo, logger: logger, metrics: metrics, now: time.Now}
}

// Handle processes one TaskRecord task.
func (j *Job) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskRecord)
	var e Entry
	if err := json.Unmarshal(t.Payload(), &e); err != nil {
		j.logger.Error("audit payload", slog.Any("error", err))
		return tracker.End(fmt.Errorf("audit: decode payload: %w", asynq.SkipRetry))
	}
	if err := e.Validate(); err != nil {
		return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
	}
	if err := j.repo.Record(ctx, e); err != nil {
		j.logger.Error("audit record", slog.String("action", e.Action), slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}
