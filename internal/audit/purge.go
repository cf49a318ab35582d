package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskPurge drops audit_logs rows older than the retention carried by the task.
const TaskPurge = "audit:purge"

type purgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewPurgeTask builds the scheduled retention task.
func NewPurgeTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		return nil, errors.New("audit: retention must be positive")
	}
	data, err := json.Marshal(purgePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurge, data, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

// Purger deletes entries that occurred before a cutoff.
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// HandlePurge processes one TaskPurge task.
func (j *Job) HandlePurge(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskPurge)
	purger, ok := j.repo.(Purger)
	if !ok {
		return tracker.End(fmt.Errorf("audit: repository cannot purge: %w", asynq.SkipRetry))
	}
	var p purgePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.Retention <= 0 {
		return tracker.End(fmt.Errorf("audit: invalid purge payload: %w", asynq.SkipRetry))
	}
	cutoff := j.now().Add(-p.Retention)
	removed, err := purger.Purge(ctx, cutoff)
	if err != nil {
		j.logger.Error("audit purge", slog.Time("before", cutoff), slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("audit purge", slog.Time("before", cutoff), slog.Int64("removed", removed))
	return tracker.End(nil)
}
