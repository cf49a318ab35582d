package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskRecord is the asynq task type carrying an Entry.
const TaskRecord = "audit:record"

// NewRecordTask wraps e into an asynq task.
func NewRecordTask(e Entry) (*asynq.Task, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecord, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// TaskEnqueuer is the part of asynq.Client used here.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue hands entries to the worker. Failures are logged and never returned,
// an audit hiccup must not fail the mutation it describes.
type Queue struct {
	client TaskEnqueuer
	queue  string
	logger *slog.Logger
}

// NewQueue builds a Queue publishing on the named asynq queue.
func NewQueue(client TaskEnqueuer, queue string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{client: client, queue: queue, logger: logger}
}

// Record enqueues e.
func (q *Queue) Record(ctx context.Context, e Entry) {
	if q == nil || q.client == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	task, err := NewRecordTask(e)
	if err != nil {
		q.logger.Error("audit encode", slog.Any("error", err))
		return
	}
	opts := []asynq.Option{}
	if q.queue != "" {
		opts = append(opts, asynq.Queue(q.queue))
	}
	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		q.logger.Warn("audit enqueue", slog.String("action", e.Action), slog.String("entity_id", e.EntityID), slog.Any("error", err))
	}
}
