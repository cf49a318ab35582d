package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRecorder struct {
	entries []Entry
	err     error
}

func (m *memoryRecorder) Record(ctx context.Context, e Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

type captureClient struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *captureClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{}, nil
}

func TestQueueRecordEnqueuesTask(t *testing.T) {
	client := &captureClient{}
	q := NewQueue(client, "audit", nil)

	q.Record(context.Background(), Entry{ActorID: 7, Action: "users.change_role", Entity: "user", EntityID: "42", Meta: map[string]any{"role": "Manager"}})

	require.Len(t, client.tasks, 1)
	assert.Equal(t, TaskRecord, client.tasks[0].Type())
	var e Entry
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &e))
	assert.Equal(t, "42", e.EntityID)
	assert.False(t, e.At.IsZero())
	assert.Len(t, client.opts[0], 1)
}

func TestQueueSwallowsEnqueueFailure(t *testing.T) {
	q := NewQueue(&captureClient{err: errors.New("redis down")}, "", nil)
	assert.NotPanics(t, func() {
		q.Record(context.Background(), Entry{Action: "a", Entity: "b", EntityID: "c"})
	})
	var nilQueue *Queue
	assert.NotPanics(t, func() { nilQueue.Record(context.Background(), Entry{}) })
}

func TestJobHandlePersistsEntry(t *testing.T) {
	repo := &memoryRecorder{}
	job := NewJob(repo, nil, nil)
	task, err := NewRecordTask(Entry{ActorID: 1, Action: "users.delete", Entity: "user", EntityID: "9", At: time.Now()})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, repo.entries, 1)
	assert.Equal(t, "users.delete", repo.entries[0].Action)
}

func TestJobHandleSkipsRetryOnBadPayload(t *testing.T) {
	job := NewJob(&memoryRecorder{}, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskRecord, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, _ := NewRecordTask(Entry{Action: "x"})
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestJobHandleReturnsRepositoryError(t *testing.T) {
	job := NewJob(&memoryRecorder{err: errors.New("db down")}, nil, nil)
	task, _ := NewRecordTask(Entry{Action: "a", Entity: "b", EntityID: "c"})
	assert.EqualError(t, job.Handle(context.Background(), task), "db down")
}

type purgingRecorder struct {
	memoryRecorder
	before  time.Time
	removed int64
	err     error
}

func (p *purgingRecorder) Purge(_ context.Context, before time.Time) (int64, error) {
	p.before = before
	return p.removed, p.err
}

func TestJobHandlePurgeUsesRetention(t *testing.T) {
	repo := &purgingRecorder{removed: 12}
	job := NewJob(repo, nil, nil)
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	task, err := NewPurgeTask(48 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, TaskPurge, task.Type())

	require.NoError(t, job.HandlePurge(context.Background(), task))
	assert.Equal(t, now.Add(-48*time.Hour), repo.before)
}

func TestJobHandlePurgeFailures(t *testing.T) {
	_, err := NewPurgeTask(0)
	require.Error(t, err)

	job := NewJob(&purgingRecorder{}, nil, nil)
	err = job.HandlePurge(context.Background(), asynq.NewTask(TaskPurge, []byte(`{"retention":0}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, _ := NewPurgeTask(time.Hour)
	err = NewJob(&memoryRecorder{}, nil, nil).HandlePurge(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = NewJob(&purgingRecorder{err: errors.New("db down")}, nil, nil).HandlePurge(context.Background(), task)
	assert.EqualError(t, err, "db down")
}
