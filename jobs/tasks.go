package jobs

import "github.com/hibiken/asynq"

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit records when a dedicated queue is configured.
	QueueAudit = "audit"
)

// Queues returns the queue priorities served by the worker. The default queue
// is always included.
func Queues(extra ...string) map[string]int {
	queues := map[string]int{QueueDefault: 1}
	for _, q := range extra {
		if q == "" {
			continue
		}
		if _, ok := queues[q]; !ok {
			queues[q] = 2
		}
	}
	return queues
}

// Handlers registers every TaskHandler on mux, skipping incomplete entries.
func Handlers(mux *asynq.ServeMux, handlers []TaskHandler) int {
	n := 0
	for _, h := range handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
		n++
	}
	return n
}
