package audit

import (
	"context"
	"log/slog"
)

// Queue decouples event capture from persistence. Append enqueues onto a
// bounded channel; Run drains it into the backing store. When the buffer is
// full the write falls through to the store synchronously, so no event is
// ever dropped.
type Queue struct {
	store  Store
	inbox  chan Event
	logger *slog.Logger
}

type QueueOption func(*Queue)

func QueueWithLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = logger }
}

func NewQueue(store Store, size int, opts ...QueueOption) *Queue {
	q := &Queue{store: store, inbox: make(chan Event, size), logger: slog.Default()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Append(ctx context.Context, event Event) error {
	select {
	case q.inbox <- event:
		return nil
	default:
		return q.store.Append(ctx, event)
	}
}

// ListByTenant reads straight through to the store; queued events may trail
// the read side until the drainer catches up.
func (q *Queue) ListByTenant(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	return q.store.ListByTenant(ctx, tenantID, limit)
}

// Run drains the queue until ctx is cancelled, then flushes whatever is still
// buffered before returning. A failed append is logged; the drainer keeps
// running.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.flush()
			return ctx.Err()
		case event := <-q.inbox:
			q.persist(ctx, event)
		}
	}
}

func (q *Queue) flush() {
	for {
		select {
		case event := <-q.inbox:
			q.persist(context.Background(), event)
		default:
			return
		}
	}
}

func (q *Queue) persist(ctx context.Context, event Event) {
	if err := q.store.Append(ctx, event); err != nil {
		q.logger.ErrorContext(ctx, "audit append failed", "event", event.EventType, "error", err)
	}
}
