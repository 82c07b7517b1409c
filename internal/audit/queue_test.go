package audit

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	attempts atomic.Int32
}

func (s *failingStore) Append(context.Context, Event) error {
	s.attempts.Add(1)
	return assert.AnError
}

func (s *failingStore) ListByTenant(context.Context, string, int) ([]Event, error) {
	return nil, assert.AnError
}

func TestQueueDrainsIntoStore(t *testing.T) {
	store := NewInMemoryStore()
	queue := NewQueue(store, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- queue.Run(ctx) }()

	for i := 0; i < 3; i++ {
		require.NoError(t, queue.Append(ctx, Event{TenantID: "tenant-1", EventType: EventRoleAssigned}))
	}

	require.Eventually(t, func() bool {
		events, err := queue.ListByTenant(ctx, "tenant-1", 0)
		return err == nil && len(events) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestQueueFlushesBufferOnShutdown(t *testing.T) {
	store := NewInMemoryStore()
	queue := NewQueue(store, 8)

	// Nothing is draining yet; both events sit in the buffer.
	require.NoError(t, queue.Append(context.Background(), Event{TenantID: "tenant-1", EventType: EventEvidenceLinked}))
	require.NoError(t, queue.Append(context.Background(), Event{TenantID: "tenant-1", EventType: EventEvidenceReviewed}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, queue.Run(ctx), context.Canceled)

	events, err := store.ListByTenant(context.Background(), "tenant-1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2, "buffered events land before Run returns")
}

func TestQueueWritesThroughWhenFull(t *testing.T) {
	store := NewInMemoryStore()
	queue := NewQueue(store, 1)

	require.NoError(t, queue.Append(context.Background(), Event{TenantID: "tenant-1", EventType: EventWorkflowStarted}))
	require.NoError(t, queue.Append(context.Background(), Event{TenantID: "tenant-1", EventType: EventWorkflowTransition}))

	events, err := store.ListByTenant(context.Background(), "tenant-1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1, "the overflow write bypasses the full buffer")
}

func TestQueueSurvivesStoreErrors(t *testing.T) {
	store := &failingStore{}
	queue := NewQueue(store, 2, QueueWithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- queue.Run(ctx) }()

	require.NoError(t, queue.Append(ctx, Event{TenantID: "tenant-1", EventType: EventRoleAssigned}))
	require.Eventually(t, func() bool {
		return store.attempts.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
