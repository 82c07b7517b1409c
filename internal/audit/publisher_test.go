package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conforma/pkg/requestcontext"
)

func TestPublisherStampsRequestTime(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store)

	fixed := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), fixed)

	require.NoError(t, publisher.Emit(ctx, Event{
		ActorID:   "actor-1",
		TenantID:  "tenant-1",
		EventType: EventEvidenceLinked,
	}))

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
}

func TestPublisherKeepsExplicitTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store)

	explicit := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, publisher.Emit(context.Background(), Event{
		TenantID:  "tenant-1",
		EventType: EventRoleAssigned,
		Timestamp: explicit,
	}))

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, explicit, events[0].Timestamp)
}

func TestListByTenant(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	publisher := NewPublisher(store)

	for i, tenant := range []string{"tenant-1", "tenant-2", "tenant-1", "tenant-1"} {
		require.NoError(t, publisher.Emit(ctx, Event{
			TenantID:   tenant,
			EventType:  EventPermissionCheck,
			ResourceID: string(rune('a' + i)),
		}))
	}

	t.Run("newest first, tenant scoped", func(t *testing.T) {
		events, err := publisher.List(ctx, "tenant-1", 0)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, "d", events[0].ResourceID)
		assert.Equal(t, "c", events[1].ResourceID)
		assert.Equal(t, "a", events[2].ResourceID)
	})

	t.Run("limit caps the page", func(t *testing.T) {
		events, err := publisher.List(ctx, "tenant-1", 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "d", events[0].ResourceID)
	})

	t.Run("unknown tenant is empty", func(t *testing.T) {
		events, err := publisher.List(ctx, "tenant-9", 0)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
