package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conforma/pkg/platform/sentinel"
)

func activeInstance(id string) *Instance {
	stateID := "draft"
	return &Instance{
		ID:             id,
		DefinitionID:   "def-1",
		TenantID:       "tenant-1",
		EntityType:     "compliance_record",
		EntityID:       "rec-1",
		CurrentStateID: &stateID,
		Status:         InstanceActive,
		StartedBy:      "user-1",
		CreatedAt:      time.Now(),
	}
}

func stateUpdate(instanceID, from, to string) StateUpdate {
	fromCp := from
	return StateUpdate{
		InstanceID:      instanceID,
		ExpectedStateID: &fromCp,
		NewStateID:      to,
		Status:          InstanceActive,
		History: &HistoryEntry{
			ID:           "h-" + to,
			InstanceID:   instanceID,
			FromStateID:  &fromCp,
			ToStateID:    to,
			TransitionID: "t-1",
			PerformedBy:  "user-1",
			CreatedAt:    time.Now(),
		},
	}
}

func TestInMemoryStoreOneActiveInstance(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.CreateInstance(ctx, activeInstance("i-1")))

	err := store.CreateInstance(ctx, activeInstance("i-2"))
	assert.ErrorIs(t, err, sentinel.ErrConflict, "one active instance per entity per definition")

	// A cancelled first instance frees the slot.
	require.NoError(t, store.CancelInstance(ctx, "i-1"))
	assert.NoError(t, store.CreateInstance(ctx, activeInstance("i-2")))

	// A different definition never conflicts.
	other := activeInstance("i-3")
	other.DefinitionID = "def-2"
	assert.NoError(t, store.CreateInstance(ctx, other))
}

func TestInMemoryStoreFindActiveInstance(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.CreateInstance(ctx, activeInstance("i-1")))

	found, err := store.FindActiveInstance(ctx, "compliance_record", "rec-1", "def-1")
	require.NoError(t, err)
	assert.Equal(t, "i-1", found.ID)

	_, err = store.FindActiveInstance(ctx, "compliance_record", "rec-2", "def-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStoreApplyStateUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.CreateInstance(ctx, activeInstance("i-1")))

	require.NoError(t, store.ApplyStateUpdate(ctx, stateUpdate("i-1", "draft", "review")))

	inst, err := store.GetInstance(ctx, "i-1")
	require.NoError(t, err)
	require.NotNil(t, inst.CurrentStateID)
	assert.Equal(t, "review", *inst.CurrentStateID)

	history, err := store.ListHistory(ctx, "i-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "review", history[0].ToStateID)

	t.Run("stale expectation conflicts", func(t *testing.T) {
		err := store.ApplyStateUpdate(ctx, stateUpdate("i-1", "draft", "done"))
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		history, err := store.ListHistory(ctx, "i-1")
		require.NoError(t, err)
		assert.Len(t, history, 1, "a rejected update appends nothing")
	})

	t.Run("unknown instance", func(t *testing.T) {
		err := store.ApplyStateUpdate(ctx, stateUpdate("ghost", "draft", "review"))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

// TestInMemoryStoreConcurrentStateUpdate races two identical updates; the
// compare-and-swap must let exactly one through.
func TestInMemoryStoreConcurrentStateUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.CreateInstance(ctx, activeInstance("i-1")))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.ApplyStateUpdate(ctx, stateUpdate("i-1", "draft", "review"))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, sentinel.ErrConflict)
		}
	}
	assert.Equal(t, 1, winners)

	history, err := store.ListHistory(ctx, "i-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestInMemoryStoreCancelInstance(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.CreateInstance(ctx, activeInstance("i-1")))

	require.NoError(t, store.CancelInstance(ctx, "i-1"))

	inst, err := store.GetInstance(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, InstanceCancelled, inst.Status)

	assert.ErrorIs(t, store.CancelInstance(ctx, "i-1"), sentinel.ErrInvalidState)
	assert.ErrorIs(t, store.CancelInstance(ctx, "ghost"), sentinel.ErrNotFound)
}

func TestInMemoryStoreApprovals(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	a := &PendingApproval{ID: "a-1", InstanceID: "i-1", TransitionID: "t-1", ApproverID: "user-1", Status: ApprovalPending}
	require.NoError(t, store.CreateApproval(ctx, a))

	dup := &PendingApproval{ID: "a-2", InstanceID: "i-1", TransitionID: "t-1", ApproverID: "user-1", Status: ApprovalPending}
	assert.ErrorIs(t, store.CreateApproval(ctx, dup), sentinel.ErrConflict,
		"one row per (instance, transition, approver)")

	other := &PendingApproval{ID: "a-3", InstanceID: "i-1", TransitionID: "t-1", ApproverID: "user-2", Status: ApprovalPending}
	require.NoError(t, store.CreateApproval(ctx, other))

	now := time.Now()
	require.NoError(t, store.UpdateApproval(ctx, "a-1", ApprovalApproved, "lgtm", now))

	approvals, err := store.ListApprovals(ctx, "i-1", "t-1")
	require.NoError(t, err)
	require.Len(t, approvals, 2)
	for _, got := range approvals {
		if got.ID == "a-1" {
			assert.Equal(t, ApprovalApproved, got.Status)
			assert.Equal(t, "lgtm", got.Comment)
			require.NotNil(t, got.RespondedAt)
		} else {
			assert.Equal(t, ApprovalPending, got.Status)
		}
	}

	assert.ErrorIs(t, store.UpdateApproval(ctx, "ghost", ApprovalApproved, "", now), sentinel.ErrNotFound)
}

func TestInMemoryStoreInstanceCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	inst := activeInstance("i-1")
	inst.Context = map[string]any{"risk_score": 40}
	require.NoError(t, store.CreateInstance(ctx, inst))

	got, err := store.GetInstance(ctx, "i-1")
	require.NoError(t, err)
	got.Context["risk_score"] = 99

	again, err := store.GetInstance(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, 40, again.Context["risk_score"])
}
