package compliance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conforma/pkg/platform/sentinel"
)

func seedLinkedMeasure(t *testing.T, store *InMemoryStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateRecord(ctx, &ComplianceRecord{ID: "rec-1", TenantID: "tenant-1", OrganizationID: "org-1"}))
	require.NoError(t, store.CreateMeasure(ctx, &ControlMeasure{ID: "m-1", RecordID: "rec-1", RequiredEvidenceTypes: []string{"policy"}}))
	require.NoError(t, store.CreateEvidence(ctx, &Evidence{ID: "ev-1", EvidenceType: "policy", ReviewStatus: ReviewPending}))
	require.NoError(t, store.CreateLink(ctx, &EvidenceLink{ID: "l-1", EvidenceID: "ev-1", MeasureID: "m-1", Active: true}))
}

func TestInMemoryStoreListLinkedEvidence(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedLinkedMeasure(t, store)

	links, err := store.ListLinkedEvidence(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "policy", links[0].EvidenceType)
	assert.Equal(t, ReviewPending, links[0].ReviewStatus)

	require.NoError(t, store.DeactivateLink(ctx, "l-1"))
	links, err = store.ListLinkedEvidence(ctx, "m-1")
	require.NoError(t, err)
	assert.Empty(t, links, "inactive links never feed the rollup")
}

func TestInMemoryStoreHasActiveEvidence(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedLinkedMeasure(t, store)

	ok, err := store.HasActiveEvidence(ctx, "control_measure", "m-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.HasActiveEvidence(ctx, "compliance_record", "rec-1")
	require.NoError(t, err)
	assert.True(t, ok, "a record inherits evidence from its measures")

	ok, err = store.HasActiveEvidence(ctx, "contract", "m-1")
	require.NoError(t, err)
	assert.False(t, ok, "unknown entity types have no evidence")

	require.NoError(t, store.DeactivateLink(ctx, "l-1"))
	ok, err = store.HasActiveEvidence(ctx, "compliance_record", "rec-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryStoreLinkReferences(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedLinkedMeasure(t, store)

	err := store.CreateLink(ctx, &EvidenceLink{ID: "l-2", EvidenceID: "ev-ghost", MeasureID: "m-1", Active: true})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	err = store.CreateLink(ctx, &EvidenceLink{ID: "l-2", EvidenceID: "ev-1", MeasureID: "m-ghost", Active: true})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	err = store.CreateLink(ctx, &EvidenceLink{ID: "l-1", EvidenceID: "ev-1", MeasureID: "m-1", Active: true})
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}
