package org

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conforma/pkg/platform/sentinel"
)

func node(id, tenantID string, parentID *string, level int) *Organization {
	now := time.Now()
	return &Organization{
		ID:        id,
		TenantID:  tenantID,
		ParentID:  parentID,
		Name:      "org " + id,
		Level:     level,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func ptr(s string) *string { return &s }

// seedTree builds
//
//	root
//	├── a
//	│   ├── a1
//	│   └── a2
//	└── b
func seedTree(t *testing.T, store *InMemoryStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, node("root", "tenant-1", nil, 0)))
	require.NoError(t, store.Create(ctx, node("a", "tenant-1", ptr("root"), 1)))
	require.NoError(t, store.Create(ctx, node("b", "tenant-1", ptr("root"), 1)))
	require.NoError(t, store.Create(ctx, node("a1", "tenant-1", ptr("a"), 2)))
	require.NoError(t, store.Create(ctx, node("a2", "tenant-1", ptr("a"), 2)))
}

func TestInMemoryStoreDescendantsOf(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedTree(t, store)

	got, err := store.DescendantsOf(ctx, "root")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "a1", "a2"}, got)

	got, err = store.DescendantsOf(ctx, "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, got)

	got, err = store.DescendantsOf(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, got, "leaves have no descendants")
}

func TestInMemoryStoreCreate(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedTree(t, store)

	err := store.Create(ctx, node("a", "tenant-1", ptr("root"), 1))
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	err = store.Create(ctx, node("orphan", "tenant-1", ptr("ghost"), 1))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedTree(t, store)

	err := store.Delete(ctx, "a")
	assert.ErrorIs(t, err, sentinel.ErrInvalidState, "node with children is protected")

	require.NoError(t, store.Delete(ctx, "a1"))
	_, err = store.Get(ctx, "a1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	got, err := store.DescendantsOf(ctx, "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a2"}, got, "deleted node is detached from its parent")

	assert.ErrorIs(t, store.Delete(ctx, "ghost"), sentinel.ErrNotFound)
}

func TestInMemoryStoreUpdateReparents(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedTree(t, store)

	moved := node("a1", "tenant-1", ptr("b"), 2)
	require.NoError(t, store.Update(ctx, moved))

	got, err := store.DescendantsOf(ctx, "b")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1"}, got)

	got, err = store.DescendantsOf(ctx, "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a2"}, got)
}

func TestInMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedTree(t, store)

	first, err := store.Get(ctx, "a")
	require.NoError(t, err)
	first.Name = "mutated"

	second, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "org a", second.Name)
}
