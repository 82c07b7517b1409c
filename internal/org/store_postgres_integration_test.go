//go:build integration

package org

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"conforma/pkg/platform/sentinel"
	"conforma/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "organizations")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seedOrg(name string, parent *Organization) *Organization {
	now := time.Now().UTC().Truncate(time.Microsecond)
	o := &Organization{
		ID:        uuid.NewString(),
		TenantID:  "tenant-1",
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parent != nil {
		o.ParentID = &parent.ID
		o.Level = parent.Level + 1
	}
	s.Require().NoError(s.store.Create(context.Background(), o))
	return o
}

// seedTree builds root -> (ministry-a -> institution, ministry-b).
func (s *PostgresStoreSuite) seedTree() (root, ministryA, ministryB, institution *Organization) {
	root = s.seedOrg("Root Authority", nil)
	ministryA = s.seedOrg("Ministry A", root)
	ministryB = s.seedOrg("Ministry B", root)
	institution = s.seedOrg("Institution", ministryA)
	return
}

func (s *PostgresStoreSuite) TestDescendantsOf() {
	ctx := context.Background()
	root, ministryA, ministryB, institution := s.seedTree()

	s.Run("walks the whole subtree", func() {
		ids, err := s.store.DescendantsOf(ctx, root.ID)
		s.Require().NoError(err)
		s.ElementsMatch([]string{ministryA.ID, ministryB.ID, institution.ID}, ids)
	})

	s.Run("mid-level node sees only its branch", func() {
		ids, err := s.store.DescendantsOf(ctx, ministryA.ID)
		s.Require().NoError(err)
		s.ElementsMatch([]string{institution.ID}, ids)
	})

	s.Run("leaf has no descendants", func() {
		ids, err := s.store.DescendantsOf(ctx, institution.ID)
		s.Require().NoError(err)
		s.Empty(ids)
	})
}

func (s *PostgresStoreSuite) TestGet() {
	ctx := context.Background()
	root := s.seedOrg("Root Authority", nil)

	got, err := s.store.Get(ctx, root.ID)
	s.Require().NoError(err)
	s.Equal("Root Authority", got.Name)
	s.Nil(got.ParentID)
	s.Zero(got.Level)

	_, err = s.store.Get(ctx, "ghost")
	s.ErrorIs(err, sentinel.ErrNotFound)

	exists, err := s.store.Exists(ctx, root.ID)
	s.Require().NoError(err)
	s.True(exists)
}

func (s *PostgresStoreSuite) TestListByTenantOrdersByLevel() {
	ctx := context.Background()
	root, ministryA, _, institution := s.seedTree()

	orgs, err := s.store.ListByTenant(ctx, "tenant-1")
	s.Require().NoError(err)
	s.Require().Len(orgs, 4)
	s.Equal(root.ID, orgs[0].ID)
	s.Equal(institution.ID, orgs[3].ID)

	children, err := s.store.ListChildren(ctx, ministryA.ID)
	s.Require().NoError(err)
	s.Require().Len(children, 1)
	s.Equal(institution.ID, children[0].ID)
}

func (s *PostgresStoreSuite) TestUpdateReparents() {
	ctx := context.Background()
	root, _, ministryB, institution := s.seedTree()

	institution.ParentID = &ministryB.ID
	institution.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Update(ctx, institution))

	ids, err := s.store.DescendantsOf(ctx, ministryB.ID)
	s.Require().NoError(err)
	s.ElementsMatch([]string{institution.ID}, ids)

	ghost := *institution
	ghost.ID = "ghost"
	ghost.ParentID = &root.ID
	s.ErrorIs(s.store.Update(ctx, &ghost), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDelete() {
	ctx := context.Background()
	root, ministryA, _, institution := s.seedTree()

	s.Run("node with children is protected", func() {
		s.ErrorIs(s.store.Delete(ctx, ministryA.ID), sentinel.ErrInvalidState)
	})

	s.Run("leaf deletes cleanly", func() {
		s.Require().NoError(s.store.Delete(ctx, institution.ID))
		s.Require().NoError(s.store.Delete(ctx, ministryA.ID))

		ids, err := s.store.DescendantsOf(ctx, root.ID)
		s.Require().NoError(err)
		s.NotContains(ids, institution.ID)
	})

	s.Run("unknown node is not found", func() {
		s.ErrorIs(s.store.Delete(ctx, "ghost"), sentinel.ErrNotFound)
	})
}
