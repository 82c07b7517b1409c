//go:build integration

package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"conforma/pkg/platform/sentinel"
	"conforma/pkg/testutil/containers"
)

type PostgresAssignmentSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresAssignmentStore
}

func TestPostgresAssignmentSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAssignmentSuite))
}

func (s *PostgresAssignmentSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgresAssignmentStore(s.postgres.DB)
}

func (s *PostgresAssignmentSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "role_assignments")
	s.Require().NoError(err)
}

func (s *PostgresAssignmentSuite) TestSetRoleUpserts() {
	ctx := context.Background()

	s.Require().NoError(s.store.SetRole(ctx, "user-1", RoleCISO))
	role, err := s.store.GetRole(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(RoleCISO, role)

	s.Require().NoError(s.store.SetRole(ctx, "user-1", RoleAuditor))
	role, err = s.store.GetRole(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(RoleAuditor, role)
}

func (s *PostgresAssignmentSuite) TestGetRoleUnassigned() {
	_, err := s.store.GetRole(context.Background(), "nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
