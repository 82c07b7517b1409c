package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"conforma/internal/audit"
	dErrors "conforma/pkg/domain-errors"
)

type AssignmentsSuite struct {
	suite.Suite
	ctx         context.Context
	store       *InMemoryAssignmentStore
	cache       *MemoryCache
	auditStore  *audit.InMemoryStore
	assignments *Assignments
}

func TestAssignmentsSuite(t *testing.T) {
	suite.Run(t, new(AssignmentsSuite))
}

func (s *AssignmentsSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryAssignmentStore()
	s.cache = NewMemoryCache(time.Hour)
	s.auditStore = audit.NewInMemoryStore()
	s.assignments = NewAssignments(s.store, s.cache,
		AssignmentsWithAuditPublisher(audit.NewPublisher(s.auditStore)))
}

func (s *AssignmentsSuite) admin() *Actor {
	return &Actor{ID: "admin-1", Role: RoleRegulatorAdmin, TenantID: "tenant-1"}
}

func (s *AssignmentsSuite) TestAssign() {
	s.Run("assigns and reads back", func() {
		s.Require().NoError(s.assignments.Assign(s.ctx, s.admin(), "user-1", RoleAuditor))

		role, err := s.assignments.RoleOf(s.ctx, "user-1")
		s.Require().NoError(err)
		s.Equal(RoleAuditor, role)
	})

	s.Run("nil actor fails unauthenticated", func() {
		err := s.assignments.Assign(s.ctx, nil, "user-1", RoleAuditor)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})

	s.Run("caller without user manage is forbidden", func() {
		caller := &Actor{ID: "user-2", Role: RoleInstitutionUser, TenantID: "tenant-1"}
		err := s.assignments.Assign(s.ctx, caller, "user-1", RoleAuditor)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("only super admin grants super admin", func() {
		err := s.assignments.Assign(s.ctx, s.admin(), "user-1", RoleSuperAdmin)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		root := &Actor{ID: "root-1", Role: RoleSuperAdmin, TenantID: "tenant-1"}
		s.Require().NoError(s.assignments.Assign(s.ctx, root, "user-1", RoleSuperAdmin))
	})

	s.Run("unknown role is rejected", func() {
		err := s.assignments.Assign(s.ctx, s.admin(), "user-1", Role("viceroy"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// TestAssignInvalidatesCache pins the synchronous invalidation contract: after
// a role change, the next permission check must not be served a stale set.
func (s *AssignmentsSuite) TestAssignInvalidatesCache() {
	s.cache.Set(s.ctx, "user-1", PermissionsOf(RoleRegulatorAdmin))

	s.Require().NoError(s.assignments.Assign(s.ctx, s.admin(), "user-1", RoleAuditor))

	_, ok := s.cache.Get(s.ctx, "user-1")
	s.False(ok, "cached permissions must be dropped before Assign returns")
}

func (s *AssignmentsSuite) TestAssignAudited() {
	s.Require().NoError(s.assignments.Assign(s.ctx, s.admin(), "user-1", RoleCISO))
	s.Require().NoError(s.assignments.Assign(s.ctx, s.admin(), "user-1", RoleAuditor))

	events := s.auditStore.Events()
	s.Require().Len(events, 2)
	last := events[1]
	s.Equal(audit.EventRoleAssigned, last.EventType)
	s.Equal("user-1", last.ResourceID)
	s.Equal(string(RoleCISO), last.Changes["from_role"])
	s.Equal(string(RoleAuditor), last.Changes["to_role"])
}

func (s *AssignmentsSuite) TestRoleOfUnassigned() {
	_, err := s.assignments.RoleOf(s.ctx, "user-ghost")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
