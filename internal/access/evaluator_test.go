package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"conforma/internal/audit"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
)

// fakeOrgReader serves a fixed tree:
//
//	root
//	├── ministry-a
//	│   ├── inst-1
//	│   └── inst-2
//	└── ministry-b
//	    └── inst-3
type fakeOrgReader struct {
	descendants map[string][]string
	err         error
}

func newFakeOrgReader() *fakeOrgReader {
	return &fakeOrgReader{
		descendants: map[string][]string{
			"root":       {"ministry-a", "ministry-b", "inst-1", "inst-2", "inst-3"},
			"ministry-a": {"inst-1", "inst-2"},
			"ministry-b": {"inst-3"},
			"inst-1":     {},
			"inst-2":     {},
			"inst-3":     {},
		},
	}
}

func (f *fakeOrgReader) Exists(_ context.Context, orgID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.descendants[orgID]
	return ok, nil
}

func (f *fakeOrgReader) DescendantsOf(_ context.Context, orgID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.descendants[orgID], nil
}

type fakeRecordReader struct {
	orgs map[string]string
}

func (f *fakeRecordReader) OrganizationID(_ context.Context, recordID string) (string, error) {
	orgID, ok := f.orgs[recordID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return orgID, nil
}

type capturingPublisher struct {
	events []audit.Event
}

func (c *capturingPublisher) Emit(_ context.Context, event audit.Event) error {
	c.events = append(c.events, event)
	return nil
}

type EvaluatorSuite struct {
	suite.Suite
	ctx     context.Context
	orgs    *fakeOrgReader
	records *fakeRecordReader
	auditor *capturingPublisher
	eval    *Evaluator
}

func TestEvaluatorSuite(t *testing.T) {
	suite.Run(t, new(EvaluatorSuite))
}

func (s *EvaluatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.orgs = newFakeOrgReader()
	s.records = &fakeRecordReader{orgs: map[string]string{"rec-1": "inst-1"}}
	s.auditor = &capturingPublisher{}
	s.eval = NewEvaluator(s.orgs, s.records, WithAuditPublisher(s.auditor))
}

func actor(role Role, homeOrg string) *Actor {
	return &Actor{ID: "actor-" + string(role), Role: role, TenantID: "tenant-1", HomeOrganizationID: homeOrg}
}

func (s *EvaluatorSuite) TestCan() {
	s.Run("grants per catalog", func() {
		s.True(s.eval.Can(s.ctx, actor(RoleCISO, "inst-1"), MeasureVerify))
		s.False(s.eval.Can(s.ctx, actor(RoleAuditor, "inst-1"), MeasureVerify))
	})

	s.Run("super admin holds everything", func() {
		for p := range Universe() {
			s.True(s.eval.Can(s.ctx, actor(RoleSuperAdmin, ""), p))
		}
	})

	s.Run("nil actor never can", func() {
		s.False(s.eval.Can(s.ctx, nil, ComplianceRead))
	})
}

func (s *EvaluatorSuite) TestRequire() {
	s.Run("nil actor fails unauthenticated", func() {
		err := s.eval.Require(s.ctx, nil, ComplianceRead)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})

	s.Run("denied is generic and audited", func() {
		err := s.eval.Require(s.ctx, actor(RoleAuditor, "inst-1"), ComplianceDelete)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.NotContains(err.Error(), "compliance:delete", "denial must not name the permission")

		s.Require().NotEmpty(s.auditor.events)
		last := s.auditor.events[len(s.auditor.events)-1]
		s.Equal(audit.EventPermissionCheck, last.EventType)
		s.Equal("denied", last.Decision)
	})

	s.Run("granted is audited too", func() {
		s.Require().NoError(s.eval.Require(s.ctx, actor(RoleAuditor, "inst-1"), AuditRead))
		last := s.auditor.events[len(s.auditor.events)-1]
		s.Equal("granted", last.Decision)
	})
}

func (s *EvaluatorSuite) TestCanAccessOrganization() {
	s.Run("super admin reaches everything", func() {
		ok, err := s.eval.CanAccessOrganization(s.ctx, actor(RoleSuperAdmin, ""), "inst-3")
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("exact home always passes", func() {
		ok, err := s.eval.CanAccessOrganization(s.ctx, actor(RoleInstitutionUser, "inst-1"), "inst-1")
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("hierarchy aware role reaches descendants", func() {
		ministry := actor(RoleMinistryUser, "ministry-a")
		ok, err := s.eval.CanAccessOrganization(s.ctx, ministry, "inst-1")
		s.Require().NoError(err)
		s.True(ok)

		ok, err = s.eval.CanAccessOrganization(s.ctx, ministry, "inst-3")
		s.Require().NoError(err)
		s.False(ok, "sibling subtree must be out of reach")
	})

	s.Run("confined role cannot reach children", func() {
		ok, err := s.eval.CanAccessOrganization(s.ctx, actor(RoleInstitutionUser, "ministry-a"), "inst-1")
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("no home organization means no reach", func() {
		ok, err := s.eval.CanAccessOrganization(s.ctx, actor(RoleMinistryUser, ""), "inst-1")
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("store failure surfaces as unavailable", func() {
		s.orgs.err = errors.New("connection refused")
		_, err := s.eval.CanAccessOrganization(s.ctx, actor(RoleMinistryUser, "ministry-a"), "inst-1")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.orgs.err = nil
	})
}

func (s *EvaluatorSuite) TestRequireOrganization() {
	err := s.eval.RequireOrganization(s.ctx, actor(RoleInstitutionUser, "inst-1"), "inst-2")
	s.Require().True(dErrors.HasCode(err, dErrors.CodeOrgAccessDenied))
	s.NotContains(err.Error(), "inst-2", "denial must not leak hierarchy detail")
}

func (s *EvaluatorSuite) TestReachableOrganizations() {
	s.Run("super admin is unrestricted", func() {
		ids, err := s.eval.ReachableOrganizations(s.ctx, actor(RoleSuperAdmin, ""))
		s.Require().NoError(err)
		s.Nil(ids)
	})

	s.Run("confined role sees only home", func() {
		ids, err := s.eval.ReachableOrganizations(s.ctx, actor(RoleCISO, "inst-2"))
		s.Require().NoError(err)
		s.Equal([]string{"inst-2"}, ids)
	})

	s.Run("hierarchy aware role sees home subtree", func() {
		ids, err := s.eval.ReachableOrganizations(s.ctx, actor(RoleMinistryUser, "ministry-a"))
		s.Require().NoError(err)
		s.ElementsMatch([]string{"ministry-a", "inst-1", "inst-2"}, ids)
	})

	s.Run("nil actor reaches nothing", func() {
		ids, err := s.eval.ReachableOrganizations(s.ctx, nil)
		s.Require().NoError(err)
		s.Empty(ids)
		s.NotNil(ids, "empty is not the same as unrestricted")
	})
}

func (s *EvaluatorSuite) TestCanEditComplianceRecord() {
	s.Run("needs permission and reach", func() {
		ok, err := s.eval.CanEditComplianceRecord(s.ctx, actor(RoleInstitutionUser, "inst-1"), "rec-1")
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("permission without reach fails", func() {
		ok, err := s.eval.CanEditComplianceRecord(s.ctx, actor(RoleInstitutionUser, "inst-2"), "rec-1")
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("reach without permission fails", func() {
		ok, err := s.eval.CanEditComplianceRecord(s.ctx, actor(RoleAuditor, "inst-1"), "rec-1")
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("missing record is false not error", func() {
		ok, err := s.eval.CanEditComplianceRecord(s.ctx, actor(RoleSuperAdmin, ""), "rec-ghost")
		s.Require().NoError(err)
		s.False(ok)
	})
}

// TestCachedPermissions verifies the TTL cache path: a cached set is served
// until it expires or is invalidated.
func (s *EvaluatorSuite) TestCachedPermissions() {
	now := time.Now()
	clock := func() time.Time { return now }
	cache := NewMemoryCache(5*time.Minute, WithClock(clock))
	eval := NewEvaluator(s.orgs, s.records, WithCache(cache))

	subject := &Actor{ID: "actor-x", Role: RoleAuditor, TenantID: "tenant-1"}
	s.False(eval.Can(s.ctx, subject, ComplianceCreate))

	// A role change on the same actor id is not observed until invalidation.
	subject.Role = RoleRegulatorAdmin
	s.False(eval.Can(s.ctx, subject, ComplianceCreate), "stale cached set still served")

	eval.InvalidateActor(s.ctx, subject.ID)
	s.True(eval.Can(s.ctx, subject, ComplianceCreate))

	// Expiry also forces re-resolution.
	subject.Role = RoleAuditor
	now = now.Add(6 * time.Minute)
	s.False(eval.Can(s.ctx, subject, ComplianceCreate))
}
