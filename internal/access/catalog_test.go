package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionsOfSuperAdminIsUniverse(t *testing.T) {
	assert.Equal(t, Universe(), PermissionsOf(RoleSuperAdmin))
}

// Every role's grant set must be a subset of the universe, and every role
// except super_admin must be a proper subset.
func TestCatalogSubsetOfUniverse(t *testing.T) {
	universe := Universe()
	for _, role := range Roles {
		role := role
		t.Run(string(role), func(t *testing.T) {
			grants := PermissionsOf(role)
			for p := range grants {
				assert.True(t, universe[p], "%s grants %s which is outside the universe", role, p)
			}
			if role != RoleSuperAdmin {
				assert.Less(t, len(grants), len(universe),
					"%s must hold strictly fewer permissions than super_admin", role)
			}
		})
	}
}

func TestPermissionsOfReturnsCopy(t *testing.T) {
	first := PermissionsOf(RoleAuditor)
	first[ComplianceDelete] = true

	second := PermissionsOf(RoleAuditor)
	assert.False(t, second[ComplianceDelete], "mutating a returned set must not touch the catalog")
}

func TestPermissionsOfUnknownRoleIsEmpty(t *testing.T) {
	assert.Empty(t, PermissionsOf(Role("intern")))
}

func TestAuditorHoldsNoMutations(t *testing.T) {
	grants := PermissionsOf(RoleAuditor)
	for _, p := range []Permission{
		ComplianceCreate, ComplianceUpdate, ComplianceDelete,
		MeasureCreate, MeasureUpdate, MeasureDelete, MeasureVerify,
		EvidenceUpload, EvidenceLink, EvidenceReview, EvidenceDelete,
		WorkflowManage, WorkflowExecute, WorkflowApprove, WorkflowCancel,
		OrganizationManage, OrganizationDelete, UserManage,
	} {
		assert.False(t, grants[p], "auditor must not hold %s", p)
	}
	require.True(t, grants[ComplianceRead])
	require.True(t, grants[AuditRead])
}

func TestHierarchyAware(t *testing.T) {
	assert.True(t, HierarchyAware(RoleSuperAdmin))
	assert.True(t, HierarchyAware(RoleRegulatorAdmin))
	assert.True(t, HierarchyAware(RoleMinistryUser))
	assert.False(t, HierarchyAware(RoleInstitutionUser))
	assert.False(t, HierarchyAware(RoleCISO))
	assert.False(t, HierarchyAware(RoleAuditor))
}

func TestRoleValid(t *testing.T) {
	for _, role := range Roles {
		assert.True(t, role.Valid())
	}
	assert.False(t, Role("intern").Valid())
	assert.False(t, Role("").Valid())
}
