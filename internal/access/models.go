package access

// Role is a named permission bundle. The set of roles is fixed at deploy
// time; there is no runtime role creation.
type Role string

const (
	RoleSuperAdmin      Role = "super_admin"
	RoleRegulatorAdmin  Role = "regulator_admin"
	RoleMinistryUser    Role = "ministry_user"
	RoleInstitutionUser Role = "institution_user"
	RoleCISO            Role = "ciso"
	RoleAuditor         Role = "auditor"
)

// Roles lists every deployable role.
var Roles = []Role{
	RoleSuperAdmin,
	RoleRegulatorAdmin,
	RoleMinistryUser,
	RoleInstitutionUser,
	RoleCISO,
	RoleAuditor,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Permission is an atomic capability expressed as resource:action.
// Permissions are never combined or negated; a role either grants one or
// does not.
type Permission string

const (
	ComplianceRead    Permission = "compliance:read"
	ComplianceCreate  Permission = "compliance:create"
	ComplianceUpdate  Permission = "compliance:update"
	ComplianceDelete  Permission = "compliance:delete"
	ComplianceApprove Permission = "compliance:approve"

	MeasureRead   Permission = "measure:read"
	MeasureCreate Permission = "measure:create"
	MeasureUpdate Permission = "measure:update"
	MeasureDelete Permission = "measure:delete"
	MeasureVerify Permission = "measure:verify"

	EvidenceRead   Permission = "evidence:read"
	EvidenceUpload Permission = "evidence:upload"
	EvidenceLink   Permission = "evidence:link"
	EvidenceReview Permission = "evidence:review"
	EvidenceDelete Permission = "evidence:delete"

	WorkflowRead    Permission = "workflow:read"
	WorkflowManage  Permission = "workflow:manage"
	WorkflowExecute Permission = "workflow:execute"
	WorkflowApprove Permission = "workflow:approve"
	WorkflowCancel  Permission = "workflow:cancel"

	OrganizationRead   Permission = "organization:read"
	OrganizationManage Permission = "organization:manage"
	OrganizationDelete Permission = "organization:delete"

	UserRead   Permission = "user:read"
	UserManage Permission = "user:manage"

	AuditRead Permission = "audit:read"
)

// Actor is a resolved identity, built per request from session data and
// never persisted by the core. HomeOrganizationID is empty for tenant-wide
// roles.
type Actor struct {
	ID                 string
	Role               Role
	TenantID           string
	HomeOrganizationID string
}
