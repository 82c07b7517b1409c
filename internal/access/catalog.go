package access

// The catalog is a compile-time table from role to permission set. Every
// non-admin role lists its grants in full; there is no inheritance between
// roles, so adding a permission means touching every role that should carry
// it. That friction is deliberate: a shared base set would let privileges
// creep in silently.

var universe = []Permission{
	ComplianceRead, ComplianceCreate, ComplianceUpdate, ComplianceDelete, ComplianceApprove,
	MeasureRead, MeasureCreate, MeasureUpdate, MeasureDelete, MeasureVerify,
	EvidenceRead, EvidenceUpload, EvidenceLink, EvidenceReview, EvidenceDelete,
	WorkflowRead, WorkflowManage, WorkflowExecute, WorkflowApprove, WorkflowCancel,
	OrganizationRead, OrganizationManage, OrganizationDelete,
	UserRead, UserManage,
	AuditRead,
}

var catalog = map[Role][]Permission{
	// Destructive organization deletion stays with super_admin only.
	RoleRegulatorAdmin: {
		ComplianceRead, ComplianceCreate, ComplianceUpdate, ComplianceDelete, ComplianceApprove,
		MeasureRead, MeasureCreate, MeasureUpdate, MeasureDelete, MeasureVerify,
		EvidenceRead, EvidenceUpload, EvidenceLink, EvidenceReview, EvidenceDelete,
		WorkflowRead, WorkflowManage, WorkflowExecute, WorkflowApprove, WorkflowCancel,
		OrganizationRead, OrganizationManage,
		UserRead, UserManage,
		AuditRead,
	},
	RoleMinistryUser: {
		ComplianceRead, ComplianceCreate, ComplianceUpdate, ComplianceApprove,
		MeasureRead,
		EvidenceRead,
		WorkflowRead, WorkflowExecute, WorkflowApprove,
		OrganizationRead,
		UserRead,
		AuditRead,
	},
	RoleInstitutionUser: {
		ComplianceRead, ComplianceCreate, ComplianceUpdate,
		MeasureRead, MeasureCreate, MeasureUpdate,
		EvidenceRead, EvidenceUpload, EvidenceLink,
		WorkflowRead, WorkflowExecute,
		OrganizationRead,
	},
	RoleCISO: {
		ComplianceRead, ComplianceUpdate, ComplianceApprove,
		MeasureRead, MeasureUpdate, MeasureVerify,
		EvidenceRead, EvidenceReview,
		WorkflowRead, WorkflowExecute, WorkflowApprove, WorkflowCancel,
		OrganizationRead,
		AuditRead,
	},
	RoleAuditor: {
		ComplianceRead,
		MeasureRead,
		EvidenceRead,
		WorkflowRead,
		OrganizationRead,
		UserRead,
		AuditRead,
	},
}

// hierarchyAware roles may reach descendants of their home organization.
// Every other role is confined to its exact home organization.
var hierarchyAware = map[Role]bool{
	RoleRegulatorAdmin: true,
	RoleMinistryUser:   true,
}

// PermissionsOf returns the permission set granted to a role. super_admin
// holds the full universe. The returned set is a copy; callers may not
// mutate the catalog through it.
func PermissionsOf(role Role) map[Permission]bool {
	var grants []Permission
	if role == RoleSuperAdmin {
		grants = universe
	} else {
		grants = catalog[role]
	}
	set := make(map[Permission]bool, len(grants))
	for _, p := range grants {
		set[p] = true
	}
	return set
}

// Universe returns the full permission universe.
func Universe() map[Permission]bool {
	set := make(map[Permission]bool, len(universe))
	for _, p := range universe {
		set[p] = true
	}
	return set
}

// HierarchyAware reports whether a role's organization reach extends to
// descendants of its home organization.
func HierarchyAware(role Role) bool {
	return role == RoleSuperAdmin || hierarchyAware[role]
}
