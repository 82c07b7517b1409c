package org

import "time"

// Organization is a node in a strict tree per tenant. ParentID is nil only
// for the tenant root. Level is the depth from the root (root = 0),
// maintained on write so hierarchy queries stay cheap.
type Organization struct {
	ID        string
	TenantID  string
	ParentID  *string
	Name      string
	Level     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRoot reports whether the organization is its tenant's root.
func (o *Organization) IsRoot() bool {
	return o.ParentID == nil
}
