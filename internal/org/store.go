package org

import "context"

// Store is the organization tree contract. The compliance core treats the
// tree as read-mostly: the Access Evaluator only needs Exists and
// DescendantsOf, and always reads the current tree because reachability
// decisions are security-sensitive.
type Store interface {
	Get(ctx context.Context, orgID string) (*Organization, error)
	Exists(ctx context.Context, orgID string) (bool, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Organization, error)
	ListChildren(ctx context.Context, orgID string) ([]*Organization, error)
	// DescendantsOf returns every organization below orgID, excluding orgID
	// itself. Order is unspecified.
	DescendantsOf(ctx context.Context, orgID string) ([]string, error)
	Create(ctx context.Context, o *Organization) error
	Update(ctx context.Context, o *Organization) error
	Delete(ctx context.Context, orgID string) error
}
