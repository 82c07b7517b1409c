package workflow

import (
	"context"
	"time"
)

// StateUpdate is the atomic unit of a transition commit: the compare-and-swap
// expectation on the instance's current state, the new state, the new
// lifecycle status, and the history entry appended in the same transaction.
// A store must apply all of it or none of it, and must fail with
// sentinel.ErrConflict when the expectation no longer holds.
type StateUpdate struct {
	InstanceID      string
	ExpectedStateID *string
	NewStateID      string
	Status          InstanceStatus
	CompletedAt     *time.Time
	History         *HistoryEntry
}

// Store is the persistence contract for workflow entities.
type Store interface {
	// Definitions.
	GetDefinition(ctx context.Context, definitionID string) (*Definition, error)
	ListDefinitionsByTenant(ctx context.Context, tenantID string) ([]*Definition, error)
	CreateDefinition(ctx context.Context, d *Definition) error

	// Instances. CreateInstance must reject a second active instance for
	// the same (entityType, entityID, definitionID) with sentinel.ErrConflict.
	GetInstance(ctx context.Context, instanceID string) (*Instance, error)
	FindActiveInstance(ctx context.Context, entityType, entityID, definitionID string) (*Instance, error)
	CreateInstance(ctx context.Context, inst *Instance) error
	ApplyStateUpdate(ctx context.Context, update StateUpdate) error
	// CancelInstance flips an active instance to cancelled; any other
	// status fails with sentinel.ErrInvalidState. History is not touched.
	CancelInstance(ctx context.Context, instanceID string) error

	// History, append-only.
	ListHistory(ctx context.Context, instanceID string) ([]*HistoryEntry, error)

	// Approvals, one row per (instance, transition, approver).
	CreateApproval(ctx context.Context, a *PendingApproval) error
	ListApprovals(ctx context.Context, instanceID, transitionID string) ([]*PendingApproval, error)
	UpdateApproval(ctx context.Context, approvalID string, status ApprovalStatus, comment string, respondedAt time.Time) error
}
