package workflow

import (
	"time"

	"conforma/internal/access"
	dErrors "conforma/pkg/domain-errors"
)

// DefinitionType scopes what a workflow definition governs.
type DefinitionType string

const (
	DefinitionCompliance DefinitionType = "compliance"
	DefinitionEvidence   DefinitionType = "evidence"
	DefinitionDocument   DefinitionType = "document"
	DefinitionApproval   DefinitionType = "approval"
	DefinitionCustom     DefinitionType = "custom"
)

// StateKind classifies a workflow state. final and error states are terminal;
// no transition may originate from them.
type StateKind string

const (
	StateInitial      StateKind = "initial"
	StateIntermediate StateKind = "intermediate"
	StateFinal        StateKind = "final"
	StateError        StateKind = "error"
)

// InstanceStatus is the lifecycle of a workflow instance.
type InstanceStatus string

const (
	InstanceDraft     InstanceStatus = "draft"
	InstanceActive    InstanceStatus = "active"
	InstanceCompleted InstanceStatus = "completed"
	InstanceCancelled InstanceStatus = "cancelled"
	InstanceFailed    InstanceStatus = "failed"
)

// ApprovalStatus is the state of one outstanding approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Definition is a versioned, tenant-scoped state machine template.
type Definition struct {
	ID          string
	TenantID    string
	Name        string
	Type        DefinitionType
	Version     int
	States      []State
	Transitions []Transition
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// State is one node of a definition. OnEnter and OnExit carry opaque action
// descriptors interpreted outside the engine.
type State struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Kind    StateKind `json:"kind"`
	OnEnter []Action  `json:"on_enter,omitempty"`
	OnExit  []Action  `json:"on_exit,omitempty"`
}

// Transition is a guarded edge between two states.
type Transition struct {
	ID                  string              `json:"id"`
	Name                string              `json:"name"`
	FromStateID         string              `json:"from_state_id"`
	ToStateID           string              `json:"to_state_id"`
	RequiredPermissions []access.Permission `json:"required_permissions,omitempty"`
	RequiresComment     bool                `json:"requires_comment,omitempty"`
	RequiresEvidence    bool                `json:"requires_evidence,omitempty"`
	RequiresApproval    bool                `json:"requires_approval,omitempty"`
	ApprovalCount       int                 `json:"approval_count,omitempty"`
	Approvers           []string            `json:"approvers,omitempty"`
	// FailurePath marks the transition as the explicit route into an error
	// state; error states are reachable no other way.
	FailurePath bool        `json:"failure_path,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty"`
}

// Instance is one running or completed execution of a definition, bound to
// exactly one entity. CurrentStateID is nil only for drafts that have not
// entered the machine; Start places the instance in the initial state.
type Instance struct {
	ID             string
	DefinitionID   string
	TenantID       string
	EntityType     string
	EntityID       string
	CurrentStateID *string
	Status         InstanceStatus
	Context        map[string]any
	StartedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// HistoryEntry is one executed transition. The history table is append-only:
// entries are never mutated or deleted.
type HistoryEntry struct {
	ID           string
	InstanceID   string
	FromStateID  *string
	ToStateID    string
	TransitionID string
	PerformedBy  string
	Comment      string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// PendingApproval is one outstanding approval request for a transition on an
// instance, one row per approver.
type PendingApproval struct {
	ID           string
	InstanceID   string
	TransitionID string
	ApproverID   string
	Status       ApprovalStatus
	Comment      string
	RespondedAt  *time.Time
	CreatedAt    time.Time
}

// StateByID returns the definition's state with the given id.
func (d *Definition) StateByID(id string) (*State, bool) {
	for i := range d.States {
		if d.States[i].ID == id {
			return &d.States[i], true
		}
	}
	return nil, false
}

// TransitionByID returns the definition's transition with the given id.
func (d *Definition) TransitionByID(id string) (*Transition, bool) {
	for i := range d.Transitions {
		if d.Transitions[i].ID == id {
			return &d.Transitions[i], true
		}
	}
	return nil, false
}

// InitialState returns the definition's single initial state.
func (d *Definition) InitialState() (*State, bool) {
	for i := range d.States {
		if d.States[i].Kind == StateInitial {
			return &d.States[i], true
		}
	}
	return nil, false
}

// Validate checks the structural invariants of a definition: exactly one
// initial state, terminal states with no outgoing transitions, error states
// entered only through failure paths, and no dangling state references.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "definition name is required")
	}

	initials := 0
	byID := make(map[string]*State, len(d.States))
	for i := range d.States {
		st := &d.States[i]
		if _, dup := byID[st.ID]; dup {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "duplicate state id %q", st.ID)
		}
		byID[st.ID] = st
		if st.Kind == StateInitial {
			initials++
		}
	}
	if initials != 1 {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "definition must have exactly one initial state, has %d", initials)
	}

	for i := range d.Transitions {
		t := &d.Transitions[i]
		from, ok := byID[t.FromStateID]
		if !ok {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "transition %q references unknown from-state %q", t.ID, t.FromStateID)
		}
		to, ok := byID[t.ToStateID]
		if !ok {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "transition %q references unknown to-state %q", t.ID, t.ToStateID)
		}
		if from.Kind == StateFinal || from.Kind == StateError {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "transition %q originates from terminal state %q", t.ID, from.ID)
		}
		if to.Kind == StateError && !t.FailurePath {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "transition %q enters error state %q without a failure path marker", t.ID, to.ID)
		}
		if t.RequiresApproval {
			if t.ApprovalCount < 1 {
				return dErrors.Newf(dErrors.CodeInvariantViolation, "transition %q requires approval with count %d", t.ID, t.ApprovalCount)
			}
			if len(t.Approvers) < t.ApprovalCount {
				return dErrors.Newf(dErrors.CodeInvariantViolation, "transition %q requires %d approvals but names %d approvers", t.ID, t.ApprovalCount, len(t.Approvers))
			}
		}
	}
	return nil
}
