package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"conforma/internal/access"
	"conforma/internal/audit"
	"conforma/internal/platform/locks"
	"conforma/internal/workflow/metrics"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// AccessChecker answers permission questions for transition guards.
type AccessChecker interface {
	Can(ctx context.Context, actor *access.Actor, permission access.Permission) bool
	Require(ctx context.Context, actor *access.Actor, permission access.Permission) error
}

// EvidenceChecker reports whether an entity carries at least one active
// evidence link. Backed by the compliance store.
type EvidenceChecker interface {
	HasActiveEvidence(ctx context.Context, entityType, entityID string) (bool, error)
}

// AuditPublisher receives workflow lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Engine runs tenant-scoped state machines. Transition execution is
// serialized per instance: the guard evaluation and the state write happen
// under a keyed lock, and the store additionally compare-and-swaps on the
// prior state so a stale writer fails even across processes.
type Engine struct {
	store       Store
	access      AccessChecker
	evidence    EvidenceChecker
	locks       *locks.Keyed
	logger      *slog.Logger
	auditor     AuditPublisher
	metrics     *metrics.Metrics
	interpreter Interpreter
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(e *Engine) { e.auditor = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithInterpreter installs the action interpreter fired after a committed
// transition. Without one, actions are still reported on the result but
// nothing runs them.
func WithInterpreter(i Interpreter) Option {
	return func(e *Engine) { e.interpreter = i }
}

func NewEngine(store Store, checker AccessChecker, evidence EvidenceChecker, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		access:   checker,
		evidence: evidence,
		locks:    locks.NewKeyed(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateDefinition validates and stores a new definition.
func (e *Engine) CreateDefinition(ctx context.Context, actor *access.Actor, d *Definition) (*Definition, error) {
	if err := e.access.Require(ctx, actor, access.WorkflowManage); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	d.ID = uuid.NewString()
	d.TenantID = actor.TenantID
	if d.Version == 0 {
		d.Version = 1
	}
	d.CreatedAt = now
	d.UpdatedAt = now

	if err := e.store.CreateDefinition(ctx, d); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "definition already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "definition store unavailable")
	}
	return d, nil
}

func (e *Engine) GetDefinition(ctx context.Context, actor *access.Actor, definitionID string) (*Definition, error) {
	if err := e.access.Require(ctx, actor, access.WorkflowRead); err != nil {
		return nil, err
	}
	d, err := e.loadDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if d.TenantID != actor.TenantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "workflow definition not found")
	}
	return d, nil
}

func (e *Engine) ListDefinitions(ctx context.Context, actor *access.Actor) ([]*Definition, error) {
	if err := e.access.Require(ctx, actor, access.WorkflowRead); err != nil {
		return nil, err
	}
	out, err := e.store.ListDefinitionsByTenant(ctx, actor.TenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "definition store unavailable")
	}
	return out, nil
}

// Start creates an instance of the definition bound to one entity and places
// it in the initial state. At most one active instance may exist per
// (entityType, entityID, definitionID); a duplicate start is rejected.
func (e *Engine) Start(ctx context.Context, actor *access.Actor, definitionID, entityType, entityID string, instanceContext map[string]any) (*Instance, error) {
	if err := e.access.Require(ctx, actor, access.WorkflowExecute); err != nil {
		return nil, err
	}
	if entityType == "" || entityID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "entity type and id are required")
	}

	d, err := e.loadDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if d.TenantID != actor.TenantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "workflow definition not found")
	}
	initial, ok := d.InitialState()
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "definition has no initial state")
	}

	now := requestcontext.Now(ctx)
	initialID := initial.ID
	inst := &Instance{
		ID:             uuid.NewString(),
		DefinitionID:   d.ID,
		TenantID:       actor.TenantID,
		EntityType:     entityType,
		EntityID:       entityID,
		CurrentStateID: &initialID,
		Status:         InstanceActive,
		Context:        instanceContext,
		StartedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateInstance(ctx, inst); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeInvariantViolation,
				"an active workflow instance already exists for this entity")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "instance store unavailable")
	}

	if e.metrics != nil {
		e.metrics.InstancesStarted.Inc()
	}
	e.emit(ctx, actor, audit.EventWorkflowStarted, "workflow_instance", inst.ID, "allowed", "", map[string]string{
		"definition_id": d.ID,
		"entity_type":   entityType,
		"entity_id":     entityID,
		"state":         initialID,
	})
	e.fireActions(ctx, inst, initial.OnEnter)
	return inst, nil
}

// ExecuteResult is the outcome of a successful Execute call.
type ExecuteResult struct {
	Instance *Instance
	// Actions are the OnExit actions of the source state followed by the
	// OnEnter actions of the target state, in firing order.
	Actions []Action
}

// Execute runs one transition on an active instance. Guards are checked in a
// fixed order and the first failure wins: instance active, source state
// matches, permissions, comment, evidence, approvals, conditions. State
// write and history append commit atomically in the store.
func (e *Engine) Execute(ctx context.Context, actor *access.Actor, instanceID, transitionID, comment string, metadata map[string]string) (*ExecuteResult, error) {
	if actor == nil {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "no resolvable actor")
	}

	e.locks.Lock(instanceID)
	defer e.locks.Unlock(instanceID)

	inst, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.TenantID != actor.TenantID && actor.Role != access.RoleSuperAdmin {
		return nil, dErrors.New(dErrors.CodeNotFound, "workflow instance not found")
	}
	if inst.Status != InstanceActive {
		return nil, e.deny(ctx, actor, inst, transitionID, "instance_not_active",
			dErrors.Newf(dErrors.CodeInvalidTransition, "instance is %s, not active", inst.Status))
	}

	d, err := e.loadDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return nil, err
	}
	transition, ok := d.TransitionByID(transitionID)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "transition not found")
	}
	if inst.CurrentStateID == nil || transition.FromStateID != *inst.CurrentStateID {
		return nil, e.deny(ctx, actor, inst, transitionID, "stale_state",
			dErrors.New(dErrors.CodeInvalidTransition, "transition does not originate from the current state"))
	}

	for _, p := range transition.RequiredPermissions {
		if err := e.access.Require(ctx, actor, p); err != nil {
			e.recordDenied("permission")
			return nil, err
		}
	}

	if transition.RequiresComment && comment == "" {
		return nil, e.deny(ctx, actor, inst, transitionID, "comment_required",
			dErrors.New(dErrors.CodeInvalidTransition, "transition requires a comment"))
	}

	if transition.RequiresEvidence {
		has, err := e.evidence.HasActiveEvidence(ctx, inst.EntityType, inst.EntityID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "evidence store unavailable")
		}
		if !has {
			return nil, e.deny(ctx, actor, inst, transitionID, "evidence_required",
				dErrors.New(dErrors.CodeInvalidTransition, "transition requires at least one active evidence link"))
		}
	}

	if transition.RequiresApproval {
		approved, err := e.ensureApprovals(ctx, actor, inst, transition)
		if err != nil {
			return nil, err
		}
		if approved < transition.ApprovalCount {
			e.recordDenied("approval_pending")
			return nil, dErrors.Newf(dErrors.CodeApprovalPending,
				"transition requires %d approvals, %d recorded", transition.ApprovalCount, approved)
		}
	}

	if !EvaluateConditions(transition.Conditions, inst.Context) {
		return nil, e.deny(ctx, actor, inst, transitionID, "condition_not_met",
			dErrors.New(dErrors.CodeInvalidTransition, "transition condition not met"))
	}

	fromState, ok := d.StateByID(transition.FromStateID)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "transition originates from an unknown state")
	}
	toState, ok := d.StateByID(transition.ToStateID)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "transition targets an unknown state")
	}

	now := requestcontext.Now(ctx)
	update := StateUpdate{
		InstanceID:      inst.ID,
		ExpectedStateID: inst.CurrentStateID,
		NewStateID:      toState.ID,
		Status:          InstanceActive,
		History: &HistoryEntry{
			ID:           uuid.NewString(),
			InstanceID:   inst.ID,
			FromStateID:  inst.CurrentStateID,
			ToStateID:    toState.ID,
			TransitionID: transition.ID,
			PerformedBy:  actor.ID,
			Comment:      comment,
			Metadata:     metadata,
			CreatedAt:    now,
		},
	}
	switch toState.Kind {
	case StateFinal:
		update.Status = InstanceCompleted
		update.CompletedAt = &now
	case StateError:
		update.Status = InstanceFailed
		update.CompletedAt = &now
	}

	if err := e.store.ApplyStateUpdate(ctx, update); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, e.deny(ctx, actor, inst, transitionID, "stale_state",
				dErrors.New(dErrors.CodeInvalidTransition, "instance state changed concurrently"))
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "workflow instance not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "instance store unavailable")
	}

	newState := toState.ID
	inst.CurrentStateID = &newState
	inst.Status = update.Status
	inst.CompletedAt = update.CompletedAt
	inst.UpdatedAt = now

	if e.metrics != nil {
		e.metrics.TransitionsExecuted.Inc()
		switch update.Status {
		case InstanceCompleted:
			e.metrics.InstancesCompleted.Inc()
		case InstanceFailed:
			e.metrics.InstancesFailed.Inc()
		}
	}
	e.emit(ctx, actor, audit.EventWorkflowTransition, "workflow_instance", inst.ID, "allowed", "", map[string]string{
		"transition_id": transition.ID,
		"from_state":    transition.FromStateID,
		"to_state":      toState.ID,
		"status":        string(update.Status),
	})

	var actions []Action
	actions = append(actions, fromState.OnExit...)
	actions = append(actions, toState.OnEnter...)
	e.fireActions(ctx, inst, actions)

	return &ExecuteResult{Instance: inst, Actions: actions}, nil
}

// Cancel flips an active instance to cancelled. History stays as it is.
func (e *Engine) Cancel(ctx context.Context, actor *access.Actor, instanceID string) error {
	if err := e.access.Require(ctx, actor, access.WorkflowCancel); err != nil {
		return err
	}

	e.locks.Lock(instanceID)
	defer e.locks.Unlock(instanceID)

	inst, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.TenantID != actor.TenantID && actor.Role != access.RoleSuperAdmin {
		return dErrors.New(dErrors.CodeNotFound, "workflow instance not found")
	}

	if err := e.store.CancelInstance(ctx, instanceID); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.Newf(dErrors.CodeInvalidTransition, "instance is %s, not active", inst.Status)
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "workflow instance not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "instance store unavailable")
	}

	e.emit(ctx, actor, audit.EventWorkflowCancelled, "workflow_instance", instanceID, "allowed", "", nil)
	return nil
}

func (e *Engine) GetInstance(ctx context.Context, actor *access.Actor, instanceID string) (*Instance, error) {
	if err := e.access.Require(ctx, actor, access.WorkflowRead); err != nil {
		return nil, err
	}
	inst, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.TenantID != actor.TenantID && actor.Role != access.RoleSuperAdmin {
		return nil, dErrors.New(dErrors.CodeNotFound, "workflow instance not found")
	}
	return inst, nil
}

func (e *Engine) History(ctx context.Context, actor *access.Actor, instanceID string) ([]*HistoryEntry, error) {
	if _, err := e.GetInstance(ctx, actor, instanceID); err != nil {
		return nil, err
	}
	entries, err := e.store.ListHistory(ctx, instanceID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "history store unavailable")
	}
	return entries, nil
}

// Approve records an approval response. Only the named approver, or a
// super_admin, may respond.
func (e *Engine) Approve(ctx context.Context, actor *access.Actor, instanceID, transitionID, comment string) error {
	return e.respond(ctx, actor, instanceID, transitionID, ApprovalApproved, comment)
}

// Reject records a rejection response under the same rules as Approve.
func (e *Engine) Reject(ctx context.Context, actor *access.Actor, instanceID, transitionID, comment string) error {
	return e.respond(ctx, actor, instanceID, transitionID, ApprovalRejected, comment)
}

func (e *Engine) respond(ctx context.Context, actor *access.Actor, instanceID, transitionID string, status ApprovalStatus, comment string) error {
	if err := e.access.Require(ctx, actor, access.WorkflowApprove); err != nil {
		return err
	}
	inst, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.TenantID != actor.TenantID && actor.Role != access.RoleSuperAdmin {
		return dErrors.New(dErrors.CodeNotFound, "workflow instance not found")
	}

	approvals, err := e.store.ListApprovals(ctx, instanceID, transitionID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "approval store unavailable")
	}

	var target *PendingApproval
	for _, a := range approvals {
		if a.ApproverID == actor.ID {
			target = a
			break
		}
	}
	if target == nil && actor.Role == access.RoleSuperAdmin {
		for _, a := range approvals {
			if a.Status == ApprovalPending {
				target = a
				break
			}
		}
	}
	if target == nil {
		return dErrors.New(dErrors.CodeForbidden, "forbidden")
	}
	if target.Status != ApprovalPending {
		return dErrors.New(dErrors.CodeInvalidTransition, "approval already responded")
	}

	now := requestcontext.Now(ctx)
	if err := e.store.UpdateApproval(ctx, target.ID, status, comment, now); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "approval not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "approval store unavailable")
	}

	e.emit(ctx, actor, audit.EventApprovalRecorded, "workflow_instance", instanceID, "allowed", "", map[string]string{
		"transition_id": transitionID,
		"approval_id":   target.ID,
		"response":      string(status),
	})
	return nil
}

// ensureApprovals creates the pending rows for the transition's approvers on
// first encounter and returns the current approved count. Creation is
// idempotent: an already-present row is left alone.
func (e *Engine) ensureApprovals(ctx context.Context, actor *access.Actor, inst *Instance, transition *Transition) (int, error) {
	approvals, err := e.store.ListApprovals(ctx, inst.ID, transition.ID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "approval store unavailable")
	}

	if len(approvals) == 0 {
		now := requestcontext.Now(ctx)
		for _, approverID := range transition.Approvers {
			a := &PendingApproval{
				ID:           uuid.NewString(),
				InstanceID:   inst.ID,
				TransitionID: transition.ID,
				ApproverID:   approverID,
				Status:       ApprovalPending,
				CreatedAt:    now,
			}
			if err := e.store.CreateApproval(ctx, a); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					continue
				}
				return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "approval store unavailable")
			}
			approvals = append(approvals, a)
		}
		if e.metrics != nil {
			e.metrics.ApprovalsRequested.Inc()
		}
		e.emit(ctx, actor, audit.EventApprovalRequested, "workflow_instance", inst.ID, "allowed", "", map[string]string{
			"transition_id": transition.ID,
			"approvers":     fmt.Sprintf("%d", len(transition.Approvers)),
		})
	}

	approved := 0
	for _, a := range approvals {
		if a.Status == ApprovalApproved {
			approved++
		}
	}
	return approved, nil
}

func (e *Engine) loadDefinition(ctx context.Context, definitionID string) (*Definition, error) {
	d, err := e.store.GetDefinition(ctx, definitionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "workflow definition not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "definition store unavailable")
	}
	return d, nil
}

func (e *Engine) loadInstance(ctx context.Context, instanceID string) (*Instance, error) {
	inst, err := e.store.GetInstance(ctx, instanceID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "workflow instance not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "instance store unavailable")
	}
	return inst, nil
}

// deny bumps the denied counter and audits the refusal before returning err.
func (e *Engine) deny(ctx context.Context, actor *access.Actor, inst *Instance, transitionID, guard string, err error) error {
	e.recordDenied(guard)
	e.emit(ctx, actor, audit.EventWorkflowTransition, "workflow_instance", inst.ID, "denied", guard, map[string]string{
		"transition_id": transitionID,
	})
	return err
}

func (e *Engine) recordDenied(guard string) {
	if e.metrics != nil {
		e.metrics.TransitionsDenied.WithLabelValues(guard).Inc()
	}
}

func (e *Engine) fireActions(ctx context.Context, inst *Instance, actions []Action) {
	if e.interpreter == nil {
		return
	}
	for _, action := range actions {
		if err := e.interpreter.Apply(ctx, inst, action); err != nil {
			e.logger.WarnContext(ctx, "workflow action failed",
				"instance_id", inst.ID, "action", string(action.Kind), "error", err)
		}
	}
}

func (e *Engine) emit(ctx context.Context, actor *access.Actor, eventType audit.EventType, resourceType, resourceID, decision, reason string, changes map[string]string) {
	if e.auditor == nil {
		return
	}
	event := audit.Event{
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Decision:     decision,
		Reason:       reason,
		Changes:      changes,
	}
	if actor != nil {
		event.ActorID = actor.ID
		event.TenantID = actor.TenantID
	}
	if err := e.auditor.Emit(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "audit emit failed", "event", eventType, "error", err)
	}
}
