package workflow

import "context"

// ActionKind is the closed set of side effects a state may declare. The
// engine never executes these itself; it hands them to the caller's
// interpreter after the transition commits, so the state machine stays
// data-driven.
type ActionKind string

const (
	// ActionRecomputeRollup asks the caller to recompute the bound entity's
	// derived status.
	ActionRecomputeRollup ActionKind = "recompute_rollup"
	// ActionNotify asks the caller to deliver a notification.
	ActionNotify ActionKind = "notify"
	// ActionSetField asks the caller to write a field on the bound entity.
	ActionSetField ActionKind = "set_field"
)

// Action is one opaque side-effect descriptor attached to a state's
// on-enter or on-exit hook.
type Action struct {
	Kind   ActionKind        `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
}

// Interpreter runs actions after a transition commits. Interpretation
// failures are logged, not propagated: the transition has already happened
// and must not be rolled back by a notification hiccup.
type Interpreter interface {
	Apply(ctx context.Context, instance *Instance, action Action) error
}
