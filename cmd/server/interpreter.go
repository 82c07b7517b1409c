package main

import (
	"context"
	"log/slog"

	"conforma/internal/compliance/rollup"
	"conforma/internal/workflow"
)

// actionInterpreter runs the side effects a committed transition declares.
// recompute_rollup is the one with teeth: it re-derives statuses for the
// entity the instance is bound to.
type actionInterpreter struct {
	rollup *rollup.Engine
	logger *slog.Logger
}

func (i *actionInterpreter) Apply(ctx context.Context, inst *workflow.Instance, action workflow.Action) error {
	switch action.Kind {
	case workflow.ActionRecomputeRollup:
		switch inst.EntityType {
		case "compliance_record":
			_, _, err := i.rollup.RecalculateRecord(ctx, inst.EntityID)
			return err
		case "control_measure":
			_, _, err := i.rollup.RecalculateMeasure(ctx, inst.EntityID)
			return err
		default:
			i.logger.DebugContext(ctx, "rollup action on non-compliance entity skipped",
				"entity_type", inst.EntityType, "entity_id", inst.EntityID)
			return nil
		}
	case workflow.ActionNotify:
		// Delivery is out of scope for the core; the audit trail and logs
		// are the notification surface.
		i.logger.InfoContext(ctx, "workflow notification",
			"instance_id", inst.ID, "recipient", action.Params["recipient"], "template", action.Params["template"])
		return nil
	case workflow.ActionSetField:
		if inst.Context == nil {
			inst.Context = make(map[string]any)
		}
		inst.Context[action.Params["field"]] = action.Params["value"]
		return nil
	default:
		i.logger.WarnContext(ctx, "unknown workflow action", "kind", string(action.Kind))
		return nil
	}
}
