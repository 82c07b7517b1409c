package audit

import "time"

// EventType names the auditable actions in the core. The sink is append-only;
// the core writes these and never reads them back.
type EventType string

const (
	EventPermissionCheck     EventType = "access.permission_check"
	EventRoleAssigned        EventType = "access.role_assigned"
	EventWorkflowStarted     EventType = "workflow.instance_started"
	EventWorkflowTransition  EventType = "workflow.transition_executed"
	EventWorkflowCancelled   EventType = "workflow.instance_cancelled"
	EventApprovalRequested   EventType = "workflow.approval_requested"
	EventApprovalRecorded    EventType = "workflow.approval_recorded"
	EventRollupRecomputed    EventType = "rollup.recomputed"
	EventEvidenceLinked      EventType = "evidence.linked"
	EventEvidenceUnlinked    EventType = "evidence.unlinked"
	EventEvidenceReviewed    EventType = "evidence.reviewed"
	EventMeasureStatusEdited EventType = "measure.status_edited"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp    time.Time
	ActorID      string
	TenantID     string
	EventType    EventType
	ResourceType string
	ResourceID   string
	Decision     string
	Reason       string
	Changes      map[string]string
}
