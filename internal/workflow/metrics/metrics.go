package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the workflow engine.
type Metrics struct {
	InstancesStarted    prometheus.Counter
	TransitionsExecuted prometheus.Counter
	TransitionsDenied   *prometheus.CounterVec
	ApprovalsRequested  prometheus.Counter
	InstancesCompleted  prometheus.Counter
	InstancesFailed     prometheus.Counter
}

// New creates and registers workflow metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		InstancesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_workflow_instances_started_total",
			Help: "Workflow instances started",
		}),
		TransitionsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_workflow_transitions_executed_total",
			Help: "Transitions executed successfully",
		}),
		TransitionsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_workflow_transitions_denied_total",
			Help: "Transitions refused by a guard",
		}, []string{"guard"}),
		ApprovalsRequested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_workflow_approvals_requested_total",
			Help: "Approval requests created for gated transitions",
		}),
		InstancesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_workflow_instances_completed_total",
			Help: "Instances that reached a final state",
		}),
		InstancesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_workflow_instances_failed_total",
			Help: "Instances that entered an error state",
		}),
	}
}
