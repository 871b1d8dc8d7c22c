// Package events provides the in-process typed event bus and the WebSocket
// fan-out used to stream events to external subscribers.
//
// Every significant state change in the planner, execution queue, workflow
// engine, provider registry, and memory repository publishes one of the event
// types below. Delivery to bus subscribers is synchronous and preserves the
// publish order of each emitting component; the WebSocket layer consumes the
// bus through a buffered subscription so slow clients never stall publishers.
package events

// Planner and execution queue events.
const (
	EventPlanCreated  = "plan.created"
	EventPlanEnqueued = "plan.enqueued"
	EventPlanDequeued = "plan.dequeued"
	EventPlanRemoved  = "plan.removed"
	EventQueueCleared = "queue.cleared"
)

// Workflow engine events.
const (
	EventWorkflowStarted       = "workflow.started"
	EventWorkflowTaskStarted   = "workflow.task.started"
	EventWorkflowTaskCompleted = "workflow.task.completed"
	EventWorkflowTaskFailed    = "workflow.task.failed"
	EventWorkflowTaskRetried   = "workflow.task.retried"
	EventWorkflowCheckpoint    = "workflow.checkpoint"
	EventWorkflowCompleted     = "workflow.completed"
	EventWorkflowFailed        = "workflow.failed"
)

// Memory repository events.
const (
	EventMemoryStored  = "memory.stored"
	EventMemoryUpdated = "memory.updated"
	EventMemoryDeleted = "memory.deleted"
)

// Provider registry events.
const (
	EventProviderRequest           = "provider.request"
	EventProviderResponse          = "provider.response"
	EventProviderFailover          = "provider.failover"
	EventProviderError             = "provider.error"
	EventProviderRateLimitConsumed = "provider.rateLimit.consumed"
	EventProviderRateLimitExceeded = "provider.rateLimit.exceeded"
	EventProviderRateLimitTimeout  = "provider.rateLimit.timeout"
	EventProviderCircuitOpened     = "provider.circuit.opened"
	EventProviderCircuitClosed     = "provider.circuit.closed"
)

// GlobalChannel receives every event regardless of workflow affinity.
// WebSocket clients subscribe to it for a firehose view.
const GlobalChannel = "global"

// WorkflowChannel returns the channel name for a specific workflow's events.
// Format: "workflow:{workflow_id}"
func WorkflowChannel(workflowID string) string {
	return "workflow:" + workflowID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action  string `json:"action"`            // "subscribe", "unsubscribe", "ping"
	Channel string `json:"channel,omitempty"` // e.g. "workflow:abc-123" or "global"
}
