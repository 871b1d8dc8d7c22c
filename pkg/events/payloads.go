package events

import "github.com/maestro-ai/maestro/pkg/models"

// PlanPayload is the payload for plan.created, plan.enqueued, plan.dequeued,
// and plan.removed events. The plan is a deep clone — subscribers own it.
type PlanPayload struct {
	PlanID    string       `json:"plan_id"`
	StepCount int          `json:"step_count"`
	QueueSize int          `json:"queue_size,omitempty"`
	Plan      *models.Plan `json:"plan,omitempty"`
}

// QueueClearedPayload is the payload for queue.cleared events.
type QueueClearedPayload struct {
	Removed int `json:"removed"`
}

// WorkflowPayload is the payload for workflow.started, workflow.completed,
// and workflow.failed events.
type WorkflowPayload struct {
	WorkflowID     string                `json:"workflow_id"`
	PlanID         string                `json:"plan_id"`
	Status         models.WorkflowStatus `json:"status,omitempty"`
	CompletedTasks []string              `json:"completed_tasks,omitempty"`
	FailedTasks    []string              `json:"failed_tasks,omitempty"`
	SkippedTasks   []string              `json:"skipped_tasks,omitempty"`
	DurationMs     int64                 `json:"duration_ms,omitempty"`
	Checkpoints    int                   `json:"checkpoints,omitempty"`
}

// TaskPayload is the payload for workflow.task.* events.
type TaskPayload struct {
	WorkflowID string            `json:"workflow_id"`
	PlanID     string            `json:"plan_id"`
	TaskID     string            `json:"task_id"`
	Agent      models.AgentID    `json:"agent"`
	Status     models.TaskStatus `json:"status"`
	Attempts   int               `json:"attempts,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  string            `json:"error_kind,omitempty"`
	RetryInMs  int64             `json:"retry_in_ms,omitempty"`
}

// CheckpointPayload is the payload for workflow.checkpoint events.
type CheckpointPayload struct {
	WorkflowID   string `json:"workflow_id"`
	CheckpointID string `json:"checkpoint_id"`
	TaskCount    int    `json:"task_count"`
}

// MemoryPayload is the payload for memory.stored, memory.updated, and
// memory.deleted events.
type MemoryPayload struct {
	RecordID string         `json:"record_id"`
	Key      string         `json:"key,omitempty"`
	Category string         `json:"category,omitempty"`
	Agent    models.AgentID `json:"agent"`
}

// ProviderPayload is the payload for provider.request, provider.response,
// and provider.error events.
type ProviderPayload struct {
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FailoverPayload is the payload for provider.failover events.
type FailoverPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// RateLimitPayload is the payload for provider.rateLimit.* events.
type RateLimitPayload struct {
	Provider  string  `json:"provider"`
	Requested float64 `json:"requested"`
	Available float64 `json:"available"`
}

// CircuitPayload is the payload for provider.circuit.opened and
// provider.circuit.closed events.
type CircuitPayload struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
	Failures int    `json:"failures,omitempty"`
}
