package models

import "time"

// TaskStatus is the runtime status of a workflow task.
type TaskStatus string

// Task status values. Terminal states are completed, skipped, and failed
// (after retries are exhausted).
const (
	TaskPending   TaskStatus = "pending"
	TaskReady     TaskStatus = "ready"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Terminal reports whether the status is terminal.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// WorkflowStatus is the aggregate outcome of one plan execution.
type WorkflowStatus string

// Workflow outcome values.
const (
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowPartial   WorkflowStatus = "partial"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
	WorkflowTimedOut  WorkflowStatus = "timed_out"
)

// ExecutionMode selects sequential or parallel task dispatch.
type ExecutionMode string

// Execution modes.
const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// TaskState is the runtime shadow of a plan step.
type TaskState struct {
	Status      TaskStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
}

// RunnerConfig snapshots the engine options for deterministic resume.
type RunnerConfig struct {
	Mode                 ExecutionMode `json:"mode"`
	Parallelism          int           `json:"parallelism,omitempty"`
	MaxRetries           int           `json:"max_retries"`
	TimeoutMs            int64         `json:"timeout_ms,omitempty"`
	ContinueOnFailure    bool          `json:"continue_on_failure,omitempty"`
	CheckpointIntervalMs int64         `json:"checkpoint_interval_ms,omitempty"`
}

// WorkflowCheckpoint is a durable snapshot of workflow state sufficient to
// resume execution.
type WorkflowCheckpoint struct {
	CheckpointID   string               `json:"checkpoint_id"`
	WorkflowID     string               `json:"workflow_id"`
	PlanID         string               `json:"plan_id"`
	CreatedAt      time.Time            `json:"created_at"`
	TaskStates     map[string]TaskState `json:"task_states"`
	NextReadyTasks []string             `json:"next_ready_tasks"`
	RunnerConfig   RunnerConfig         `json:"runner_config"`
}

// WorkflowResult is the aggregate returned by the engine.
type WorkflowResult struct {
	WorkflowID     string               `json:"workflow_id"`
	PlanID         string               `json:"plan_id"`
	Status         WorkflowStatus       `json:"status"`
	CompletedTasks []string             `json:"completed_tasks"`
	FailedTasks    []string             `json:"failed_tasks"`
	SkippedTasks   []string             `json:"skipped_tasks"`
	TaskStates     map[string]TaskState `json:"task_states"`
	Duration       time.Duration        `json:"duration"`
	Checkpoints    int                  `json:"checkpoints"`
}
