package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maestro-ai/maestro/pkg/agent"
	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/models"
)

// Retry backoff bounds: min(retryBase · 2^(attempts-1), retryMax).
const (
	defaultRetryBase = 5 * time.Second
	defaultRetryMax  = 60 * time.Second
)

// Engine executes plans. The coordinator loop is single-threaded; task
// handlers run on goroutines and report back over a channel, so the engine
// observes one transition at a time.
type Engine struct {
	agents      *agent.Registry
	checkpoints *CheckpointManager
	bus         *events.Bus
	taskTimeout time.Duration
	retryBase   time.Duration
	retryMax    time.Duration
}

// EngineOptions configures an engine.
type EngineOptions struct {
	// TaskTimeout bounds one agent invocation. Zero disables the per-task
	// deadline.
	TaskTimeout time.Duration
}

// NewEngine creates an engine. checkpoints and bus may be nil.
func NewEngine(agents *agent.Registry, checkpoints *CheckpointManager, bus *events.Bus, opts EngineOptions) *Engine {
	return &Engine{
		agents:      agents,
		checkpoints: checkpoints,
		bus:         bus,
		taskTimeout: opts.TaskTimeout,
		retryBase:   defaultRetryBase,
		retryMax:    defaultRetryMax,
	}
}

// Execute runs the plan to a terminal configuration and returns the
// aggregate result. workflowID may be empty; one is assigned. The returned
// error is non-nil only for plan intake failures; execution outcomes are
// reported through the result status.
func (e *Engine) Execute(ctx context.Context, workflowID string, plan models.Plan, cfg models.RunnerConfig) (models.WorkflowResult, error) {
	return e.run(ctx, workflowID, plan, cfg, nil)
}

// Resume continues a workflow from a checkpoint. Completed tasks are
// skipped; tasks that were running when the checkpoint was taken are
// re-dispatched with their attempt counters preserved.
func (e *Engine) Resume(ctx context.Context, plan models.Plan, cp models.WorkflowCheckpoint) (models.WorkflowResult, error) {
	return e.run(ctx, cp.WorkflowID, plan, cp.RunnerConfig, cp.TaskStates)
}

// taskOutcome is one handler completion reported to the coordinator.
type taskOutcome struct {
	id     string
	result agent.Result
	err    error
}

// execution is the mutable state of one workflow run, owned by the
// coordinator goroutine.
type execution struct {
	engine     *Engine
	workflowID string
	channel    string
	plan       models.Plan
	cfg        models.RunnerConfig
	table      *taskTable
	saver      *checkpointSaver
	log        *slog.Logger

	parent         context.Context
	ctx            context.Context
	resultsCh      chan taskOutcome
	retryCh        chan string
	slots          int
	running        int
	pendingRetries int
	cancelled      bool
	timedOut       bool
}

func (e *Engine) run(parent context.Context, workflowID string, plan models.Plan, cfg models.RunnerConfig, prior map[string]models.TaskState) (models.WorkflowResult, error) {
	table, err := newTaskTable(plan)
	if err != nil {
		return models.WorkflowResult{}, err
	}
	if workflowID == "" {
		workflowID = uuid.NewString()
	}
	if prior != nil {
		table.applyStates(prior)
	} else {
		table.promoteReady()
	}

	ctx := parent
	if cfg.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, time.Duration(cfg.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	slots := 1
	if cfg.Mode == models.ModeParallel {
		slots = cfg.Parallelism
		if slots <= 0 {
			slots = 4
		}
	}

	x := &execution{
		engine:     e,
		workflowID: workflowID,
		channel:    events.WorkflowChannel(workflowID),
		plan:       plan,
		cfg:        cfg,
		table:      table,
		saver:      e.newCheckpointSaver(workflowID, plan.PlanID, cfg, table),
		log:        slog.With("workflow_id", workflowID, "plan_id", plan.PlanID),
		parent:     parent,
		ctx:        ctx,
		resultsCh:  make(chan taskOutcome),
		retryCh:    make(chan string),
		slots:      slots,
	}

	x.log.Info("Workflow started", "tasks", len(plan.Steps), "mode", cfg.Mode)
	e.publish(x.channel, events.EventWorkflowStarted, events.WorkflowPayload{
		WorkflowID: workflowID,
		PlanID:     plan.PlanID,
	})

	start := time.Now()
	x.loop()
	return x.finalize(start), nil
}

// loop drives the workflow to a terminal configuration.
func (x *execution) loop() {
	done := x.ctx.Done()
	x.dispatch()

	for x.running > 0 || x.pendingRetries > 0 || len(x.table.readyTasks()) > 0 {
		if (x.cancelled || x.timedOut) && x.running == 0 && x.pendingRetries == 0 {
			return
		}
		select {
		case out := <-x.resultsCh:
			x.running--
			x.handleOutcome(out)

		case id := <-x.retryCh:
			x.pendingRetries--
			if !x.cancelled && !x.timedOut {
				x.table.get(id).state.Status = models.TaskReady
			}

		case <-done:
			done = nil
			x.markInterrupted()
		}
		if !x.cancelled && !x.timedOut {
			x.dispatch()
		}
	}
}

// dispatch starts ready tasks up to the slot limit, in declaration order.
func (x *execution) dispatch() {
	for x.running < x.slots {
		ready := x.table.readyTasks()
		if len(ready) == 0 {
			return
		}
		id := ready[0]
		tk := x.table.get(id)
		now := time.Now().UTC()
		tk.state.Status = models.TaskRunning
		tk.state.StartedAt = &now

		x.publishTask(events.EventWorkflowTaskStarted, tk, events.TaskPayload{
			Status:   models.TaskRunning,
			Attempts: tk.state.Attempts,
		})
		x.running++
		go x.engine.runTask(x.ctx, x.workflowID, x.plan, tk.step, tk.state.Attempts, x.resultsCh)
	}
}

// handleOutcome applies one task completion to the table.
func (x *execution) handleOutcome(out taskOutcome) {
	tk := x.table.get(out.id)
	now := time.Now().UTC()

	if out.err == nil {
		tk.state.Status = models.TaskCompleted
		tk.state.CompletedAt = &now
		tk.state.Result = out.result.Output
		tk.state.LastError = ""
		tk.state.ErrorKind = ""
		x.publishTask(events.EventWorkflowTaskCompleted, tk, events.TaskPayload{
			Status:   models.TaskCompleted,
			Attempts: tk.state.Attempts,
		})
		x.table.promoteReady()
		x.saver.save(false)
		return
	}

	kind := classifyTaskError(out.err)
	tk.state.Attempts++
	tk.state.LastError = out.err.Error()
	tk.state.ErrorKind = kind

	retryable := kind != "Cancelled" && kind != "AgentNotFound" &&
		!x.cancelled && !x.timedOut && x.ctx.Err() == nil

	if retryable && tk.state.Attempts <= x.cfg.MaxRetries {
		delay := x.engine.backoff(tk.state.Attempts)
		tk.state.Status = models.TaskPending
		x.log.Warn("Task failed, retrying", "task_id", out.id,
			"attempts", tk.state.Attempts, "delay", delay, "error", out.err)
		x.publishTask(events.EventWorkflowTaskRetried, tk, events.TaskPayload{
			Status:    models.TaskPending,
			Attempts:  tk.state.Attempts,
			Error:     out.err.Error(),
			ErrorKind: kind,
			RetryInMs: delay.Milliseconds(),
		})
		x.pendingRetries++
		go func(id string) {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-x.ctx.Done():
			case <-timer.C:
			}
			x.retryCh <- id
		}(out.id)
		return
	}

	tk.state.Status = models.TaskFailed
	tk.state.CompletedAt = &now
	x.log.Error("Task failed permanently", "task_id", out.id,
		"attempts", tk.state.Attempts, "error_kind", kind, "error", out.err)
	x.publishTask(events.EventWorkflowTaskFailed, tk, events.TaskPayload{
		Status:    models.TaskFailed,
		Attempts:  tk.state.Attempts,
		Error:     out.err.Error(),
		ErrorKind: kind,
	})

	if kind == "Cancelled" || !x.cfg.ContinueOnFailure {
		skipped := x.table.skipDependents(out.id)
		if len(skipped) > 0 {
			x.log.Info("Skipped dependent tasks", "task_id", out.id, "skipped", skipped)
		}
	}
	x.saver.save(false)
}

// markInterrupted classifies a run context expiry as timeout or cancel.
func (x *execution) markInterrupted() {
	if x.cancelled || x.timedOut {
		return
	}
	if errors.Is(x.ctx.Err(), context.DeadlineExceeded) && x.parent.Err() == nil {
		x.timedOut = true
		x.log.Warn("Workflow timed out, draining running tasks")
	} else {
		x.cancelled = true
		x.log.Warn("Workflow cancelled, draining running tasks")
	}
}

// finalize marks leftovers, writes the final checkpoint, and aggregates.
func (x *execution) finalize(start time.Time) models.WorkflowResult {
	// The last outcome can race the context expiry out of the loop. A fully
	// completed workflow still counts as completed.
	if x.ctx.Err() != nil && x.table.countStatus(models.TaskCompleted) != len(x.table.tasks) {
		x.markInterrupted()
	}
	if skipped := x.table.skipNonTerminal(); len(skipped) > 0 && !x.cancelled && !x.timedOut {
		// Tasks left pending behind a failed dependency under
		// continueOnFailure can never run.
		x.log.Info("Skipped unrunnable tasks", "tasks", skipped)
	}

	// The final checkpoint always completes before the engine returns.
	x.saver.save(true)

	result := models.WorkflowResult{
		WorkflowID:     x.workflowID,
		PlanID:         x.plan.PlanID,
		CompletedTasks: x.table.byStatus(models.TaskCompleted),
		FailedTasks:    x.table.byStatus(models.TaskFailed),
		SkippedTasks:   x.table.byStatus(models.TaskSkipped),
		TaskStates:     x.table.snapshot(),
		Duration:       time.Since(start),
		Checkpoints:    x.saver.saved,
	}
	switch {
	case x.cancelled:
		result.Status = models.WorkflowCancelled
	case x.timedOut:
		result.Status = models.WorkflowTimedOut
	case len(result.FailedTasks) == 0:
		result.Status = models.WorkflowCompleted
	case len(result.CompletedTasks) > 0:
		result.Status = models.WorkflowPartial
	default:
		result.Status = models.WorkflowFailed
	}

	eventType := events.EventWorkflowCompleted
	switch result.Status {
	case models.WorkflowFailed, models.WorkflowCancelled, models.WorkflowTimedOut:
		eventType = events.EventWorkflowFailed
	}
	x.engine.publish(x.channel, eventType, events.WorkflowPayload{
		WorkflowID:     x.workflowID,
		PlanID:         x.plan.PlanID,
		Status:         result.Status,
		CompletedTasks: result.CompletedTasks,
		FailedTasks:    result.FailedTasks,
		SkippedTasks:   result.SkippedTasks,
		DurationMs:     result.Duration.Milliseconds(),
		Checkpoints:    result.Checkpoints,
	})
	x.log.Info("Workflow finished", "status", result.Status,
		"completed", len(result.CompletedTasks), "failed", len(result.FailedTasks),
		"skipped", len(result.SkippedTasks), "duration", result.Duration)
	return result
}

func (x *execution) publishTask(eventType string, tk *task, payload events.TaskPayload) {
	payload.WorkflowID = x.workflowID
	payload.PlanID = x.plan.PlanID
	payload.TaskID = tk.step.ID
	payload.Agent = tk.step.Agent
	x.engine.publish(x.channel, eventType, payload)
}

// runTask resolves the agent and invokes it with the per-task deadline.
func (e *Engine) runTask(ctx context.Context, workflowID string, plan models.Plan, step models.PlanStep, attempt int, out chan<- taskOutcome) {
	handler, err := e.agents.Resolve(step.Agent)
	if err != nil {
		out <- taskOutcome{id: step.ID, err: err}
		return
	}

	taskCtx := ctx
	if e.taskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, e.taskTimeout)
		defer cancel()
	}

	result, err := handler.Handle(taskCtx, agent.Task{
		TaskID:        step.ID,
		WorkflowID:    workflowID,
		PlanID:        plan.PlanID,
		Step:          step,
		Attempt:       attempt + 1,
		CostSensitive: plan.Metadata.CostSensitive,
	})
	if err == nil && !result.Success {
		err = fmt.Errorf("agent %s reported failure for task %s", step.Agent, step.ID)
	}
	out <- taskOutcome{id: step.ID, result: result, err: err}
}

// backoff returns min(retryBase · 2^(attempts-1), retryMax).
func (e *Engine) backoff(attempts int) time.Duration {
	d := e.retryBase << (attempts - 1)
	if d > e.retryMax || d <= 0 {
		return e.retryMax
	}
	return d
}

// classifyTaskError maps a handler error to the error-taxonomy label kept on
// the task state.
func classifyTaskError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	case errors.Is(err, agent.ErrAgentNotFound):
		return "AgentNotFound"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, llm.ErrTimeout):
		return "Timeout"
	case errors.Is(err, llm.ErrProvider), errors.Is(err, llm.ErrTransient),
		errors.Is(err, llm.ErrRateLimitTimeout), errors.Is(err, llm.ErrCircuitOpen),
		errors.Is(err, llm.ErrNoProviders):
		return llm.Kind(err)
	default:
		return "AgentFailure"
	}
}

func (e *Engine) publish(channel, eventType string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.PublishTo(channel, eventType, "workflow", payload)
}

// checkpointSaver throttles checkpoint writes to one per interval, except
// for the final write.
type checkpointSaver struct {
	engine     *Engine
	workflowID string
	planID     string
	cfg        models.RunnerConfig
	table      *taskTable
	interval   time.Duration
	lastSave   time.Time
	seq        int
	saved      int
}

func (e *Engine) newCheckpointSaver(workflowID, planID string, cfg models.RunnerConfig, table *taskTable) *checkpointSaver {
	s := &checkpointSaver{
		engine:     e,
		workflowID: workflowID,
		planID:     planID,
		cfg:        cfg,
		table:      table,
		interval:   time.Duration(cfg.CheckpointIntervalMs) * time.Millisecond,
	}
	if e.checkpoints != nil {
		// Resumed workflows continue the existing sequence.
		if ids, err := e.checkpoints.List(workflowID); err == nil {
			s.seq = len(ids)
		}
	}
	return s
}

func (s *checkpointSaver) save(final bool) {
	if s.engine.checkpoints == nil {
		return
	}
	if !final && s.interval > 0 && time.Since(s.lastSave) < s.interval {
		return
	}

	s.seq++
	cp := models.WorkflowCheckpoint{
		CheckpointID:   fmt.Sprintf("cp_%04d", s.seq),
		WorkflowID:     s.workflowID,
		PlanID:         s.planID,
		CreatedAt:      time.Now().UTC(),
		TaskStates:     s.table.snapshot(),
		NextReadyTasks: s.table.readyTasks(),
		RunnerConfig:   s.cfg,
	}
	if err := s.engine.checkpoints.Save(cp); err != nil {
		slog.Warn("Checkpoint write failed, continuing",
			"workflow_id", s.workflowID, "checkpoint_id", cp.CheckpointID, "error", err)
		s.seq--
		return
	}
	s.lastSave = time.Now()
	s.saved++
	s.engine.publish(events.WorkflowChannel(s.workflowID), events.EventWorkflowCheckpoint, events.CheckpointPayload{
		WorkflowID:   s.workflowID,
		CheckpointID: cp.CheckpointID,
		TaskCount:    len(cp.TaskStates),
	})
}
