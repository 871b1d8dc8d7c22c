package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/planner"
)

const defaultPollInterval = 500 * time.Millisecond

// ErrAlreadyRunning is returned when resuming a workflow that is running.
var ErrAlreadyRunning = errors.New("workflow is already running")

// WorkflowState is what the dispatcher knows about one workflow.
type WorkflowState struct {
	WorkflowID string                 `json:"workflow_id"`
	PlanID     string                 `json:"plan_id"`
	Running    bool                   `json:"running"`
	StartedAt  time.Time              `json:"started_at"`
	Result     *models.WorkflowResult `json:"result,omitempty"`
}

// DispatcherOptions configures a dispatcher.
type DispatcherOptions struct {
	// Workers is the number of concurrent workflows drained from the queue.
	// Defaults to 1.
	Workers int
	// PollInterval is how often idle workers re-check the queue.
	PollInterval time.Duration
	// RunnerConfig is applied to every dequeued plan.
	RunnerConfig models.RunnerConfig
}

// Dispatcher drains the execution queue and runs each plan on the engine.
// It also tracks workflows started directly through ExecutePlan or Resume so
// callers can query and cancel them by workflow id.
type Dispatcher struct {
	engine *Engine
	queue  *planner.ExecutionQueue
	opts   DispatcherOptions

	mu        sync.Mutex
	workflows map[string]*WorkflowState
	cancels   map[string]context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher. queue may be nil for API-only use.
func NewDispatcher(engine *Engine, queue *planner.ExecutionQueue, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Dispatcher{
		engine:    engine,
		queue:     queue,
		opts:      opts,
		workflows: make(map[string]*WorkflowState),
		cancels:   make(map[string]context.CancelFunc),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.queue == nil {
		return
	}
	d.startOnce.Do(func() {
		slog.Info("Dispatcher started", "workers", d.opts.Workers, "poll_interval", d.opts.PollInterval)
		for i := 0; i < d.opts.Workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx, i)
		}
	})
}

// Stop signals the workers and waits for in-flight workflows to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	log := slog.With("worker", id)
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
		}

		plan, ok := d.queue.Dequeue()
		if !ok {
			continue
		}
		log.Info("Dequeued plan", "plan_id", plan.PlanID, "steps", len(plan.Steps))
		if _, err := d.ExecutePlan(ctx, plan); err != nil {
			log.Error("Plan rejected", "plan_id", plan.PlanID, "error", err)
		}
	}
}

// ExecutePlan runs the plan synchronously under a cancellable context
// registered by workflow id. The returned error covers plan intake only;
// execution outcomes are in the result status.
func (d *Dispatcher) ExecutePlan(ctx context.Context, plan models.Plan) (models.WorkflowResult, error) {
	workflowID := uuid.NewString()
	runCtx := d.register(ctx, workflowID, plan.PlanID)
	defer d.release(workflowID)
	result, err := d.engine.Execute(runCtx, workflowID, plan, d.opts.RunnerConfig)
	return d.track(workflowID, result, err)
}

// StartPlan runs the plan in the background and returns its workflow id
// immediately. Progress is observable through Get and the event bus.
func (d *Dispatcher) StartPlan(ctx context.Context, plan models.Plan) string {
	workflowID := uuid.NewString()
	runCtx := d.register(ctx, workflowID, plan.PlanID)
	go func() {
		defer d.release(workflowID)
		result, err := d.engine.Execute(runCtx, workflowID, plan, d.opts.RunnerConfig)
		if _, err := d.track(workflowID, result, err); err != nil {
			slog.Error("Plan rejected", "workflow_id", workflowID, "plan_id", plan.PlanID, "error", err)
		}
	}()
	return workflowID
}

// Resume continues a checkpointed workflow under the dispatcher's tracking.
// ErrAlreadyRunning is returned when the workflow is currently tracked as
// running.
func (d *Dispatcher) Resume(ctx context.Context, plan models.Plan, cp models.WorkflowCheckpoint) (models.WorkflowResult, error) {
	if d.isRunning(cp.WorkflowID) {
		return models.WorkflowResult{}, ErrAlreadyRunning
	}
	runCtx := d.register(ctx, cp.WorkflowID, cp.PlanID)
	defer d.release(cp.WorkflowID)
	result, err := d.engine.Resume(runCtx, plan, cp)
	return d.track(cp.WorkflowID, result, err)
}

// StartResume resumes a checkpointed workflow in the background.
func (d *Dispatcher) StartResume(ctx context.Context, plan models.Plan, cp models.WorkflowCheckpoint) error {
	if d.isRunning(cp.WorkflowID) {
		return ErrAlreadyRunning
	}
	runCtx := d.register(ctx, cp.WorkflowID, cp.PlanID)
	go func() {
		defer d.release(cp.WorkflowID)
		result, err := d.engine.Resume(runCtx, plan, cp)
		if _, err := d.track(cp.WorkflowID, result, err); err != nil {
			slog.Error("Resume rejected", "workflow_id", cp.WorkflowID, "error", err)
		}
	}()
	return nil
}

// track records the engine outcome, dropping the entry on intake errors.
func (d *Dispatcher) track(workflowID string, result models.WorkflowResult, err error) (models.WorkflowResult, error) {
	if err != nil {
		d.drop(workflowID)
		return models.WorkflowResult{}, err
	}
	d.record(workflowID, result)
	return result, nil
}

// Cancel requests cancellation of a running workflow. Returns false when no
// running workflow has that id.
func (d *Dispatcher) Cancel(workflowID string) bool {
	d.mu.Lock()
	cancel, ok := d.cancels[workflowID]
	d.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Get returns the tracked state of a workflow.
func (d *Dispatcher) Get(workflowID string) (WorkflowState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.workflows[workflowID]
	if !ok {
		return WorkflowState{}, false
	}
	return *state, true
}

// List returns the tracked state of every known workflow.
func (d *Dispatcher) List() []WorkflowState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]WorkflowState, 0, len(d.workflows))
	for _, state := range d.workflows {
		out = append(out, *state)
	}
	return out
}

func (d *Dispatcher) isRunning(workflowID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.workflows[workflowID]
	return ok && state.Running
}

func (d *Dispatcher) register(ctx context.Context, workflowID, planID string) context.Context {
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.workflows[workflowID] = &WorkflowState{
		WorkflowID: workflowID,
		PlanID:     planID,
		Running:    true,
		StartedAt:  time.Now().UTC(),
	}
	d.cancels[workflowID] = cancel
	d.mu.Unlock()
	return runCtx
}

func (d *Dispatcher) record(workflowID string, result models.WorkflowResult) {
	d.mu.Lock()
	if state, ok := d.workflows[workflowID]; ok {
		state.Running = false
		state.Result = &result
	}
	d.mu.Unlock()
}

func (d *Dispatcher) drop(workflowID string) {
	d.mu.Lock()
	delete(d.workflows, workflowID)
	d.mu.Unlock()
}

// release disposes the cancel func once the workflow stops running.
func (d *Dispatcher) release(workflowID string) {
	d.mu.Lock()
	if cancel, ok := d.cancels[workflowID]; ok {
		cancel()
		delete(d.cancels, workflowID)
	}
	d.mu.Unlock()
}
