// Package workflow executes plans: it resolves the step dependency graph,
// dispatches tasks to agents with retry and backoff, persists checkpoints,
// and aggregates the outcome.
package workflow

import (
	"errors"
	"fmt"

	"github.com/maestro-ai/maestro/pkg/models"
)

// Sentinel errors for plan intake.
var (
	// ErrDependencyCycle means the plan's step graph is not acyclic.
	ErrDependencyCycle = errors.New("plan has a dependency cycle")

	// ErrUnknownDependency means a step references a step id that does not
	// exist in the plan.
	ErrUnknownDependency = errors.New("plan references an unknown step")
)

// task is the runtime shadow of one plan step.
type task struct {
	step  models.PlanStep
	order int // declaration index, used for ready-set tie-breaking
	state models.TaskState
}

// taskTable holds all tasks of one workflow keyed by step id.
type taskTable struct {
	tasks map[string]*task
	order []string
}

// newTaskTable parses the plan into a task table and rejects cycles using a
// Kahn topological pre-pass.
func newTaskTable(plan models.Plan) (*taskTable, error) {
	t := &taskTable{tasks: make(map[string]*task, len(plan.Steps))}
	for i, step := range plan.Steps {
		if _, dup := t.tasks[step.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate step id %s", ErrUnknownDependency, step.ID)
		}
		t.tasks[step.ID] = &task{
			step:  step,
			order: i,
			state: models.TaskState{Status: models.TaskPending},
		}
		t.order = append(t.order, step.ID)
	}

	indegree := make(map[string]int, len(t.tasks))
	dependents := make(map[string][]string, len(t.tasks))
	for id, tk := range t.tasks {
		for _, dep := range tk.step.Dependencies {
			if _, ok := t.tasks[dep]; !ok {
				return nil, fmt.Errorf("%w: step %s depends on %s", ErrUnknownDependency, id, dep)
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var queue []string
	for _, id := range t.order {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if visited != len(t.tasks) {
		return nil, ErrDependencyCycle
	}
	return t, nil
}

// get returns the task for a step id.
func (t *taskTable) get(id string) *task {
	return t.tasks[id]
}

// readyTasks returns the ids of ready tasks in declaration order.
func (t *taskTable) readyTasks() []string {
	var out []string
	for _, id := range t.order {
		if t.tasks[id].state.Status == models.TaskReady {
			out = append(out, id)
		}
	}
	return out
}

// countStatus returns how many tasks are in the given status.
func (t *taskTable) countStatus(status models.TaskStatus) int {
	n := 0
	for _, tk := range t.tasks {
		if tk.state.Status == status {
			n++
		}
	}
	return n
}

// promoteReady moves pending tasks whose dependencies are all completed to
// ready, in declaration order.
func (t *taskTable) promoteReady() {
	for _, id := range t.order {
		tk := t.tasks[id]
		if tk.state.Status != models.TaskPending {
			continue
		}
		allDone := true
		for _, dep := range tk.step.Dependencies {
			if t.tasks[dep].state.Status != models.TaskCompleted {
				allDone = false
				break
			}
		}
		if allDone {
			tk.state.Status = models.TaskReady
		}
	}
}

// skipDependents marks every task transitively dependent on id as skipped.
func (t *taskTable) skipDependents(id string) []string {
	var skipped []string
	affected := map[string]bool{id: true}
	changed := true
	for changed {
		changed = false
		for _, candidate := range t.order {
			tk := t.tasks[candidate]
			if affected[candidate] || tk.state.Status.Terminal() {
				continue
			}
			for _, dep := range tk.step.Dependencies {
				if affected[dep] {
					affected[candidate] = true
					tk.state.Status = models.TaskSkipped
					skipped = append(skipped, candidate)
					changed = true
					break
				}
			}
		}
	}
	return skipped
}

// skipNonTerminal marks every remaining non-terminal task as skipped and
// returns their ids in declaration order.
func (t *taskTable) skipNonTerminal() []string {
	var skipped []string
	for _, id := range t.order {
		tk := t.tasks[id]
		if !tk.state.Status.Terminal() {
			tk.state.Status = models.TaskSkipped
			skipped = append(skipped, id)
		}
	}
	return skipped
}

// snapshot returns a copy of all task states keyed by step id.
func (t *taskTable) snapshot() map[string]models.TaskState {
	out := make(map[string]models.TaskState, len(t.tasks))
	for id, tk := range t.tasks {
		out[id] = tk.state
	}
	return out
}

// byStatus returns the ids with the given status in declaration order.
func (t *taskTable) byStatus(status models.TaskStatus) []string {
	var out []string
	for _, id := range t.order {
		if t.tasks[id].state.Status == status {
			out = append(out, id)
		}
	}
	return out
}

// applyStates rehydrates prior task states from a checkpoint. Terminal
// states carry over as-is; every other task resets to pending with its
// attempt counter preserved, then readiness is recomputed from the
// dependency graph. A task that was running when the checkpoint was taken
// therefore comes back as ready.
func (t *taskTable) applyStates(prior map[string]models.TaskState) {
	for id, state := range prior {
		tk, ok := t.tasks[id]
		if !ok {
			continue
		}
		if state.Status.Terminal() {
			tk.state = state
			continue
		}
		state.Status = models.TaskPending
		state.StartedAt = nil
		tk.state = state
	}
	t.promoteReady()
}
