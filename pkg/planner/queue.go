package planner

import (
	"sync"

	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/models"
)

// ExecutionQueue is the FIFO hand-off between the planner and the workflow
// engine. Insertion order is preserved globally. Every plan crossing the
// queue boundary is a deep clone, so neither producers nor consumers can
// mutate shared state.
type ExecutionQueue struct {
	mu    sync.Mutex
	plans []models.Plan
	bus   *events.Bus
}

// NewExecutionQueue creates an empty queue. bus may be nil.
func NewExecutionQueue(bus *events.Bus) *ExecutionQueue {
	return &ExecutionQueue{bus: bus}
}

// Enqueue pushes a clone of the plan at the tail.
func (q *ExecutionQueue) Enqueue(plan models.Plan) {
	q.mu.Lock()
	q.plans = append(q.plans, plan.Clone())
	size := len(q.plans)
	q.mu.Unlock()

	q.publish(events.EventPlanEnqueued, plan.PlanID, len(plan.Steps), size)
}

// Dequeue pops the head plan. Returns false when the queue is empty.
func (q *ExecutionQueue) Dequeue() (models.Plan, bool) {
	q.mu.Lock()
	if len(q.plans) == 0 {
		q.mu.Unlock()
		return models.Plan{}, false
	}
	plan := q.plans[0]
	q.plans = q.plans[1:]
	size := len(q.plans)
	q.mu.Unlock()

	q.publish(events.EventPlanDequeued, plan.PlanID, len(plan.Steps), size)
	return plan.Clone(), true
}

// Peek returns a clone of the head plan without removing it.
func (q *ExecutionQueue) Peek() (models.Plan, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.plans) == 0 {
		return models.Plan{}, false
	}
	return q.plans[0].Clone(), true
}

// List returns clones of all queued plans in FIFO order.
func (q *ExecutionQueue) List() []models.Plan {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Plan, len(q.plans))
	for i := range q.plans {
		out[i] = q.plans[i].Clone()
	}
	return out
}

// Size returns the number of queued plans.
func (q *ExecutionQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.plans)
}

// FindByPlanID returns a clone of the queued plan with the given id.
func (q *ExecutionQueue) FindByPlanID(planID string) (models.Plan, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.plans {
		if q.plans[i].PlanID == planID {
			return q.plans[i].Clone(), true
		}
	}
	return models.Plan{}, false
}

// RemoveByPlanID removes the queued plan with the given id.
func (q *ExecutionQueue) RemoveByPlanID(planID string) bool {
	q.mu.Lock()
	removed := false
	steps := 0
	size := 0
	for i := range q.plans {
		if q.plans[i].PlanID == planID {
			steps = len(q.plans[i].Steps)
			q.plans = append(q.plans[:i], q.plans[i+1:]...)
			removed = true
			size = len(q.plans)
			break
		}
	}
	q.mu.Unlock()

	if removed {
		q.publish(events.EventPlanRemoved, planID, steps, size)
	}
	return removed
}

// Clear removes every queued plan and reports how many were dropped.
func (q *ExecutionQueue) Clear() int {
	q.mu.Lock()
	removed := len(q.plans)
	q.plans = nil
	q.mu.Unlock()

	if q.bus != nil {
		q.bus.Publish(events.EventQueueCleared, "queue", events.QueueClearedPayload{Removed: removed})
	}
	return removed
}

func (q *ExecutionQueue) publish(eventType, planID string, stepCount, queueSize int) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(eventType, "queue", events.PlanPayload{
		PlanID:    planID,
		StepCount: stepCount,
		QueueSize: queueSize,
	})
}
