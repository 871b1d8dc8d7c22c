package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/models"
)

// step builds a plan step with the given dependencies.
func step(id string, deps ...string) models.PlanStep {
	return models.PlanStep{
		ID:           id,
		Type:         models.StepImplementation,
		Agent:        models.AgentDeveloper,
		Description:  "work on " + id,
		Dependencies: deps,
	}
}

func planOf(steps ...models.PlanStep) models.Plan {
	return models.Plan{PlanID: "plan-1", Steps: steps}
}

func TestNewTaskTable_RejectsCycle(t *testing.T) {
	_, err := newTaskTable(planOf(
		step("a", "c"),
		step("b", "a"),
		step("c", "b"),
	))
	assert.ErrorIs(t, err, ErrDependencyCycle)
}

func TestNewTaskTable_RejectsSelfDependency(t *testing.T) {
	_, err := newTaskTable(planOf(step("a", "a")))
	assert.ErrorIs(t, err, ErrDependencyCycle)
}

func TestNewTaskTable_RejectsUnknownDependency(t *testing.T) {
	_, err := newTaskTable(planOf(step("a"), step("b", "ghost")))
	assert.ErrorIs(t, err, ErrUnknownDependency)
}

func TestNewTaskTable_RejectsDuplicateStepID(t *testing.T) {
	_, err := newTaskTable(planOf(step("a"), step("a")))
	assert.Error(t, err)
}

func TestPromoteReady_FollowsDependencyOrder(t *testing.T) {
	table, err := newTaskTable(planOf(
		step("a"),
		step("b", "a"),
		step("c"),
	))
	require.NoError(t, err)

	table.promoteReady()
	assert.Equal(t, []string{"a", "c"}, table.readyTasks())

	table.get("a").state.Status = models.TaskCompleted
	table.promoteReady()
	assert.Equal(t, []string{"b", "c"}, table.readyTasks())
}

func TestSkipDependents_IsTransitive(t *testing.T) {
	table, err := newTaskTable(planOf(
		step("a"),
		step("b", "a"),
		step("c", "b"),
		step("d"),
	))
	require.NoError(t, err)
	table.promoteReady()
	table.get("a").state.Status = models.TaskFailed

	skipped := table.skipDependents("a")
	assert.ElementsMatch(t, []string{"b", "c"}, skipped)
	assert.Equal(t, models.TaskSkipped, table.get("b").state.Status)
	assert.Equal(t, models.TaskSkipped, table.get("c").state.Status)
	assert.Equal(t, models.TaskReady, table.get("d").state.Status)
}

func TestApplyStates_RehydratesFromCheckpoint(t *testing.T) {
	table, err := newTaskTable(planOf(
		step("a"),
		step("b", "a"),
		step("c", "b"),
	))
	require.NoError(t, err)

	now := time.Now().UTC()
	table.applyStates(map[string]models.TaskState{
		"a": {Status: models.TaskCompleted, CompletedAt: &now, Result: "done"},
		"b": {Status: models.TaskRunning, Attempts: 2, StartedAt: &now},
		"c": {Status: models.TaskPending},
	})

	// Completed states carry over verbatim.
	assert.Equal(t, models.TaskCompleted, table.get("a").state.Status)
	assert.Equal(t, "done", table.get("a").state.Result)

	// A task caught mid-flight comes back as ready with attempts preserved.
	b := table.get("b").state
	assert.Equal(t, models.TaskReady, b.Status)
	assert.Equal(t, 2, b.Attempts)
	assert.Nil(t, b.StartedAt)

	// Readiness is recomputed from the graph, not the checkpoint.
	assert.Equal(t, models.TaskPending, table.get("c").state.Status)
	assert.Equal(t, 1, table.countStatus(models.TaskCompleted))
}

func TestApplyStates_IgnoresUnknownStepIDs(t *testing.T) {
	table, err := newTaskTable(planOf(step("a")))
	require.NoError(t, err)

	table.applyStates(map[string]models.TaskState{
		"ghost": {Status: models.TaskCompleted},
	})
	assert.Equal(t, []string{"a"}, table.readyTasks())
}
