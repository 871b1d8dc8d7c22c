package planner

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/models"
)

func intPointer(v int) *int { return &v }

func basicInput() models.PlannerInput {
	return models.PlannerInput{Request: "Build a REST API for task tracking"}
}

func stepTypes(plan models.Plan) []models.StepType {
	out := make([]models.StepType, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		out = append(out, s.Type)
	}
	return out
}

func TestCreatePlan_CanonicalSequence(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	plan, err := p.CreatePlan(basicInput())
	require.NoError(t, err)

	assert.NotEmpty(t, plan.PlanID)
	assert.Equal(t, []models.StepType{
		models.StepAnalysis, models.StepDesign, models.StepImplementation,
		models.StepQA, models.StepGovernance,
	}, stepTypes(plan))

	// Linear dependency chain with seq_N ids.
	require.Len(t, plan.Steps, 5)
	assert.Equal(t, "seq_1", plan.Steps[0].ID)
	assert.Empty(t, plan.Steps[0].Dependencies)
	for i := 1; i < len(plan.Steps); i++ {
		assert.Equal(t, []string{plan.Steps[i-1].ID}, plan.Steps[i].Dependencies)
	}

	assert.Equal(t, 285, plan.Metadata.EstimatedDuration)
	assert.Equal(t, "planner", plan.Metadata.Source)
	assert.False(t, plan.Metadata.CostSensitive)
}

func TestCreatePlan_InvalidInput(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	cases := []struct {
		name  string
		input models.PlannerInput
	}{
		{"empty request", models.PlannerInput{Request: "   "}},
		{"forbidden and allowed overlap", models.PlannerInput{
			Request: "x",
			Constraints: &models.PlanConstraints{
				ForbiddenAgents: []models.AgentID{models.AgentQA},
				AllowedAgents:   []models.AgentID{models.AgentQA, models.AgentDeveloper},
			},
		}},
		{"negative max duration", models.PlannerInput{
			Request:     "x",
			Constraints: &models.PlanConstraints{MaxDuration: intPointer(-1)},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.CreatePlan(tc.input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCreatePlan_SpeedPreferenceScalesDown(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	input := basicInput()
	input.Preferences = &models.PlanPreferences{PrioritizeSpeed: true}
	plan, err := p.CreatePlan(input)
	require.NoError(t, err)

	// 30·0.75=22.5 rounds up to 23.
	assert.Equal(t, 23, plan.Steps[0].EstimatedDuration)
	assert.Equal(t, 90, plan.Steps[2].EstimatedDuration)
	assert.Equal(t, 215, plan.Metadata.EstimatedDuration)
	assert.Len(t, plan.Steps, 5)
}

func TestCreatePlan_QualityPreferenceAddsReview(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	input := basicInput()
	input.Preferences = &models.PlanPreferences{PrioritizeQuality: true}
	plan, err := p.CreatePlan(input)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 6)
	last := plan.Steps[5]
	assert.Equal(t, models.StepReview, last.Type)
	assert.Equal(t, models.AgentDocs, last.Agent)

	// Review gates on the quality-assurance step, not on governance.
	require.Equal(t, models.StepQA, plan.Steps[3].Type)
	assert.Equal(t, []string{plan.Steps[3].ID}, last.Dependencies)
	assert.Equal(t, []string{plan.Steps[3].ID}, plan.Steps[4].Dependencies)
	// 30·1.25=37.5 rounds up to 38.
	assert.Equal(t, 38, plan.Steps[0].EstimatedDuration)
}

func TestCreatePlan_QualityWinsOverSpeed(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	input := basicInput()
	input.Preferences = &models.PlanPreferences{PrioritizeSpeed: true, PrioritizeQuality: true}
	plan, err := p.CreatePlan(input)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 6)
	assert.Equal(t, models.StepReview, plan.Steps[5].Type)
	assert.Equal(t, 150, plan.Steps[2].EstimatedDuration)
}

func TestCreatePlan_MinimizeCostMarksMetadata(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	input := basicInput()
	input.Preferences = &models.PlanPreferences{MinimizeCost: true}
	plan, err := p.CreatePlan(input)
	require.NoError(t, err)

	assert.True(t, plan.Metadata.CostSensitive)
	assert.Equal(t, 285, plan.Metadata.EstimatedDuration)
}

func TestCreatePlan_ForbiddenAgentRemap(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	input := basicInput()
	input.Constraints = &models.PlanConstraints{
		ForbiddenAgents: []models.AgentID{models.AgentDeveloper},
	}
	plan, err := p.CreatePlan(input)
	require.NoError(t, err)

	for _, step := range plan.Steps {
		assert.NotEqual(t, models.AgentDeveloper, step.Agent)
		if step.Type == models.StepImplementation {
			assert.Equal(t, models.AgentBrain, step.Agent)
		}
	}
}

func TestCreatePlan_ForbiddenWithoutSubstituteIsInfeasible(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	// qa's only substitute is developer; forbidding both leaves the
	// quality-assurance step without an agent.
	input := basicInput()
	input.Constraints = &models.PlanConstraints{
		ForbiddenAgents: []models.AgentID{models.AgentQA, models.AgentDeveloper},
	}
	_, err := p.CreatePlan(input)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestCreatePlan_AllowedAgentsRemap(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	input := basicInput()
	input.Constraints = &models.PlanConstraints{
		AllowedAgents: []models.AgentID{models.AgentBrain, models.AgentDeveloper},
	}
	plan, err := p.CreatePlan(input)
	require.NoError(t, err)

	for _, step := range plan.Steps {
		assert.Contains(t, []models.AgentID{models.AgentBrain, models.AgentDeveloper}, step.Agent)
	}
}

func TestCreatePlan_MaxDurationDropsOptionalSteps(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	input := basicInput()
	input.Constraints = &models.PlanConstraints{MaxDuration: intPointer(260)}
	plan, err := p.CreatePlan(input)
	require.NoError(t, err)

	// Governance (30 min) is dropped; 255 fits in 260.
	assert.Equal(t, []models.StepType{
		models.StepAnalysis, models.StepDesign, models.StepImplementation, models.StepQA,
	}, stepTypes(plan))
	assert.Equal(t, 255, plan.Metadata.EstimatedDuration)

	// Dependencies collapse over the removed step.
	last := plan.Steps[len(plan.Steps)-1]
	assert.Equal(t, []string{plan.Steps[len(plan.Steps)-2].ID}, last.Dependencies)
}

func TestCreatePlan_MaxDurationInfeasible(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	input := basicInput()
	input.Constraints = &models.PlanConstraints{MaxDuration: intPointer(100)}
	_, err := p.CreatePlan(input)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestCreatePlan_ZeroMaxDurationIsInfeasible(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	input := basicInput()
	input.Constraints = &models.PlanConstraints{MaxDuration: intPointer(0)}
	_, err := p.CreatePlan(input)
	assert.ErrorIs(t, err, ErrInfeasible)
	assert.NotErrorIs(t, err, ErrInvalidInput)
}

func TestCreatePlan_PublishesAndEnqueues(t *testing.T) {
	bus := events.NewBus()
	var mu sync.Mutex
	var created []events.Event
	bus.Subscribe(func(evt events.Event) {
		mu.Lock()
		defer mu.Unlock()
		created = append(created, evt)
	}, events.EventPlanCreated)

	queue := NewExecutionQueue(bus)
	p := NewPlanner(queue, bus, nil)

	plan, err := p.CreatePlan(basicInput())
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, created, 1)
	payload := created[0].Payload.(events.PlanPayload)
	mu.Unlock()
	assert.Equal(t, plan.PlanID, payload.PlanID)
	require.NotNil(t, payload.Plan)

	// The published plan is a clone; mutating it must not affect the queue.
	payload.Plan.Steps[0].Description = "mutated"
	queued, ok := queue.FindByPlanID(plan.PlanID)
	require.True(t, ok)
	assert.NotEqual(t, "mutated", queued.Steps[0].Description)
	assert.Equal(t, 1, queue.Size())
}

func TestCreatePlan_FailureEmitsNothing(t *testing.T) {
	bus := events.NewBus()
	var mu sync.Mutex
	count := 0
	bus.Subscribe(func(events.Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	queue := NewExecutionQueue(bus)
	p := NewPlanner(queue, bus, nil)

	_, err := p.CreatePlan(models.PlannerInput{Request: ""})
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
	assert.Zero(t, queue.Size())
}

func TestCreatePlan_DeterministicModuloIdentity(t *testing.T) {
	p := NewPlanner(nil, nil, nil)

	input := basicInput()
	input.Preferences = &models.PlanPreferences{PrioritizeQuality: true}

	first, err := p.CreatePlan(input)
	require.NoError(t, err)
	second, err := p.CreatePlan(input)
	require.NoError(t, err)

	assert.NotEqual(t, first.PlanID, second.PlanID)

	first.PlanID = ""
	second.PlanID = ""
	first.Metadata.CreatedAt = second.Metadata.CreatedAt
	assert.Equal(t, first, second)
}
