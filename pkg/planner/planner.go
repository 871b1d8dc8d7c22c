package planner

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/models"
)

// planVersion stamps generated plans for the on-disk schema.
const planVersion = "1.0"

// Sentinel errors for plan synthesis.
var (
	// ErrInvalidInput rejects malformed planner input.
	ErrInvalidInput = errors.New("invalid planner input")

	// ErrInfeasible means no plan satisfies the given constraints.
	ErrInfeasible = errors.New("constraints make the plan infeasible")
)

// Planner turns a PlannerInput into a Plan: canonical step sequence,
// preference multipliers, agent remapping, and duration trimming, in that
// order. On success the plan is published and enqueued; on failure nothing
// is emitted.
type Planner struct {
	queue  *ExecutionQueue
	bus    *events.Bus
	output *OutputWriter
	now    func() time.Time
}

// NewPlanner creates a planner. bus and output may be nil.
func NewPlanner(queue *ExecutionQueue, bus *events.Bus, output *OutputWriter) *Planner {
	return &Planner{
		queue:  queue,
		bus:    bus,
		output: output,
		now:    time.Now,
	}
}

// CreatePlan synthesizes a plan from the input. Fails with ErrInvalidInput
// or ErrInfeasible; on failure no event is published and nothing is
// enqueued.
func (p *Planner) CreatePlan(input models.PlannerInput) (models.Plan, error) {
	if err := validateInput(input); err != nil {
		return models.Plan{}, err
	}

	prefs := models.PlanPreferences{}
	if input.Preferences != nil {
		prefs = *input.Preferences
	}
	constraints := models.PlanConstraints{}
	if input.Constraints != nil {
		constraints = *input.Constraints
	}

	templates := append([]stepTemplate(nil), canonicalSteps...)
	factor := 1.0
	switch {
	case prefs.PrioritizeQuality:
		// Quality wins over speed when both are set.
		factor = 1.25
		templates = append(templates, reviewStep)
	case prefs.PrioritizeSpeed:
		factor = 0.75
	}

	steps := make([]models.PlanStep, 0, len(templates))
	for _, tpl := range templates {
		steps = append(steps, models.PlanStep{
			Type:              tpl.Type,
			Agent:             tpl.Agent,
			Description:       tpl.Description,
			EstimatedDuration: scaleDuration(tpl.Duration, factor),
			Complexity:        tpl.Complexity,
			ExpectedOutputs:   append([]string(nil), tpl.ExpectedOutputs...),
			SuccessCriteria:   append([]string(nil), tpl.SuccessCriteria...),
		})
	}

	steps, err := remapAgents(steps, constraints)
	if err != nil {
		return models.Plan{}, err
	}
	steps, err = trimToMaxDuration(steps, constraints.MaxDuration)
	if err != nil {
		return models.Plan{}, err
	}

	// Step ids and dependencies are assigned last so removed steps collapse
	// transitively. Steps chain on their immediate predecessor, except the
	// review step, which gates on quality-assurance directly.
	total := 0
	qaIndex := -1
	for i := range steps {
		steps[i].ID = fmt.Sprintf("seq_%d", i+1)
		switch {
		case i == 0:
			steps[i].Dependencies = []string{}
		case steps[i].Type == models.StepReview && qaIndex >= 0:
			steps[i].Dependencies = []string{steps[qaIndex].ID}
		default:
			steps[i].Dependencies = []string{steps[i-1].ID}
		}
		if steps[i].Type == models.StepQA {
			qaIndex = i
		}
		total += steps[i].EstimatedDuration
	}

	plan := models.Plan{
		PlanID:      uuid.NewString(),
		Description: strings.TrimSpace(input.Request),
		Steps:       steps,
		Metadata: models.PlanMetadata{
			CreatedAt:         p.now().UTC(),
			Version:           planVersion,
			Priority:          input.Metadata["priority"],
			EstimatedDuration: total,
			Source:            "planner",
			CostSensitive:     prefs.MinimizeCost,
		},
	}

	if p.output != nil {
		if err := p.output.Write(plan); err != nil {
			slog.Warn("Failed to persist plan output", "plan_id", plan.PlanID, "error", err)
		}
	}

	if p.bus != nil {
		clone := plan.Clone()
		p.bus.Publish(events.EventPlanCreated, "planner", events.PlanPayload{
			PlanID:    plan.PlanID,
			StepCount: len(plan.Steps),
			Plan:      &clone,
		})
	}
	if p.queue != nil {
		p.queue.Enqueue(plan)
	}
	return plan, nil
}

func validateInput(input models.PlannerInput) error {
	if strings.TrimSpace(input.Request) == "" {
		return fmt.Errorf("%w: request is empty", ErrInvalidInput)
	}
	if input.Constraints != nil {
		forbidden := agentSet(input.Constraints.ForbiddenAgents)
		for _, agent := range input.Constraints.AllowedAgents {
			if forbidden[agent] {
				return fmt.Errorf("%w: agent %s is both forbidden and allowed", ErrInvalidInput, agent)
			}
		}
		// Zero is a valid limit; it fails later as infeasible for any
		// non-empty plan.
		if input.Constraints.MaxDuration != nil && *input.Constraints.MaxDuration < 0 {
			return fmt.Errorf("%w: max duration must not be negative", ErrInvalidInput)
		}
	}
	return nil
}

// remapAgents applies the forbidden and allowed constraints using the fixed
// substitute table.
func remapAgents(steps []models.PlanStep, constraints models.PlanConstraints) ([]models.PlanStep, error) {
	forbidden := agentSet(constraints.ForbiddenAgents)
	allowed := agentSet(constraints.AllowedAgents)

	permitted := func(agent models.AgentID) bool {
		if forbidden[agent] {
			return false
		}
		if len(allowed) > 0 && !allowed[agent] {
			return false
		}
		return true
	}

	for i := range steps {
		if permitted(steps[i].Agent) {
			continue
		}
		replaced := false
		for _, candidate := range agentSubstitutes[steps[i].Agent] {
			if permitted(candidate) {
				steps[i].Agent = candidate
				replaced = true
				break
			}
		}
		if !replaced {
			return nil, fmt.Errorf("%w: no permitted agent for step %s", ErrInfeasible, steps[i].Type)
		}
	}
	return steps, nil
}

// trimToMaxDuration drops optional steps in fixed order until the plan fits.
func trimToMaxDuration(steps []models.PlanStep, maxDuration *int) ([]models.PlanStep, error) {
	if maxDuration == nil {
		return steps, nil
	}

	total := 0
	for _, s := range steps {
		total += s.EstimatedDuration
	}

	for _, droppable := range optionalStepTypes {
		if total <= *maxDuration {
			return steps, nil
		}
		for i := range steps {
			if steps[i].Type == droppable {
				total -= steps[i].EstimatedDuration
				steps = append(steps[:i], steps[i+1:]...)
				break
			}
		}
	}
	if total > *maxDuration {
		return nil, fmt.Errorf("%w: plan needs %d minutes, limit is %d", ErrInfeasible, total, *maxDuration)
	}
	return steps, nil
}

func scaleDuration(minutes int, factor float64) int {
	return int(math.Ceil(float64(minutes) * factor))
}

func agentSet(agents []models.AgentID) map[models.AgentID]bool {
	if len(agents) == 0 {
		return nil
	}
	out := make(map[models.AgentID]bool, len(agents))
	for _, a := range agents {
		out[a] = true
	}
	return out
}
