// Package planner synthesizes executable plans from free-form requests and
// owns the FIFO execution queue feeding the workflow engine.
package planner

import "github.com/maestro-ai/maestro/pkg/models"

// stepTemplate is one entry of the canonical step sequence.
type stepTemplate struct {
	Type            models.StepType
	Agent           models.AgentID
	Duration        int // minutes
	Complexity      models.Complexity
	Description     string
	ExpectedOutputs []string
	SuccessCriteria []string
}

// canonicalSteps is the fixed base sequence every plan starts from. Each step
// depends on its immediate predecessor.
var canonicalSteps = []stepTemplate{
	{
		Type:            models.StepAnalysis,
		Agent:           models.AgentPlanner,
		Duration:        30,
		Complexity:      models.ComplexityMedium,
		Description:     "Analyze the request, identify requirements and unknowns",
		ExpectedOutputs: []string{"requirements summary", "open questions"},
		SuccessCriteria: []string{"requirements enumerated", "scope agreed"},
	},
	{
		Type:            models.StepDesign,
		Agent:           models.AgentPlanner,
		Duration:        45,
		Complexity:      models.ComplexityMedium,
		Description:     "Design the solution approach and interfaces",
		ExpectedOutputs: []string{"design outline", "interface sketch"},
		SuccessCriteria: []string{"design covers all requirements"},
	},
	{
		Type:            models.StepImplementation,
		Agent:           models.AgentDeveloper,
		Duration:        120,
		Complexity:      models.ComplexityHigh,
		Description:     "Implement the designed solution",
		ExpectedOutputs: []string{"working implementation"},
		SuccessCriteria: []string{"implementation matches the design"},
	},
	{
		Type:            models.StepQA,
		Agent:           models.AgentQA,
		Duration:        60,
		Complexity:      models.ComplexityMedium,
		Description:     "Test the implementation and report defects",
		ExpectedOutputs: []string{"test results", "defect list"},
		SuccessCriteria: []string{"all acceptance checks pass"},
	},
	{
		Type:            models.StepGovernance,
		Agent:           models.AgentDocs,
		Duration:        30,
		Complexity:      models.ComplexityLow,
		Description:     "Document decisions and update project records",
		ExpectedOutputs: []string{"updated documentation"},
		SuccessCriteria: []string{"documentation reflects the delivered work"},
	},
}

// reviewStep is appended as the final step when the quality preference is
// set. Its dependency is the quality-assurance step, not its predecessor.
var reviewStep = stepTemplate{
	Type:            models.StepReview,
	Agent:           models.AgentDocs,
	Duration:        30,
	Complexity:      models.ComplexityLow,
	Description:     "Review the delivered work against the original request",
	ExpectedOutputs: []string{"review notes"},
	SuccessCriteria: []string{"review sign-off recorded"},
}

// agentSubstitutes is the fixed remap preference table applied when a step's
// agent is forbidden or not allowed.
var agentSubstitutes = map[models.AgentID][]models.AgentID{
	models.AgentPlanner:   {models.AgentBrain},
	models.AgentDeveloper: {models.AgentBrain},
	models.AgentQA:        {models.AgentDeveloper},
	models.AgentDocs:      {models.AgentDeveloper},
}

// optionalStepTypes lists the step types dropped, in order, when the plan
// exceeds the max duration constraint.
var optionalStepTypes = []models.StepType{
	models.StepGovernance,
	models.StepReview,
}
