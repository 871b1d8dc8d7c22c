// Package models defines the shared data transfer types for plans, workflows,
// and agent memory. All types are flat JSON-tagged structs; deep copies are
// explicit (Clone) so queue and event boundaries never share mutable state.
package models

import "time"

// AgentID names a role that consumes tasks and an LLM backend.
type AgentID string

// Built-in agent roles.
const (
	AgentPlanner   AgentID = "planner"
	AgentDeveloper AgentID = "developer"
	AgentQA        AgentID = "qa"
	AgentDocs      AgentID = "docs"
	AgentBrain     AgentID = "brain"
)

// StepType classifies a plan step.
type StepType string

// Step types in canonical plan order. Review is appended only when the
// quality preference is set.
const (
	StepAnalysis       StepType = "analysis"
	StepDesign         StepType = "design"
	StepImplementation StepType = "implementation"
	StepQA             StepType = "quality-assurance"
	StepGovernance     StepType = "governance"
	StepReview         StepType = "review"
)

// Complexity is a coarse effort estimate for a step.
type Complexity string

// Complexity levels.
const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// PlanContext carries optional project context for plan synthesis.
type PlanContext struct {
	TechStack         []string `json:"tech_stack,omitempty"`
	ExistingArtifacts []string `json:"existing_artifacts,omitempty"`
	ProjectType       string   `json:"project_type,omitempty"`
}

// PlanPreferences tune the generated plan. When both speed and quality are
// set, quality wins.
type PlanPreferences struct {
	PrioritizeSpeed   bool `json:"prioritize_speed,omitempty"`
	PrioritizeQuality bool `json:"prioritize_quality,omitempty"`
	MinimizeCost      bool `json:"minimize_cost,omitempty"`
}

// PlanConstraints restrict the generated plan. Durations are minutes.
type PlanConstraints struct {
	MaxDuration     *int      `json:"max_duration,omitempty"`
	ForbiddenAgents []AgentID `json:"forbidden_agents,omitempty"`
	AllowedAgents   []AgentID `json:"allowed_agents,omitempty"`
	RequiredAgents  []AgentID `json:"required_agents,omitempty"`
}

// PlannerInput is the request for plan synthesis.
type PlannerInput struct {
	Request     string            `json:"request"`
	Context     *PlanContext      `json:"context,omitempty"`
	Preferences *PlanPreferences  `json:"preferences,omitempty"`
	Constraints *PlanConstraints  `json:"constraints,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PlanStep is one unit of work in a plan, assigned to one agent.
type PlanStep struct {
	ID                string     `json:"id"`
	Type              StepType   `json:"type"`
	Agent             AgentID    `json:"agent"`
	Description       string     `json:"description"`
	Dependencies      []string   `json:"dependencies"`
	EstimatedDuration int        `json:"estimated_duration"` // minutes
	Complexity        Complexity `json:"complexity"`
	ExpectedOutputs   []string   `json:"expected_outputs,omitempty"`
	Risk              string     `json:"risk,omitempty"`
	RequiredSkills    []string   `json:"required_skills,omitempty"`
	Prerequisites     []string   `json:"prerequisites,omitempty"`
	SuccessCriteria   []string   `json:"success_criteria,omitempty"`
}

// PlanMetadata describes a plan's provenance and aggregate estimates.
type PlanMetadata struct {
	CreatedAt         time.Time `json:"created_at"`
	Version           string    `json:"version"`
	Priority          string    `json:"priority,omitempty"`
	Tags              []string  `json:"tags,omitempty"`
	EstimatedDuration int       `json:"estimated_duration"` // minutes, sum of steps
	Source            string    `json:"source,omitempty"`
	CostSensitive     bool      `json:"cost_sensitive,omitempty"`
}

// Plan is an acyclic, dependency-ordered list of steps answering one
// PlannerInput.
type Plan struct {
	PlanID      string       `json:"plan_id"`
	Description string       `json:"description"`
	Steps       []PlanStep   `json:"steps"`
	Metadata    PlanMetadata `json:"metadata"`
}

// Clone returns a deep copy of the plan. Queue and event boundaries hand out
// clones so callers can never mutate shared state.
func (p Plan) Clone() Plan {
	out := p
	out.Steps = make([]PlanStep, len(p.Steps))
	for i, s := range p.Steps {
		out.Steps[i] = s.clone()
	}
	out.Metadata.Tags = cloneStrings(p.Metadata.Tags)
	return out
}

func (s PlanStep) clone() PlanStep {
	out := s
	out.Dependencies = cloneStrings(s.Dependencies)
	out.ExpectedOutputs = cloneStrings(s.ExpectedOutputs)
	out.RequiredSkills = cloneStrings(s.RequiredSkills)
	out.Prerequisites = cloneStrings(s.Prerequisites)
	out.SuccessCriteria = cloneStrings(s.SuccessCriteria)
	return out
}

// Step returns the step with the given id, or nil.
func (p *Plan) Step(id string) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
