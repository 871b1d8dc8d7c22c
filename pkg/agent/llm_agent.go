package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/memory"
	"github.com/maestro-ai/maestro/pkg/models"
)

// completer is the slice of the provider registry the agent needs.
type completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
}

// LLMAgent is the default handler: it prompts an LLM with the step contents
// and records the completion as a memory artifact.
type LLMAgent struct {
	id         models.AgentID
	llm        completer
	memory     *memory.Repository
	role       string
	provider   string
	model      string
	cheapModel string
}

// LLMAgentOptions customizes an LLM agent.
type LLMAgentOptions struct {
	// Role is the persona injected into the system prompt. Defaults to the
	// agent id.
	Role string
	// Provider pins completions to a preferred provider. Empty uses the
	// registry's active provider.
	Provider string
	// Model overrides the provider's default model.
	Model string
	// CheapModel is used instead of Model for cost-sensitive plans.
	CheapModel string
}

// NewLLMAgent creates an LLM-backed handler. mem may be nil, in which case
// no artifacts are recorded.
func NewLLMAgent(id models.AgentID, registry completer, mem *memory.Repository, opts LLMAgentOptions) *LLMAgent {
	role := opts.Role
	if role == "" {
		role = string(id)
	}
	return &LLMAgent{
		id:         id,
		llm:        registry,
		memory:     mem,
		role:       role,
		provider:   opts.Provider,
		model:      opts.Model,
		cheapModel: opts.CheapModel,
	}
}

// Handle prompts the LLM with the step and stores the completion.
func (a *LLMAgent) Handle(ctx context.Context, task Task) (Result, error) {
	model := a.model
	if task.CostSensitive && a.cheapModel != "" {
		model = a.cheapModel
	}

	resp, err := a.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: a.systemPrompt()},
			{Role: llm.RoleUser, Content: buildStepPrompt(task.Step)},
		},
		Model:             model,
		PreferredProvider: a.provider,
		RateTokens:        1,
	})
	if err != nil {
		return Result{}, fmt.Errorf("agent %s task %s: %w", a.id, task.TaskID, err)
	}

	result := Result{
		Success: true,
		Output:  resp.Content,
		Artifacts: map[string]string{
			"provider": resp.Provider,
			"model":    resp.Model,
		},
	}

	if a.memory != nil {
		record, err := a.memory.Put(ctx, models.MemoryRecord{
			Key:      fmt.Sprintf("%s/%s/%s", task.PlanID, task.TaskID, task.Step.Type),
			Category: models.CategorySolutions,
			Data: map[string]any{
				"workflow_id": task.WorkflowID,
				"step_type":   string(task.Step.Type),
				"output":      resp.Content,
			},
			AgentOrigin: a.id,
		})
		if err != nil {
			// The completion itself succeeded; losing the artifact is not a
			// task failure.
			slog.Warn("Failed to record task artifact",
				"agent", a.id, "task_id", task.TaskID, "error", err)
		} else {
			result.MemoryUpdates = []string{record.RecordID}
		}
	}
	return result, nil
}

func (a *LLMAgent) systemPrompt() string {
	return fmt.Sprintf("You are the %s agent in a software delivery team. "+
		"Complete the assigned step and reply with the deliverable only.", a.role)
}

// buildStepPrompt renders the step contents as the user message.
func buildStepPrompt(step models.PlanStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step: %s (%s)\n", step.ID, step.Type)
	fmt.Fprintf(&b, "Task: %s\n", step.Description)
	if len(step.ExpectedOutputs) > 0 {
		fmt.Fprintf(&b, "Expected outputs: %s\n", strings.Join(step.ExpectedOutputs, "; "))
	}
	if len(step.SuccessCriteria) > 0 {
		fmt.Fprintf(&b, "Success criteria: %s\n", strings.Join(step.SuccessCriteria, "; "))
	}
	if len(step.RequiredSkills) > 0 {
		fmt.Fprintf(&b, "Required skills: %s\n", strings.Join(step.RequiredSkills, "; "))
	}
	if step.Risk != "" {
		fmt.Fprintf(&b, "Known risk: %s\n", step.Risk)
	}
	return b.String()
}
