package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/memory"
	"github.com/maestro-ai/maestro/pkg/models"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	handler := HandlerFunc(func(context.Context, Task) (Result, error) {
		return Result{Success: true}, nil
	})
	r.Register(models.AgentDeveloper, handler)

	resolved, err := r.Resolve(models.AgentDeveloper)
	require.NoError(t, err)
	result, err := resolved.Handle(context.Background(), Task{})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRegistry_ResolveUnknownAgent(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(models.AgentBrain)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

// fakeCompleter records the last request and returns a canned response.
type fakeCompleter struct {
	lastReq llm.Request
	resp    llm.Response
	err     error
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	f.lastReq = req
	return f.resp, f.err
}

func sampleTask() Task {
	return Task{
		TaskID:     "seq_1",
		WorkflowID: "wf-1",
		PlanID:     "plan-1",
		Step: models.PlanStep{
			ID:              "seq_1",
			Type:            models.StepAnalysis,
			Agent:           models.AgentPlanner,
			Description:     "Analyze the request",
			ExpectedOutputs: []string{"requirements summary"},
		},
	}
}

func TestLLMAgent_HandleReturnsCompletion(t *testing.T) {
	fake := &fakeCompleter{resp: llm.Response{
		Content: "requirements: ...", Provider: "a", Model: "m",
	}}
	a := NewLLMAgent(models.AgentPlanner, fake, nil, LLMAgentOptions{})

	result, err := a.Handle(context.Background(), sampleTask())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "requirements: ...", result.Output)
	assert.Equal(t, "a", result.Artifacts["provider"])

	require.Len(t, fake.lastReq.Messages, 2)
	assert.Equal(t, llm.RoleSystem, fake.lastReq.Messages[0].Role)
	assert.Contains(t, fake.lastReq.Messages[1].Content, "Analyze the request")
}

func TestLLMAgent_CostSensitiveUsesCheapModel(t *testing.T) {
	fake := &fakeCompleter{resp: llm.Response{Content: "ok"}}
	a := NewLLMAgent(models.AgentPlanner, fake, nil, LLMAgentOptions{
		Model:      "big-model",
		CheapModel: "small-model",
	})

	task := sampleTask()
	task.CostSensitive = true
	_, err := a.Handle(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, "small-model", fake.lastReq.Model)

	task.CostSensitive = false
	_, err = a.Handle(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, "big-model", fake.lastReq.Model)
}

func TestLLMAgent_PropagatesProviderError(t *testing.T) {
	fake := &fakeCompleter{err: llm.ErrNoProviders}
	a := NewLLMAgent(models.AgentPlanner, fake, nil, LLMAgentOptions{})

	_, err := a.Handle(context.Background(), sampleTask())
	assert.ErrorIs(t, err, llm.ErrNoProviders)
}

func TestLLMAgent_RecordsArtifactInMemory(t *testing.T) {
	store, err := memory.Open(context.Background(), filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	repo := memory.NewRepository(store, nil, nil)

	fake := &fakeCompleter{resp: llm.Response{Content: "analysis output"}}
	a := NewLLMAgent(models.AgentPlanner, fake, repo, LLMAgentOptions{})

	result, err := a.Handle(context.Background(), sampleTask())
	require.NoError(t, err)
	require.Len(t, result.MemoryUpdates, 1)

	record, err := repo.Get(context.Background(), result.MemoryUpdates[0], models.AgentPlanner)
	require.NoError(t, err)
	assert.Equal(t, "analysis output", record.Data["output"])
	assert.Equal(t, models.CategorySolutions, record.Category)
}
