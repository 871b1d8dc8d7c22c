package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// chatClient captures the subset of the go-openai client the adapter uses.
// Satisfied by *openai.Client and by mocks in tests.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIAdapter implements Adapter on top of the OpenAI Chat Completions API.
// It also serves OpenAI-compatible local endpoints when an endpoint override
// is set (see NewLocalAdapter).
type OpenAIAdapter struct {
	mu          sync.RWMutex
	name        string
	typ         string
	model       string
	apiKey      string
	endpoint    string
	timeout     time.Duration
	client      chatClient
	initialized bool
}

// NewOpenAIAdapter creates an adapter for the hosted OpenAI API.
func NewOpenAIAdapter(name, model, apiKey string, timeout time.Duration) *OpenAIAdapter {
	return &OpenAIAdapter{
		name:    name,
		typ:     "openai",
		model:   model,
		apiKey:  apiKey,
		timeout: timeout,
	}
}

// Initialize validates credentials and builds the SDK client.
func (a *OpenAIAdapter) Initialize(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.model == "" {
		return fmt.Errorf("%s adapter %s: model is required", a.typ, a.name)
	}
	if a.endpoint == "" {
		if a.apiKey == "" {
			return fmt.Errorf("%s adapter %s: api key is required", a.typ, a.name)
		}
		a.client = openai.NewClient(a.apiKey)
	} else {
		cfg := openai.DefaultConfig(a.apiKey)
		cfg.BaseURL = a.endpoint
		a.client = openai.NewClientWithConfig(cfg)
	}
	a.initialized = true
	return nil
}

// Execute performs one chat completion with the adapter's request timeout.
func (a *OpenAIAdapter) Execute(ctx context.Context, req Request) (Response, error) {
	a.mu.RLock()
	client, initialized := a.client, a.initialized
	a.mu.RUnlock()
	if !initialized {
		return Response{}, fmt.Errorf("%w: %s", ErrNotInitialized, a.name)
	}
	if len(req.Messages) == 0 {
		return Response{}, fmt.Errorf("%w: messages are required", ErrProvider)
	}

	modelID := req.Model
	if modelID == "" {
		modelID = a.model
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	request := openai.ChatCompletionRequest{
		Model:     modelID,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		Stop:      req.StopSequences,
	}
	if req.Temperature != nil {
		request.Temperature = *req.Temperature
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := client.CreateChatCompletion(callCtx, request)
	if err != nil {
		return Response{}, a.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: empty completion from %s", ErrTransient, a.name)
	}

	out := Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: string(resp.Choices[0].FinishReason),
	}
	return out, nil
}

// classify maps SDK errors to the registry's sentinel taxonomy.
func (a *OpenAIAdapter) classify(parent context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w: %s", ErrTimeout, a.name)
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Test issues a minimal completion to verify connectivity.
func (a *OpenAIAdapter) Test(ctx context.Context) error {
	_, err := a.Execute(ctx, Request{
		Messages:  []Message{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return err
}

// Status returns the adapter snapshot.
func (a *OpenAIAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AdapterStatus{
		Name:        a.name,
		Type:        a.typ,
		Model:       a.model,
		Initialized: a.initialized,
	}
}
