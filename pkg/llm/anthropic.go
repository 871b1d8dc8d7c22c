package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultMaxTokens caps completions when a request leaves MaxTokens unset.
// The Anthropic Messages API requires an explicit limit.
const defaultMaxTokens = 4096

// messagesClient captures the subset of the Anthropic SDK used by the
// adapter. Satisfied by *sdk.MessageService and by mocks in tests.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicAdapter implements Adapter on top of the Anthropic Messages API.
type AnthropicAdapter struct {
	mu          sync.RWMutex
	name        string
	model       string
	apiKey      string
	timeout     time.Duration
	msg         messagesClient
	initialized bool
}

// NewAnthropicAdapter creates an adapter for the Anthropic API.
func NewAnthropicAdapter(name, model, apiKey string, timeout time.Duration) *AnthropicAdapter {
	return &AnthropicAdapter{
		name:    name,
		model:   model,
		apiKey:  apiKey,
		timeout: timeout,
	}
}

// Initialize validates credentials and builds the SDK client.
func (a *AnthropicAdapter) Initialize(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.model == "" {
		return fmt.Errorf("anthropic adapter %s: model is required", a.name)
	}
	if a.apiKey == "" {
		return fmt.Errorf("anthropic adapter %s: api key is required", a.name)
	}
	ac := sdk.NewClient(option.WithAPIKey(a.apiKey))
	a.msg = &ac.Messages
	a.initialized = true
	return nil
}

// Execute performs one Messages.New call with the adapter's request timeout.
// System-role messages become the Messages API system prompt.
func (a *AnthropicAdapter) Execute(ctx context.Context, req Request) (Response, error) {
	a.mu.RLock()
	msg, initialized := a.msg, a.initialized
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
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var system []sdk.TextBlockParam
	conversation := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(float64(*req.Temperature))
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	result, err := msg.New(callCtx, params)
	if err != nil {
		return Response{}, a.classify(ctx, err)
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := Response{
		Content: text.String(),
		Model:   string(result.Model),
		Usage: Usage{
			PromptTokens:     int(result.Usage.InputTokens),
			CompletionTokens: int(result.Usage.OutputTokens),
			TotalTokens:      int(result.Usage.InputTokens + result.Usage.OutputTokens),
		},
		FinishReason: string(result.StopReason),
	}
	return out, nil
}

// classify maps SDK errors to the registry's sentinel taxonomy.
func (a *AnthropicAdapter) classify(parent context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w: %s", ErrTimeout, a.name)
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, err)
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Test issues a minimal completion to verify connectivity.
func (a *AnthropicAdapter) Test(ctx context.Context) error {
	_, err := a.Execute(ctx, Request{
		Messages:  []Message{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return err
}

// Status returns the adapter snapshot.
func (a *AnthropicAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AdapterStatus{
		Name:        a.name,
		Type:        "anthropic",
		Model:       a.model,
		Initialized: a.initialized,
	}
}
