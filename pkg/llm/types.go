// Package llm provides the provider registry: a uniform adapter layer over
// LLM backends with failover, per-provider rate limiting (token bucket), and
// circuit-breaker protection.
package llm

import (
	"context"
	"time"
)

// Role identifies the author of a chat message.
type Role string

// Chat roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request routed through the registry.
type Request struct {
	Messages          []Message `json:"messages"`
	Model             string    `json:"model,omitempty"`
	Temperature       *float32  `json:"temperature,omitempty"`
	MaxTokens         int       `json:"max_tokens,omitempty"`
	StopSequences     []string  `json:"stop_sequences,omitempty"`
	PreferredProvider string    `json:"preferred_provider,omitempty"`
	// RateTokens is the token-bucket cost of this call. Zero means 1.
	RateTokens float64 `json:"-"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completion result.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason"`
	Provider     string `json:"provider"`
	LatencyMs    int64  `json:"latency_ms"`
}

// AdapterStatus is a point-in-time adapter snapshot.
type AdapterStatus struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Model       string `json:"model"`
	Initialized bool   `json:"initialized"`
}

// ProviderStatus combines adapter, breaker, and rate-limit state for the
// status API.
type ProviderStatus struct {
	AdapterStatus
	Active    bool         `json:"active"`
	Breaker   BreakerState `json:"breaker"`
	RateLimit BucketState  `json:"rate_limit"`
}

// Adapter is the capability set every provider backend implements.
// Initialize validates credentials; Execute performs one completion (the
// adapter enforces its own per-request timeout and retry policy); Test
// performs a cheap liveness probe; Status reports the adapter snapshot.
type Adapter interface {
	Initialize(ctx context.Context) error
	Execute(ctx context.Context, req Request) (Response, error)
	Test(ctx context.Context) error
	Status() AdapterStatus
}

// Settings carries the per-provider behavior shared by all adapters.
type Settings struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}
