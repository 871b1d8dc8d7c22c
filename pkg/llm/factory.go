package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/events"
)

// NewRegistryFromConfig builds a registry with one adapter, token bucket, and
// circuit breaker per configured provider, in the configured failover order.
// API keys are resolved from the environment variable named by api_key_env,
// with the credentials map as a fallback.
func NewRegistryFromConfig(cfg config.ProvidersConfig, bus *events.Bus) (*Registry, error) {
	registry := NewRegistry(bus)

	for _, name := range cfg.Order {
		pc, ok := cfg.Entries[name]
		if !ok {
			return nil, fmt.Errorf("provider %q listed in order but not configured", name)
		}

		apiKey := ""
		if pc.APIKeyEnv != "" {
			apiKey = os.Getenv(pc.APIKeyEnv)
		}
		if apiKey == "" {
			apiKey = pc.Credentials["api_key"]
		}

		timeout := time.Duration(pc.TimeoutMs) * time.Millisecond
		adapter, err := newAdapter(name, pc, apiKey, timeout)
		if err != nil {
			return nil, err
		}

		settings := Settings{
			Timeout:    timeout,
			MaxRetries: pc.MaxRetries,
			RetryDelay: time.Duration(pc.RetryDelayMs) * time.Millisecond,
		}
		bucket := NewTokenBucket(name, pc.RateLimit.MaxTokens, pc.RateLimit.RefillRate, pc.RateLimit.RefillInterval(), bus)
		breaker := NewCircuitBreaker(name, pc.Breaker.FailureThreshold, pc.Breaker.SuccessThreshold, pc.Breaker.Cooldown(), bus)

		if err := registry.Register(name, adapter, settings, bucket, breaker); err != nil {
			return nil, err
		}
	}

	if cfg.Active != "" {
		if err := registry.SetActive(cfg.Active); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func newAdapter(name string, pc config.ProviderConfig, apiKey string, timeout time.Duration) (Adapter, error) {
	switch pc.Type {
	case "openai":
		return NewOpenAIAdapter(name, pc.Model, apiKey, timeout), nil
	case "anthropic":
		return NewAnthropicAdapter(name, pc.Model, apiKey, timeout), nil
	case "local":
		if pc.Endpoint == "" {
			return nil, fmt.Errorf("local provider %q requires an endpoint", name)
		}
		return NewLocalAdapter(name, pc.Model, pc.Endpoint, apiKey, timeout), nil
	default:
		return nil, fmt.Errorf("provider %q has unknown type %q", name, pc.Type)
	}
}
