package llm

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the provider registry. Classification drives both the
// in-provider retry loop and the cross-provider failover chain.
var (
	// ErrProvider is a non-retryable provider rejection (4xx content/auth).
	ErrProvider = errors.New("provider error")

	// ErrTransient is a retryable server-side failure (5xx, network).
	ErrTransient = errors.New("transient provider error")

	// ErrTimeout is a per-request timeout inside an adapter. Retryable.
	ErrTimeout = errors.New("provider request timed out")

	// ErrRateLimitTimeout is returned when the token bucket wait expires.
	// Retryable against other providers, not against this one.
	ErrRateLimitTimeout = errors.New("rate limit wait timed out")

	// ErrCircuitOpen is a fast-fail from an open breaker. Failover moves on.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrNoProviders is returned when the failover chain is exhausted or no
	// provider is registered.
	ErrNoProviders = errors.New("no providers available")

	// ErrNotInitialized is returned when an adapter is used before Initialize.
	ErrNotInitialized = errors.New("provider not initialized")
)

// Retryable reports whether the failover chain should move to the next
// provider after err. Context cancellation is never retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimitTimeout) ||
		errors.Is(err, ErrCircuitOpen)
}

// retryableInProvider reports whether the adapter-level retry loop should
// try the same provider again. Rate-limit and breaker errors never reach
// the adapter, so only timeout and transient failures qualify.
func retryableInProvider(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

// Kind maps err to the error-taxonomy label carried on task states and
// event payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	case errors.Is(err, ErrCircuitOpen):
		return "CircuitOpen"
	case errors.Is(err, ErrRateLimitTimeout):
		return "RateLimitTimeout"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, ErrTransient):
		return "TransientServerError"
	case errors.Is(err, ErrNoProviders):
		return "NoProvidersAvailable"
	case errors.Is(err, ErrProvider):
		return "ProviderError"
	default:
		return "ProviderError"
	}
}

// classifyStatus converts an HTTP status code from a provider SDK into the
// matching sentinel. 429 and 5xx are worth retrying; other 4xx are not.
func classifyStatus(code int, err error) error {
	switch {
	case code == 429 || code >= 500:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	case code >= 400:
		return fmt.Errorf("%w: %w", ErrProvider, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
}
