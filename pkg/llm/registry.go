package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maestro-ai/maestro/pkg/events"
)

// provider bundles an adapter with its protection primitives.
type provider struct {
	name        string
	adapter     Adapter
	bucket      *TokenBucket
	breaker     *CircuitBreaker
	settings    Settings
	initialized bool
}

// Registry holds the provider adapter map and implements the failover chain:
// preferred provider, then the active provider, then all remaining providers
// in registration order, skipping open breakers. Attempts fall through on
// retryable errors and stop on the first non-retryable one.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*provider
	order   []string
	active  string
	bus     *events.Bus
}

// NewRegistry creates an empty registry. bus may be nil (no events).
func NewRegistry(bus *events.Bus) *Registry {
	return &Registry{
		entries: make(map[string]*provider),
		bus:     bus,
	}
}

// Register adds a provider with its rate limiter and breaker. The first
// registered provider becomes active until SetActive overrides it.
func (r *Registry) Register(name string, adapter Adapter, settings Settings, bucket *TokenBucket, breaker *CircuitBreaker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.entries[name] = &provider{
		name:     name,
		adapter:  adapter,
		bucket:   bucket,
		breaker:  breaker,
		settings: settings,
	}
	r.order = append(r.order, name)
	if r.active == "" {
		r.active = name
	}
	return nil
}

// Initialize initializes every registered adapter. Providers that fail to
// initialize stay registered but are skipped by the failover chain; the
// first error is returned after all adapters have been attempted.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, name := range r.order {
		p := r.entries[name]
		if err := p.adapter.Initialize(ctx); err != nil {
			slog.Error("Provider initialization failed", "provider", name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("initialize provider %s: %w", name, err)
			}
			continue
		}
		p.initialized = true
	}
	return firstErr
}

// SetActive designates the default provider.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNoProviders, name)
	}
	r.active = name
	return nil
}

// Active returns the active provider name.
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// chain builds the failover candidate list for a request.
func (r *Registry) chain(preferred string) []*provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.order))
	out := make([]*provider, 0, len(r.order))
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		if p, ok := r.entries[name]; ok && p.initialized {
			out = append(out, p)
			seen[name] = true
		}
	}
	add(preferred)
	add(r.active)
	for _, name := range r.order {
		add(name)
	}
	return out
}

// Complete routes a completion request through the failover chain.
func (r *Registry) Complete(ctx context.Context, req Request) (Response, error) {
	candidates := r.chain(req.PreferredProvider)
	if len(candidates) == 0 {
		return Response{}, ErrNoProviders
	}

	var lastErr error
	prev := ""
	for _, p := range candidates {
		if prev != "" {
			r.publishFailover(prev, p.name, lastErr)
		}

		resp, err := r.completeOn(ctx, p, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		prev = p.name

		if !Retryable(err) {
			return Response{}, err
		}
	}
	return Response{}, fmt.Errorf("%w: all providers failed: %w", ErrNoProviders, lastErr)
}

// completeOn runs one provider attempt: breaker gate, rate limit, then the
// adapter call with the provider's in-provider retry policy.
func (r *Registry) completeOn(ctx context.Context, p *provider, req Request) (Response, error) {
	if err := p.breaker.Allow(); err != nil {
		return Response{}, err
	}

	if p.bucket != nil {
		// Rate-limit waits don't count against the breaker either way: the
		// adapter was never reached. Release the half-open probe slot on
		// timeout without touching the success count.
		if err := p.bucket.TryConsume(ctx, req.RateTokens, p.settings.Timeout); err != nil {
			p.breaker.ReleaseProbe()
			return Response{}, err
		}
	}

	r.publish(events.EventProviderRequest, events.ProviderPayload{
		Provider: p.name, Model: req.Model,
	})

	resp, err := r.executeWithRetry(ctx, p, req)
	if err != nil {
		p.breaker.RecordFailure()
		r.publish(events.EventProviderError, events.ProviderPayload{
			Provider: p.name, Error: err.Error(),
		})
		return Response{}, err
	}

	p.breaker.RecordSuccess()
	resp.Provider = p.name
	r.publish(events.EventProviderResponse, events.ProviderPayload{
		Provider: p.name, Model: resp.Model, LatencyMs: resp.LatencyMs,
	})
	return resp, nil
}

// executeWithRetry retries the adapter with exponential delay
// retryDelay·2^(attempt-1), only for errors retryable within a provider.
func (r *Registry) executeWithRetry(ctx context.Context, p *provider, req Request) (Response, error) {
	attempts := p.settings.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		resp, err := p.adapter.Execute(ctx, req)
		if err == nil {
			resp.LatencyMs = time.Since(start).Milliseconds()
			return resp, nil
		}
		lastErr = err
		if !retryableInProvider(err) || attempt == attempts {
			break
		}

		delay := p.settings.RetryDelay << (attempt - 1)
		slog.Warn("Provider attempt failed, retrying",
			"provider", p.name, "attempt", attempt, "delay", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Response{}, ctx.Err()
		case <-timer.C:
		}
	}
	return Response{}, lastErr
}

// Status returns per-provider status snapshots in registration order.
func (r *Registry) Status() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderStatus, 0, len(r.order))
	for _, name := range r.order {
		p := r.entries[name]
		s := ProviderStatus{
			AdapterStatus: p.adapter.Status(),
			Active:        name == r.active,
			Breaker:       p.breaker.State(),
		}
		if p.bucket != nil {
			s.RateLimit = p.bucket.State()
		}
		out = append(out, s)
	}
	return out
}

func (r *Registry) publish(eventType string, payload any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventType, "llm", payload)
}

func (r *Registry) publishFailover(from, to string, cause error) {
	if r.bus == nil {
		return
	}
	reason := ""
	if cause != nil {
		reason = Kind(cause)
	}
	r.bus.Publish(events.EventProviderFailover, "llm", events.FailoverPayload{
		From: from, To: to, Reason: reason,
	})
}
