package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maestro-ai/maestro/pkg/events"
)

// waitSlice bounds one sleep while waiting for tokens, so cancellation and
// the overall wait deadline are observed promptly.
const waitSlice = 100 * time.Millisecond

// BucketState is a point-in-time snapshot of a token bucket.
type BucketState struct {
	MaxTokens    float64   `json:"max_tokens"`
	RefillRate   float64   `json:"refill_rate"`
	Available    float64   `json:"available"`
	LastRefillAt time.Time `json:"last_refill_at"`
}

// TokenBucket is a per-provider rate limiter. Capacity maxTokens, refilled
// at refillRate tokens per refillInterval. The mutex is held only for state
// arithmetic — never across a sleep.
type TokenBucket struct {
	mu           sync.Mutex
	provider     string
	maxTokens    float64
	refillRate   float64 // tokens per interval
	interval     time.Duration
	available    float64
	lastRefillAt time.Time

	bus *events.Bus
	now func() time.Time
}

// NewTokenBucket creates a full bucket. bus may be nil (no events).
func NewTokenBucket(provider string, maxTokens, refillRate float64, interval time.Duration, bus *events.Bus) *TokenBucket {
	if interval <= 0 {
		interval = time.Second
	}
	b := &TokenBucket{
		provider:   provider,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		interval:   interval,
		available:  maxTokens,
		bus:        bus,
		now:        time.Now,
	}
	b.lastRefillAt = b.now()
	return b
}

// TryConsume deducts tokens, waiting up to timeout in bounded slices for the
// bucket to refill. Returns ErrRateLimitTimeout when the deadline passes and
// the context error when ctx is cancelled first.
func (b *TokenBucket) TryConsume(ctx context.Context, tokens float64, timeout time.Duration) error {
	if tokens <= 0 {
		tokens = 1
	}
	deadline := b.now().Add(timeout)
	exceeded := false

	for {
		ok, available := b.consume(tokens)
		if ok {
			b.publish(events.EventProviderRateLimitConsumed, tokens, available)
			return nil
		}
		if !exceeded {
			exceeded = true
			b.publish(events.EventProviderRateLimitExceeded, tokens, available)
		}

		remaining := deadline.Sub(b.now())
		if remaining <= 0 {
			b.publish(events.EventProviderRateLimitTimeout, tokens, available)
			return fmt.Errorf("%w: provider %s", ErrRateLimitTimeout, b.provider)
		}

		wait := waitSlice
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// consume refills and attempts one deduction.
func (b *TokenBucket) consume(tokens float64) (bool, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.available >= tokens {
		b.available -= tokens
		return true, b.available
	}
	return false, b.available
}

// refillLocked credits tokens accrued since the last refill. Caller holds mu.
func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefillAt)
	if elapsed <= 0 {
		return
	}
	credit := b.refillRate * float64(elapsed) / float64(b.interval)
	if credit > 0 {
		b.available += credit
		if b.available > b.maxTokens {
			b.available = b.maxTokens
		}
		b.lastRefillAt = now
	}
}

// State returns a snapshot after refilling.
func (b *TokenBucket) State() BucketState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return BucketState{
		MaxTokens:    b.maxTokens,
		RefillRate:   b.refillRate,
		Available:    b.available,
		LastRefillAt: b.lastRefillAt,
	}
}

func (b *TokenBucket) publish(eventType string, requested, available float64) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(eventType, "llm", events.RateLimitPayload{
		Provider:  b.provider,
		Requested: requested,
		Available: available,
	})
}
