package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/maestro-ai/maestro/pkg/events"
)

// BreakerStateName is the circuit breaker state label.
type BreakerStateName string

// Breaker states.
const (
	BreakerClosed   BreakerStateName = "closed"
	BreakerOpen     BreakerStateName = "open"
	BreakerHalfOpen BreakerStateName = "half-open"
)

// BreakerState is a point-in-time snapshot of a circuit breaker.
type BreakerState struct {
	State        BreakerStateName `json:"state"`
	FailureCount int              `json:"failure_count"`
	SuccessCount int              `json:"success_count"`
	OpenedAt     *time.Time       `json:"opened_at,omitempty"`
}

// CircuitBreaker short-circuits calls to an unhealthy provider.
//
// Transitions: closed→open when consecutive failures reach failureThreshold;
// open→half-open after cooldown; half-open→closed after successThreshold
// successes; half-open→open on any failure. Half-open admits a single probe
// at a time — concurrent probes are serialized by the probing flag.
type CircuitBreaker struct {
	mu               sync.Mutex
	provider         string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration

	state        BreakerStateName
	failureCount int
	successCount int
	openedAt     time.Time
	probing      bool

	bus *events.Bus
	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker. bus may be nil (no events).
func NewCircuitBreaker(provider string, failureThreshold, successThreshold int, cooldown time.Duration, bus *events.Bus) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &CircuitBreaker{
		provider:         provider,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		state:            BreakerClosed,
		bus:              bus,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. In half-open it reserves the
// single probe slot; the caller must follow up with RecordSuccess or
// RecordFailure to release it.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return fmt.Errorf("%w: provider %s", ErrCircuitOpen, cb.provider)
		}
		cb.state = BreakerHalfOpen
		cb.successCount = 0
		cb.probing = true
		return nil
	default: // half-open
		if cb.probing {
			return fmt.Errorf("%w: provider %s (probe in flight)", ErrCircuitOpen, cb.provider)
		}
		cb.probing = true
		return nil
	}
}

// RecordSuccess notes a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failureCount = 0
	case BreakerHalfOpen:
		cb.probing = false
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = BreakerClosed
			cb.failureCount = 0
			cb.successCount = 0
			cb.publishLocked(events.EventProviderCircuitClosed)
		}
	}
}

// ReleaseProbe frees the half-open probe slot when the reserved call never
// reached the provider. Unlike RecordSuccess it leaves the success and
// failure counts untouched, so the breaker cannot close without a real
// successful call.
func (cb *CircuitBreaker) ReleaseProbe() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerHalfOpen {
		cb.probing = false
	}
}

// RecordFailure notes a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.openLocked()
		}
	case BreakerHalfOpen:
		cb.probing = false
		cb.openLocked()
	}
}

// openLocked transitions to open. Caller holds mu.
func (cb *CircuitBreaker) openLocked() {
	cb.state = BreakerOpen
	cb.openedAt = cb.now()
	cb.successCount = 0
	cb.publishLocked(events.EventProviderCircuitOpened)
}

// State returns a snapshot.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := BreakerState{
		State:        cb.state,
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
	}
	if cb.state == BreakerOpen {
		t := cb.openedAt
		s.OpenedAt = &t
	}
	return s
}

func (cb *CircuitBreaker) publishLocked(eventType string) {
	if cb.bus == nil {
		return
	}
	cb.bus.Publish(eventType, "llm", events.CircuitPayload{
		Provider: cb.provider,
		State:    string(cb.state),
		Failures: cb.failureCount,
	})
}
