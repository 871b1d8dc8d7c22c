package llm

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/events"
)

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 2, time.Minute, nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, cb.Allow())
		cb.RecordFailure()
	}
	assert.Equal(t, BreakerClosed, cb.State().State)

	require.NoError(t, cb.Allow())
	cb.RecordFailure()

	state := cb.State()
	assert.Equal(t, BreakerOpen, state.State)
	require.NotNil(t, state.OpenedAt)

	err := cb.Allow()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 2, time.Minute, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, BreakerClosed, cb.State().State)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 2, time.Minute, nil)
	base := time.Now()
	now := base
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	require.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	now = base.Add(time.Minute)
	require.NoError(t, cb.Allow())
	assert.Equal(t, BreakerHalfOpen, cb.State().State)

	// Only one probe at a time.
	require.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	cb.RecordSuccess()
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()

	assert.Equal(t, BreakerClosed, cb.State().State)
	require.NoError(t, cb.Allow())
}

func TestCircuitBreaker_ReleaseProbeKeepsHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 2, time.Minute, nil)
	base := time.Now()
	now := base
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = base.Add(2 * time.Minute)

	// Reserve and release the probe slot repeatedly: the breaker must stay
	// half-open with a zero success count, not close.
	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Allow())
		cb.ReleaseProbe()
	}
	state := cb.State()
	assert.Equal(t, BreakerHalfOpen, state.State)
	assert.Zero(t, state.SuccessCount)

	// Closing still takes real successes.
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, BreakerClosed, cb.State().State)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 2, time.Minute, nil)
	base := time.Now()
	now := base
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = base.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	cb.RecordFailure()

	assert.Equal(t, BreakerOpen, cb.State().State)
	require.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_PublishesTransitionEvents(t *testing.T) {
	bus := events.NewBus()
	var mu sync.Mutex
	var seen []string
	unsubscribe := bus.Subscribe(func(evt events.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, evt.Type)
	}, events.EventProviderCircuitOpened, events.EventProviderCircuitClosed)
	defer unsubscribe()

	cb := NewCircuitBreaker("test", 1, 1, time.Minute, bus)
	base := time.Now()
	now := base
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = base.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		events.EventProviderCircuitOpened,
		events.EventProviderCircuitClosed,
	}, seen)
}
