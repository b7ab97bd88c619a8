package forum

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/threadlens/threadlens/logger"
	"github.com/threadlens/threadlens/types"
)

func newTestBreaker(threshold int, recovery time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(&types.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		HalfOpenRequests: 2,
	}, logger.NewNop())
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)

	assert.True(t, cb.CanExecute())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.CanExecute())
	assert.Equal(t, "closed", cb.StateString())

	cb.RecordFailure()
	assert.False(t, cb.CanExecute())
	assert.Equal(t, "open", cb.StateString())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	assert.False(t, cb.CanExecute())

	time.Sleep(20 * time.Millisecond)

	// Recovery timeout elapsed: the probe is allowed through.
	assert.True(t, cb.CanExecute())
	assert.Equal(t, "half-open", cb.StateString())

	cb.RecordSuccess()
	cb.RecordSuccess()
	assert.Equal(t, "closed", cb.StateString())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.CanExecute())

	cb.RecordFailure()
	assert.False(t, cb.CanExecute())
	assert.Equal(t, "open", cb.StateString())
}

func TestCircuitBreaker_DisabledAlwaysExecutes(t *testing.T) {
	cb := NewCircuitBreaker(nil, logger.NewNop())

	for i := 0; i < 10; i++ {
		cb.RecordFailure()
	}

	assert.True(t, cb.CanExecute())
	assert.Equal(t, "disabled", cb.StateString())
}

func TestBreakerFailureClassification(t *testing.T) {
	assert.True(t, isBreakerFailure(0, errors.New("connection refused")))
	assert.True(t, isBreakerFailure(503, nil))
	assert.True(t, isBreakerFailure(429, nil))
	assert.False(t, isBreakerFailure(404, nil))
	assert.False(t, isBreakerFailure(200, nil))
}
