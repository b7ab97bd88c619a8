package forum

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
)

type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// CircuitBreaker guards the upstream forum API. Consecutive failures past
// the threshold open the circuit; after the recovery timeout a half-open
// probe window lets a limited number of successes close it again.
type CircuitBreaker struct {
	config    *types.CircuitBreakerConfig
	logger    types.Logger
	state     atomic.Value
	failures  atomic.Int32
	successes atomic.Int32
	lastFail  atomic.Int64
	mutex     sync.Mutex
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger) *CircuitBreaker {
	if config == nil {
		config = &types.CircuitBreakerConfig{Enabled: false}
	}

	cb := &CircuitBreaker{
		config: config,
		logger: logger,
	}

	cb.state.Store(BreakerClosed)
	return cb
}

func (cb *CircuitBreaker) CanExecute() bool {
	if !cb.config.Enabled {
		return true
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.getStateUnsafe() {
	case BreakerOpen:
		if time.Since(time.Unix(cb.lastFail.Load(), 0)) > cb.config.RecoveryTimeout {
			cb.transitionToHalfOpen()
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.getStateUnsafe() {
	case BreakerClosed:
		cb.failures.Store(0)
	case BreakerHalfOpen:
		if cb.successes.Add(1) >= int32(cb.config.HalfOpenRequests) {
			cb.transitionToClosed()
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	if !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.lastFail.Store(time.Now().Unix())

	switch cb.getStateUnsafe() {
	case BreakerClosed:
		if cb.failures.Add(1) >= int32(cb.config.FailureThreshold) {
			cb.transitionToOpen()
		}
	case BreakerHalfOpen:
		cb.transitionToOpen()
	}
}

func (cb *CircuitBreaker) StateString() string {
	if !cb.config.Enabled {
		return "disabled"
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.getStateUnsafe() {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

func (cb *CircuitBreaker) getStateUnsafe() BreakerState {
	return cb.state.Load().(BreakerState)
}

func (cb *CircuitBreaker) transitionToClosed() {
	if cb.state.CompareAndSwap(cb.getStateUnsafe(), BreakerClosed) {
		cb.failures.Store(0)
		cb.successes.Store(0)
		cb.lastFail.Store(0)
		cb.logger.Info("Upstream circuit breaker closed")
	}
}

func (cb *CircuitBreaker) transitionToOpen() {
	if cb.state.CompareAndSwap(cb.getStateUnsafe(), BreakerOpen) {
		cb.successes.Store(0)
		cb.logger.Warn("Upstream circuit breaker opened",
			zap.Int32("failures", cb.failures.Load()),
			zap.Int("threshold", cb.config.FailureThreshold))
	}
}

func (cb *CircuitBreaker) transitionToHalfOpen() {
	if cb.state.CompareAndSwap(cb.getStateUnsafe(), BreakerHalfOpen) {
		cb.successes.Store(0)
		cb.logger.Info("Upstream circuit breaker half-open")
	}
}

// isBreakerFailure reports whether a response should count against the
// failure threshold. Client errors other than throttling and request
// timeout are the caller's fault and leave the circuit alone.
func isBreakerFailure(statusCode int, err error) bool {
	if err != nil {
		return true
	}

	switch statusCode {
	case 408, 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

func isSuccessfulResponse(statusCode int, err error) bool {
	if err != nil {
		return false
	}
	return statusCode >= 200 && statusCode < 300
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 502, 503, 504:
		return true
	default:
		return statusCode >= 500
	}
}
