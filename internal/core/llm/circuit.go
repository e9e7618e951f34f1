package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
	"github.com/lueurxax/trade-idea-parser/internal/platform/observability"
)

// CircuitBreaker stops calls to the provider after a run of consecutive
// failures and lets them through again once resetAfter has elapsed.
type CircuitBreaker struct {
	threshold           int
	resetAfter          time.Duration
	consecutiveFailures int
	openUntil           time.Time
	now                 func() time.Time
	mu                  sync.Mutex
	logger              *zerolog.Logger
}

// NewCircuitBreaker creates a circuit breaker. A nil clock means time.Now.
func NewCircuitBreaker(threshold int, resetAfter time.Duration, clock func() time.Time, logger *zerolog.Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = defaultCircuitFailed
	}

	if clock == nil {
		clock = time.Now
	}

	return &CircuitBreaker{
		threshold:  threshold,
		resetAfter: resetAfter,
		now:        clock,
		logger:     logger,
	}
}

// CheckCircuit returns ErrCircuitBreakerOpen while the circuit is open.
func (cb *CircuitBreaker) CheckCircuit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.now().Before(cb.openUntil) {
		return fmt.Errorf("%w until %v", errors.ErrCircuitBreakerOpen, cb.openUntil)
	}

	return nil
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.consecutiveFailures >= cb.threshold {
		observability.LLMCircuitOpen.Set(0)
	}

	cb.consecutiveFailures = 0
}

// RecordFailure counts a failed call and opens the circuit at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++

	if cb.consecutiveFailures < cb.threshold {
		return
	}

	cb.openUntil = cb.now().Add(cb.resetAfter)
	observability.LLMCircuitOpen.Set(1)

	if cb.logger != nil {
		cb.logger.Warn().
			Int("consecutive_failures", cb.consecutiveFailures).
			Time("open_until", cb.openUntil).
			Msg(logMsgCircuitOpened)
	}
}

// IsOpen reports whether calls are currently blocked.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.now().Before(cb.openUntil)
}
