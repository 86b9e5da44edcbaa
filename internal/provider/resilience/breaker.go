// Package resilience wraps upstream HTTP calls with a circuit breaker,
// per-request timeouts and exponential-backoff retries.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker guarding one upstream.
type BreakerConfig struct {
	// MaxRequests is the number of probe requests allowed while half-open.
	// Default: 1
	MaxRequests uint32

	// OpenTimeout is how long the breaker stays open before probing again.
	// Default: 30 seconds
	OpenTimeout time.Duration

	// ReadyToTrip decides when to open the breaker. Default: DefaultReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called on every state transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultReadyToTrip opens the breaker after five consecutive failures, or once
// at least ten requests were made and half of them failed.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= 5 {
		return true
	}
	if counts.Requests < 10 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

func newBreaker[T any](name string, cfg BreakerConfig) *gobreaker.CircuitBreaker[T] {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = DefaultReadyToTrip
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          name,
		MaxRequests:   cfg.MaxRequests,
		Timeout:       cfg.OpenTimeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		OnStateChange: cfg.OnStateChange,
	})
}
