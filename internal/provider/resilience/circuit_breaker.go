// Package resilience guards calls to the GreenPath backend with a circuit
// breaker, bounded retries and per-client health tracking.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker defaults.
const (
	DefaultOpenTimeout         = 30 * time.Second
	DefaultConsecutiveFailures = 3
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	Name string

	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32

	// Interval clears the counts while closed. Zero keeps them until the state changes.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// ReadyToTrip decides when a closed breaker opens. Defaults to DefaultReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// IsSuccessful classifies call errors. Defaults to ignoring cancellation.
	IsSuccessful func(err error) bool

	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the breaker used for backend calls.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Timeout:      DefaultOpenTimeout,
		ReadyToTrip:  DefaultReadyToTrip,
		IsSuccessful: IgnoreCancellation,
	}
}

// DefaultReadyToTrip opens the breaker after DefaultConsecutiveFailures
// failures in a row, or once at least 5 requests were made and half of
// them failed.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= DefaultConsecutiveFailures {
		return true
	}
	if counts.Requests < 5 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

// IgnoreCancellation counts every error as a failure except a cancelled
// caller context. A user leaving a progress stream is not a backend fault.
func IgnoreCancellation(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// NewCircuitBreaker creates a circuit breaker from cfg.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = DefaultReadyToTrip
	}
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = IgnoreCancellation
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		IsSuccessful:  cfg.IsSuccessful,
		OnStateChange: cfg.OnStateChange,
	})
}

// rejected reports whether err means the breaker refused the call.
func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
