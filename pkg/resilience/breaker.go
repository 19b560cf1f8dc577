// Package resilience builds circuit breakers for calls to unreliable downstreams.
package resilience

import (
	"log/slog"

	"github.com/kristinauko/BookStoreInventory/pkg/config"
	"github.com/sony/gobreaker/v2"
)

// Option adjusts the breaker settings.
type Option func(*gobreaker.Settings)

// WithIsSuccessful decides which errors count as failures. By default every non-nil error does.
func WithIsSuccessful(fn func(err error) bool) Option {
	return func(st *gobreaker.Settings) { st.IsSuccessful = fn }
}

// NewCircuitBreaker returns a breaker that trips once consecutive failures or the
// failure ratio exceed the configured thresholds. State changes are logged.
func NewCircuitBreaker[T any](name string, cfg config.CircuitBreakerConfig, logger *slog.Logger, opts ...Option) *gobreaker.CircuitBreaker[T] {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(counts.Requests > cfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(counts.Requests)*100 > float64(cfg.ErrorRatePercent))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	for _, opt := range opts {
		opt(&st)
	}
	return gobreaker.NewCircuitBreaker[T](st)
}
