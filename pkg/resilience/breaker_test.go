package resilience

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kristinauko/BookStoreInventory/pkg/config"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream unavailable")

func testConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		ConsecutiveFailures: 3,
		ErrorRatePercent:    100,
		OpenTimeout:         50 * time.Millisecond,
		HalfOpenRequests:    1,
	}
}

func Test_CircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	// given
	cb := NewCircuitBreaker[struct{}]("test", testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	calls := 0
	fail := func() (struct{}, error) {
		calls++
		return struct{}{}, errDownstream
	}

	// when
	for range 3 {
		_, err := cb.Execute(fail)
		require.ErrorIs(t, err, errDownstream)
	}
	_, err := cb.Execute(fail)

	// then
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, calls, "open breaker must not call downstream")
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func Test_CircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	// given
	cb := NewCircuitBreaker[struct{}]("test", testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	for range 3 {
		_, _ = cb.Execute(func() (struct{}, error) { return struct{}{}, errDownstream })
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	// when
	time.Sleep(80 * time.Millisecond)
	_, err := cb.Execute(func() (struct{}, error) { return struct{}{}, nil })

	// then
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func Test_CircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	// given
	cb := NewCircuitBreaker[int]("test", testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	// when
	got, err := cb.Execute(func() (int, error) { return 7, nil })

	// then
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func Test_CircuitBreaker_IgnoresErrorsDeemedSuccessful(t *testing.T) {
	// given
	errNotFound := errors.New("not found")
	cb := NewCircuitBreaker[struct{}]("test", testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithIsSuccessful(func(err error) bool { return err == nil || errors.Is(err, errNotFound) }),
	)

	// when
	for range 5 {
		_, err := cb.Execute(func() (struct{}, error) { return struct{}{}, errNotFound })
		require.ErrorIs(t, err, errNotFound)
	}

	// then
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
