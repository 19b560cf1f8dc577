package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kristinauko/BookStoreInventory/pkg/messaging"
	"github.com/kristinauko/BookStoreInventory/pkg/messaging/events"
	"github.com/sony/gobreaker/v2"
)

// PublisherSink forwards changes to a message broker. Publishing happens off
// the caller's goroutine; failures are logged and dropped.
type PublisherSink struct {
	publisher messaging.Publisher
	breaker   *gobreaker.CircuitBreaker[struct{}]
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewPublisherSink creates a sink; each publish is bounded by timeout.
func NewPublisherSink(publisher messaging.Publisher, breaker *gobreaker.CircuitBreaker[struct{}], timeout time.Duration, logger *slog.Logger) *PublisherSink {
	return &PublisherSink{
		publisher: publisher,
		breaker:   breaker,
		timeout:   timeout,
		logger:    logger.With("component", "publisher_sink"),
		now:       time.Now,
	}
}

// OnChange implements Observer.
func (s *PublisherSink) OnChange(ctx context.Context, change Change) {
	event := events.ProductsChangedEvent{
		Op:         string(change.Op),
		Path:       change.Path(),
		ProductID:  change.ID,
		OccurredAt: s.now().UTC(),
	}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "Dropped change after sink closed", "op", event.Op, "path", event.Path)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	// The publish may outlive the request that caused it.
	pubCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(pubCtx, s.timeout)
		defer cancel()
		_, err := s.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, s.publisher.Publish(ctx, event)
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to publish change", "error", err, "op", event.Op, "path", event.Path)
		}
	}()
}

// Wait blocks until in-flight publishes finish. The sink stays open.
func (s *PublisherSink) Wait() {
	s.wg.Wait()
}

// Close stops accepting changes and waits for in-flight publishes. Changes
// arriving afterwards are logged and dropped. Close is idempotent.
func (s *PublisherSink) Close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.wg.Wait()
}
