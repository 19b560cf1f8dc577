package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kristinauko/BookStoreInventory/pkg/messaging"
	"github.com/kristinauko/BookStoreInventory/pkg/messaging/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
)

// Message is the part of jetstream.Msg the subscriber uses.
type Message interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
}

// ChangeHandler processes one change event. A returned error redelivers the message.
type ChangeHandler func(ctx context.Context, event events.ProductsChangedEvent) error

// Subscriber consumes product change events from a JetStream stream.
type Subscriber struct {
	consumer      jetstream.Consumer
	handler       ChangeHandler
	fetchWait     time.Duration
	retryInterval time.Duration
	logger        *slog.Logger
}

// NewSubscriber creates or updates the consumer on stream. An empty durable
// name creates an ephemeral consumer that only sees new events.
func NewSubscriber(ctx context.Context, js jetstream.JetStream, stream, durable string, fetchWait time.Duration, handler ChangeHandler, logger *slog.Logger) (*Subscriber, error) {
	cfg := jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: messaging.ProductsChangedSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durable == "" {
		cfg.DeliverPolicy = jetstream.DeliverNewPolicy
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, stream, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer on %s: %w", stream, err)
	}
	return &Subscriber{
		consumer:      consumer,
		handler:       handler,
		fetchWait:     fetchWait,
		retryInterval: time.Second,
		logger:        logger.With("component", "nats_subscriber"),
	}, nil
}

// Run starts workers that fetch and handle messages until ctx is done.
func (s *Subscriber) Run(ctx context.Context, workers int) error {
	g, gCtx := errgroup.WithContext(ctx)
	for range max(workers, 1) {
		g.Go(func() error {
			return s.runWorker(gCtx)
		})
	}
	return g.Wait()
}

func (s *Subscriber) runWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			batch, err := s.consumer.Fetch(1, jetstream.FetchMaxWait(s.fetchWait))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				s.logger.ErrorContext(ctx, "failed to fetch messages", "error", err)
				time.Sleep(s.retryInterval)
				continue
			}
			for msg := range batch.Messages() {
				s.handleMessage(ctx, msg)
			}
		}
	}
}

// handleMessage acks a handled event and naks anything that could not be handled.
func (s *Subscriber) handleMessage(ctx context.Context, msg Message) {
	if msg == nil {
		s.logger.ErrorContext(ctx, "received nil message")
		return
	}
	var event events.ProductsChangedEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		s.logger.ErrorContext(ctx, "failed to unmarshal message", "error", err, "subject", msg.Subject())
		s.nak(ctx, msg)
		return
	}
	if err := s.handler(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to handle change event", "error", err, "op", event.Op, "path", event.Path)
		s.nak(ctx, msg)
		return
	}
	if err := msg.Ack(); err != nil {
		s.logger.ErrorContext(ctx, "failed to ack message", "error", err)
	}
}

func (s *Subscriber) nak(ctx context.Context, msg Message) {
	if err := msg.Nak(); err != nil {
		s.logger.ErrorContext(ctx, "failed to nack message", "error", err)
	}
}
