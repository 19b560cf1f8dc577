// Package nats connects to NATS JetStream and adapts it to messaging.Publisher.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ClientName identifies inventory connections in the NATS monitoring endpoints.
const ClientName = "bookstore-inventory"

// NewClient dials NATS and keeps reconnecting for the life of the process.
func NewClient(url string, timeout time.Duration, opts ...nats.Option) (*nats.Conn, error) {
	opts = append([]nats.Option{
		nats.Name(ClientName),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
	}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// WithConnectionLogging reports disconnects and reconnects on logger.
func WithConnectionLogging(logger *slog.Logger) nats.Option {
	return func(o *nats.Options) error {
		o.DisconnectedErrCB = func(_ *nats.Conn, err error) {
			logger.Warn("Disconnected from NATS", "error", err)
		}
		o.ReconnectedCB = func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", "url", nc.ConnectedUrlRedacted())
		}
		o.ClosedCB = func(*nats.Conn) {
			logger.Info("NATS connection closed")
		}
		return nil
	}
}

func NewJetStreamContext(nc *nats.Conn) (jetstream.JetStream, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return js, nil
}

// EnsureStream creates or updates the stream that stores the given subjects.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name string, subjects ...string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: subjects,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", name, err)
	}
	return nil
}
