// Package grpc dials the inventory gRPC server.
package grpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kristinauko/BookStoreInventory/pkg/client/grpc/interceptors"
	"github.com/kristinauko/BookStoreInventory/pkg/config"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthClient checks the serving status of a remote inventory.
type HealthClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// NewHealthClient creates a client for addr. Calls are retried on transient
// errors, guarded by a circuit breaker and bounded per attempt by cfg.Timeout.
func NewHealthClient(cfg config.GrpcClientConfig, breaker config.CircuitBreakerConfig, logger *slog.Logger, opts ...grpc.DialOption) (*HealthClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(
			interceptors.NewRetryInterceptor(cfg.Retry),
			interceptors.NewCircuitBreakerInterceptor("inventory-grpc-client", breaker, logger),
			interceptors.UnaryClientTimeoutInterceptor(cfg.Timeout),
		),
	}, opts...)
	conn, err := grpc.NewClient(cfg.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", cfg.Addr, err)
	}
	return &HealthClient{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Check returns the serving status of service; "" asks for the server as a whole.
func (c *HealthClient) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus(), nil
}

func (c *HealthClient) Close() error {
	return c.conn.Close()
}
