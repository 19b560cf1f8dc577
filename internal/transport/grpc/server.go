// Package grpc exposes the standard gRPC health service for the inventory.
package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the server-wide "" entry.
const ServiceName = "bookstore.inventory.v1.Inventory"

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer keeps the serving status in line with database reachability.
type HealthServer struct {
	health   *health.Server
	db       Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewHealthServer(db Pinger, interval, timeout time.Duration, logger *slog.Logger) *HealthServer {
	return &HealthServer{
		health:   health.NewServer(),
		db:       db,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "grpc-health"),
	}
}

// Register adds the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// Check pings the database once and publishes the result.
func (h *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.db.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "Database ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
	return status
}

// Run checks the database every interval until ctx is done, then marks the server as not serving.
func (h *HealthServer) Run(ctx context.Context) error {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return nil
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Shutdown sets every service to NOT_SERVING and ignores later updates.
func (h *HealthServer) Shutdown() {
	h.health.Shutdown()
}
