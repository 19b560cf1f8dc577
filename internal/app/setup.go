// Package app wires the inventory store, its change hub and its transports together.
package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kristinauko/BookStoreInventory/internal/config"
	"github.com/kristinauko/BookStoreInventory/internal/notify"
	"github.com/kristinauko/BookStoreInventory/internal/resource"
	"github.com/kristinauko/BookStoreInventory/internal/service"
	"github.com/kristinauko/BookStoreInventory/internal/store"
	grpcImpl "github.com/kristinauko/BookStoreInventory/internal/transport/grpc"
	"github.com/kristinauko/BookStoreInventory/internal/transport/rest"
	"github.com/kristinauko/BookStoreInventory/pkg/messaging"
	"github.com/kristinauko/BookStoreInventory/pkg/resilience"
	"github.com/kristinauko/BookStoreInventory/pkg/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
)

// Dependencies holds the wired components shared by the HTTP and gRPC servers.
type Dependencies struct {
	InventoryService service.InventoryService
	Store            *store.SQLStore
	Changes          *notify.Hub
	Health           *grpcImpl.HealthServer
	// Sink is nil unless a publisher was supplied.
	Sink   *notify.PublisherSink
	Logger *slog.Logger
}

// SetupDependencies builds the store over db and the service on top of it.
// A non-nil publisher receives every change through a circuit breaker.
func SetupDependencies(db *Database, publisher messaging.Publisher, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	st, err := store.NewSQLStore(db.DB, db.Dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	hub := notify.NewHub(logger)

	deps := &Dependencies{
		Store:   st,
		Changes: hub,
		Health:  grpcImpl.NewHealthServer(st, cfg.GRPC.HealthInterval, cfg.Database.Timeout, logger),
		Logger:  logger,
	}
	if publisher != nil {
		breaker := resilience.NewCircuitBreaker[struct{}]("inventory-publisher", cfg.CircuitBreaker, logger)
		deps.Sink = notify.NewPublisherSink(publisher, breaker, cfg.NATS.Timeout, logger)
		if _, err := hub.Subscribe(resource.CollectionPath(), deps.Sink); err != nil {
			return nil, fmt.Errorf("failed to subscribe publisher: %w", err)
		}
	}
	deps.InventoryService = service.NewService(st, hub, logger)
	return deps, nil
}

// SetupHttpHandler initializes the router and routes of the inventory.
// Used by tests to exercise the full middleware chain.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return otelhttp.NewHandler(mux, "inventory-http")
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.InventoryService, deps.Changes, deps.Logger)
	handler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures the HTTP server of the inventory.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(cfg.HTTPServer, SetupHttpHandler(deps))
}

// SetupGrpcServer initializes the gRPC server that serves the health protocol.
func SetupGrpcServer(deps *Dependencies, reflectionEnabled bool) *grpc.Server {
	return server.NewGRPCServer(deps.Logger.With("component", "grpc"), reflectionEnabled, deps.Health.Register)
}
