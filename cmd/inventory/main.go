// Package main runs the bookstore inventory server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/kristinauko/BookStoreInventory/internal/app"
	"github.com/kristinauko/BookStoreInventory/internal/config"
	"github.com/kristinauko/BookStoreInventory/pkg/bootstrap"
	"github.com/kristinauko/BookStoreInventory/pkg/config/configloader"
	"github.com/kristinauko/BookStoreInventory/pkg/messaging"
	pkgnats "github.com/kristinauko/BookStoreInventory/pkg/nats"
	"github.com/kristinauko/BookStoreInventory/pkg/telemetry"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const serviceName = "inventory"

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run loads the configuration, opens and migrates the database and serves HTTP, gRPC, pprof and metrics.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName, configloader.WithDefaults(config.Defaults()))
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	// meter provider first, so that the service counters are exported
	meterProvider, err := telemetry.NewMeterProvider(serviceName)
	if err != nil {
		return fmt.Errorf("failed to create meter provider: %w", err)
	}
	var shutdownTracer func(context.Context) error
	if cfg.Telemetry.Traces.Enabled {
		tracerProvider, err := telemetry.NewTracerProvider(ctx, serviceName, cfg.Telemetry)
		if err != nil {
			logger.Error("error creating tracer provider", slog.Any("error", err))
			return err
		}
		shutdownTracer = tracerProvider.Shutdown
	}

	db, err := app.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", slog.Any("error", err))
		}
	}()
	logger.Info("Successfully connected to the database!", slog.String("driver", cfg.Database.Driver))
	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("Database schema is up to date")
	}

	publisher, closePublisher, err := setupPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	deps, err := app.SetupDependencies(db, publisher, cfg, logger)
	if err != nil {
		return err
	}
	httpServer, pprofServer, metricsServer, grpcServer := setupServers(deps, meterProvider, cfg)

	g, gCtx := errgroup.WithContext(ctx)

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server on context cancellation
	httpStopped := make(chan struct{})
	g.Go(func() error {
		defer close(httpStopped)
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Start the gRPC server and keep its health status in line with the database
	g.Go(func() error {
		grpcAddr := ":" + cfg.GRPC.Port
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}
		logger.Info("gRPC server listening", slog.String("addr", grpcAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		return deps.Health.Run(gCtx)
	})
	// gracefully shutdown gRPC server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down gRPC server...")
		deps.Health.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
			logger.Info("gRPC server stopped gracefully.")
			return nil
		case <-time.After(cfg.Shutdown.Timeout):
			logger.Warn("gRPC server graceful stop timed out. Forcing stop.")
			grpcServer.Stop()
			return fmt.Errorf("grpc server graceful stop timed out")
		}
	})

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		serveAux(gCtx, g, logger, "pprof", pprofServer, cfg.Shutdown.Timeout)
	}
	// Start the metrics server if enabled
	if cfg.Telemetry.Metrics.Enabled {
		serveAux(gCtx, g, logger, "metrics", metricsServer, cfg.Shutdown.Timeout)
	}

	// flush in-flight change events once no request can produce more, then telemetry
	g.Go(func() error {
		<-httpStopped
		if deps.Sink != nil {
			logger.Info("Flushing change events")
			deps.Sink.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		if shutdownTracer != nil {
			logger.Info("Shutting down tracer provider")
			if err := shutdownTracer(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shutdown tracer provider: %v", err)
			}
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}

// serveAux runs an auxiliary HTTP server until ctx is done.
func serveAux(ctx context.Context, g *errgroup.Group, logger *slog.Logger, name string, srv *http.Server, timeout time.Duration) {
	g.Go(func() error {
		logger.Info(name+" server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server failed: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down " + name + " server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// setupPublisher connects to NATS JetStream when enabled. The returned closer is never nil.
func setupPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (messaging.Publisher, func(), error) {
	if !cfg.NATS.Enabled {
		return nil, func() {}, nil
	}
	nc, err := pkgnats.NewClient(cfg.NATS.Url, cfg.NATS.Timeout, pkgnats.WithConnectionLogging(logger))
	if err != nil {
		return nil, nil, err
	}
	js, err := pkgnats.NewJetStreamContext(nc)
	if err != nil {
		return nil, nil, err
	}
	streamCtx, cancel := context.WithTimeout(ctx, cfg.NATS.Timeout)
	defer cancel()
	if err := pkgnats.EnsureStream(streamCtx, js, cfg.NATS.Stream, messaging.ProductsChangedSubject); err != nil {
		nc.Close()
		return nil, nil, err
	}
	logger.Info("Connected to NATS", slog.String("url", cfg.NATS.Url), slog.String("stream", cfg.NATS.Stream))
	return pkgnats.NewNatsPublisher(js), func() {
		if err := nc.Drain(); err != nil {
			logger.Error("Failed to drain NATS connection", slog.Any("error", err))
		}
	}, nil
}

// setupServers initializes the HTTP, pprof, metrics and gRPC servers.
func setupServers(deps *app.Dependencies, mp *telemetry.MeterProvider, cfg *config.Config) (*http.Server, *http.Server, *http.Server, *grpc.Server) {
	httpServer := app.SetupHttpServer(deps, cfg)
	grpcServer := app.SetupGrpcServer(deps, cfg.GRPC.ReflectionEnabled)
	pprofServer := &http.Server{
		Addr:              cfg.PProf.Addr,
		ReadHeaderTimeout: cfg.HTTPServer.Timeout.ReadHeader,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", mp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.Telemetry.Metrics.Addr,
		Handler:           metricsMux,
		ReadHeaderTimeout: cfg.HTTPServer.Timeout.ReadHeader,
	}
	return httpServer, pprofServer, metricsServer, grpcServer
}
