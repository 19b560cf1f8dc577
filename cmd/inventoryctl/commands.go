package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/kristinauko/BookStoreInventory/internal/app"
	"github.com/kristinauko/BookStoreInventory/internal/config"
	"github.com/kristinauko/BookStoreInventory/internal/notify"
	"github.com/kristinauko/BookStoreInventory/internal/service"
	"github.com/kristinauko/BookStoreInventory/internal/store"
	"github.com/kristinauko/BookStoreInventory/pkg/bootstrap"
	grpcclient "github.com/kristinauko/BookStoreInventory/pkg/client/grpc"
	"github.com/kristinauko/BookStoreInventory/pkg/config/configloader"
	"github.com/kristinauko/BookStoreInventory/pkg/messaging/events"
	pkgnats "github.com/kristinauko/BookStoreInventory/pkg/nats"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const appName = "inventory"

type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "inventoryctl",
		Short:         "Manage the bookstore inventory database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to the dotenv file")

	root.AddCommand(
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newPurgeCmd(opts),
		newListCmd(opts),
		newSellCmd(opts),
		newHealthCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := configloader.Load[*config.Config](appName,
		configloader.WithFile(opts.configFile),
		configloader.WithEnvFile(opts.envFile),
		configloader.WithDefaults(config.Defaults()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, bootstrap.NewLoggerTo(cmd.ErrOrStderr(), cfg.Log), nil
}

// session is an open database with the inventory service on top.
type session struct {
	db      *app.Database
	service *service.Service
}

func (s *session) Close() error {
	return s.db.Close()
}

// openSession loads the configuration and opens the database.
// The schema is migrated first when the configuration asks for it or migrate is set.
func openSession(ctx context.Context, cmd *cobra.Command, opts *rootOptions, migrate bool) (*session, error) {
	cfg, logger, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}

	db, err := app.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if migrate || cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	st, err := store.NewSQLStore(db.DB, db.Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &session{db: db, service: service.NewService(st, notify.NewHub(logger), logger)}, nil
}

// withSession runs fn against an open session and closes it afterwards.
func withSession(cmd *cobra.Command, opts *rootOptions, migrate bool, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, cmd, opts, migrate)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(ctx, s)
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply all pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, true, func(_ context.Context, _ *session) error {
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
				return nil
			})
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the sample product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, false, func(ctx context.Context, s *session) error {
				id, err := s.service.SeedDummy(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Inserted product %d\n", id)
				return nil
			})
		},
	}
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, false, func(ctx context.Context, s *session) error {
				rows, err := s.service.DeleteAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d products\n", rows)
				return nil
			})
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var sortOrder string
	var supplier string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := service.ListQuery{SortOrder: sortOrder}
			if supplier != "" {
				q.Filter = map[string]string{store.ColumnSupplier: supplier}
			}
			return withSession(cmd, opts, false, func(ctx context.Context, s *session) error {
				return printProducts(cmd.OutOrStdout(), s.service.List(ctx, q))
			})
		},
	}
	cmd.Flags().StringVar(&sortOrder, "sort", "", `sort order, e.g. "quantity DESC, name"`)
	cmd.Flags().StringVar(&supplier, "supplier", "", "only list products of this supplier")
	return cmd
}

func newSellCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sell <id>",
		Short: "Record the sale of one copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			return withSession(cmd, opts, false, func(ctx context.Context, s *session) error {
				rows, err := s.service.Sell(ctx, id)
				if err != nil {
					return err
				}
				if rows == 0 {
					return fmt.Errorf("product %d not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sold one copy of product %d\n", id)
				return nil
			})
		},
	}
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Ask a running server for its serving status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			client, err := grpcclient.NewHealthClient(cfg.Client, cfg.CircuitBreaker, logger)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			status, err := client.Check(cmd.Context(), service)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("%s is %s", cfg.Client.Addr, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "service name to check, empty for the whole server")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var durable string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print product change events published to NATS until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			nc, err := pkgnats.NewClient(cfg.NATS.Url, cfg.NATS.Timeout, pkgnats.WithConnectionLogging(logger))
			if err != nil {
				return err
			}
			defer nc.Close()
			js, err := pkgnats.NewJetStreamContext(nc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			sub, err := pkgnats.NewSubscriber(cmd.Context(), js, cfg.NATS.Stream, durable, cfg.NATS.Timeout,
				func(_ context.Context, event events.ProductsChangedEvent) error {
					_, err := fmt.Fprintf(out, "%s\t%s\t%s\n", event.OccurredAt.Format(time.RFC3339), event.Op, event.Path)
					return err
				}, logger)
			if err != nil {
				return err
			}
			if err := sub.Run(cmd.Context(), 1); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&durable, "durable", "", "durable consumer name; empty only shows new events")
	return cmd
}

func printProducts(w io.Writer, products iter.Seq2[service.ProductDto, error]) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tQUANTITY\tSUPPLIER\tPHONE")
	for p, err := range products {
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n", p.ID, p.Name, p.Price, p.Quantity, p.SupplierName, p.SupplierPhone)
	}
	return tw.Flush()
}
