package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kristinauko/BookStoreInventory/internal/store"
	"github.com/kristinauko/BookStoreInventory/pkg/bootstrap"
	"github.com/kristinauko/BookStoreInventory/pkg/config"
)

// Database is an open engine handle together with its SQL dialect.
type Database struct {
	DB      *sql.DB
	Dialect store.Dialect

	cfg  config.DatabaseConfig
	pool *pgxpool.Pool
}

// OpenDatabase connects to the engine named by cfg.Driver.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := bootstrap.NewSQLiteDB(ctx, cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return &Database{DB: db, Dialect: store.DialectSQLite, cfg: cfg}, nil
	case config.DriverPostgres:
		pool, err := bootstrap.NewDbPool(ctx, cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return &Database{DB: bootstrap.NewPostgresDB(pool), Dialect: store.DialectPostgres, cfg: cfg, pool: pool}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate applies the schema migrations on a dedicated handle, since the
// migrator closes the handle it is given.
func (d *Database) Migrate(ctx context.Context) error {
	var db *sql.DB
	switch d.Dialect {
	case store.DialectSQLite:
		var err error
		if db, err = bootstrap.NewSQLiteDB(ctx, d.cfg.URL, d.cfg.Timeout); err != nil {
			return err
		}
	case store.DialectPostgres:
		db = bootstrap.NewPostgresDB(d.pool)
	}
	if err := store.Migrate(db, d.Dialect); err != nil {
		return fmt.Errorf("failed to migrate %s database: %w", d.Dialect, err)
	}
	return nil
}

// Close releases the handle and, for PostgreSQL, the pool behind it.
func (d *Database) Close() error {
	err := d.DB.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}
