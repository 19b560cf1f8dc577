package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/Masterminds/squirrel"
	perrors "github.com/kristinauko/BookStoreInventory/internal/errors"
)

// Dialect selects the SQL flavour of the engine behind a *sql.DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements ProductStore over database/sql.
type SQLStore struct {
	db *sql.DB
	sb squirrel.StatementBuilderType
}

// NewSQLStore creates a new instance of ProductStore for the given engine.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	var placeholder squirrel.PlaceholderFormat
	switch dialect {
	case DialectSQLite:
		placeholder = squirrel.Question
	case DialectPostgres:
		placeholder = squirrel.Dollar
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return &SQLStore{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(placeholder).RunWith(db),
	}, nil
}

// Insert adds a product and returns the id assigned by the engine.
// Returns ErrStorage if the statement fails or the engine reports no id.
func (s *SQLStore) Insert(ctx context.Context, product NewProduct) (int64, error) {
	var id int64
	err := s.sb.Insert(Table).
		Columns(ColumnName, ColumnPrice, ColumnQuantity, ColumnSupplier, ColumnPhone).
		Values(product.Name, product.Price, product.Quantity, product.Supplier, product.Phone).
		Suffix("RETURNING " + ColumnID).
		QueryRowContext(ctx).
		Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, perrors.Storage("insert product", errors.New("no row id returned"))
		}
		return 0, perrors.Storage("insert product", err)
	}
	if id <= 0 {
		return 0, perrors.Storage("insert product", fmt.Errorf("invalid row id %d", id))
	}
	return id, nil
}

// Update modifies the columns set in patch for the product with the given id.
func (s *SQLStore) Update(ctx context.Context, id int64, patch ProductPatch) (int64, error) {
	if patch.IsEmpty() {
		return 0, nil
	}
	res, err := s.sb.Update(Table).
		SetMap(patch.toMap()).
		Where(squirrel.Eq{ColumnID: id}).
		ExecContext(ctx)
	return rowsAffected("update product", res, err)
}

// AddQuantity changes quantity by delta in one statement, guarded so the result stays
// within [0, MaxQuantity]. A refused change affects no rows.
func (s *SQLStore) AddQuantity(ctx context.Context, id int64, delta int32) (int64, error) {
	res, err := s.sb.Update(Table).
		Set(ColumnQuantity, squirrel.Expr(ColumnQuantity+" + ?", delta)).
		Where(squirrel.Eq{ColumnID: id}).
		Where(squirrel.Expr(ColumnQuantity+" >= CAST(? AS BIGINT)", -int64(delta))).
		Where(squirrel.Expr(ColumnQuantity+" <= CAST(? AS BIGINT)", MaxQuantity-int64(delta))).
		ExecContext(ctx)
	return rowsAffected("adjust product quantity", res, err)
}

// Delete removes a product by its ID.
func (s *SQLStore) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := s.sb.Delete(Table).
		Where(squirrel.Eq{ColumnID: id}).
		ExecContext(ctx)
	return rowsAffected("delete product", res, err)
}

// DeleteAll removes every product.
func (s *SQLStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.sb.Delete(Table).ExecContext(ctx)
	return rowsAffected("delete all products", res, err)
}

// FindByID retrieves a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID.
func (s *SQLStore) FindByID(ctx context.Context, id int64, columns ...string) (*Product, error) {
	cols, err := ResolveColumns(columns)
	if err != nil {
		return nil, err
	}
	var p Product
	err = s.sb.Select(cols...).
		From(Table).
		Where(squirrel.Eq{ColumnID: id}).
		QueryRowContext(ctx).
		Scan(scanTargets(&p, cols)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, perrors.Storage("find product by ID", err)
	}
	return &p, nil
}

// FindAll streams the products matching q. Each range over the result runs a fresh query.
func (s *SQLStore) FindAll(ctx context.Context, q Query) iter.Seq2[Product, error] {
	return func(yield func(Product, error) bool) {
		builder, cols, err := s.selectFor(q)
		if err != nil {
			yield(Product{}, err)
			return
		}
		rows, err := builder.QueryContext(ctx)
		if err != nil {
			yield(Product{}, perrors.Storage("list products", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var p Product
			if err := rows.Scan(scanTargets(&p, cols)...); err != nil {
				yield(Product{}, perrors.Storage("scan product", err))
				return
			}
			if !yield(p, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Product{}, perrors.Storage("list products", err))
		}
	}
}

// Count returns the number of products.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.sb.Select("COUNT(*)").From(Table).QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, perrors.Storage("count products", err)
	}
	return n, nil
}

// Ping reports whether the engine is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return perrors.Storage("ping", err)
	}
	return nil
}

func (s *SQLStore) selectFor(q Query) (squirrel.SelectBuilder, []string, error) {
	cols, err := ResolveColumns(q.Columns)
	if err != nil {
		return squirrel.SelectBuilder{}, nil, err
	}
	order, err := parseSortOrder(q.SortOrder)
	if err != nil {
		return squirrel.SelectBuilder{}, nil, err
	}
	filter, err := buildFilter(q.Filter)
	if err != nil {
		return squirrel.SelectBuilder{}, nil, err
	}
	builder := s.sb.Select(cols...).From(Table).OrderBy(order...)
	if filter != nil {
		builder = builder.Where(filter)
	}
	return builder, cols, nil
}

func rowsAffected(op string, res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, perrors.Storage(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, perrors.Storage(op, fmt.Errorf("getting affected rows: %w", err))
	}
	return n, nil
}
