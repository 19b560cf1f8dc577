package store

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	perrors "github.com/kristinauko/BookStoreInventory/internal/errors"
	"github.com/kristinauko/BookStoreInventory/pkg/bootstrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// storeSuite holds the engine independent cases. Concrete suites provide db and store.
type storeSuite struct {
	suite.Suite
	ctx   context.Context
	db    *sql.DB
	store *SQLStore
}

// SetupTest empties the table. Ids keep growing across tests.
func (s *storeSuite) SetupTest() {
	_, err := s.db.ExecContext(s.ctx, "DELETE FROM products")
	require.NoError(s.T(), err, "Failed to clean products table")
}

func ptr[T any](v T) *T { return &v }

func greatestClimbs() NewProduct {
	return NewProduct{Name: "Greatest climbs", Price: 10, Quantity: 100, Supplier: "Frances Lincoln", Phone: "4154547890"}
}

func (s *storeSuite) insert(p NewProduct) int64 {
	s.T().Helper()
	id, err := s.store.Insert(s.ctx, p)
	require.NoError(s.T(), err, "insert helper failed")
	return id
}

func (s *storeSuite) collect(q Query) []Product {
	s.T().Helper()
	var out []Product
	for p, err := range s.store.FindAll(s.ctx, q) {
		require.NoError(s.T(), err)
		out = append(out, p)
	}
	return out
}

func (s *storeSuite) TestInsertAndFindByID() {
	// given
	id := s.insert(greatestClimbs())

	// when
	got, err := s.store.FindByID(s.ctx, id)

	// then
	require.NoError(s.T(), err)
	assert.Equal(s.T(), Product{ID: id, Name: "Greatest climbs", Price: 10, Quantity: 100, Supplier: "Frances Lincoln", Phone: "4154547890"}, *got)
}

func (s *storeSuite) TestFindByID_Projection() {
	// given
	id := s.insert(greatestClimbs())

	// when
	got, err := s.store.FindByID(s.ctx, id, "name", "quantity")

	// then
	require.NoError(s.T(), err)
	assert.Equal(s.T(), Product{Name: "Greatest climbs", Quantity: 100}, *got)
}

func (s *storeSuite) TestFindByID_NotFound() {
	// when
	_, err := s.store.FindByID(s.ctx, 999999)

	// then
	require.ErrorIs(s.T(), err, perrors.ErrProductNotFound)
}

func (s *storeSuite) TestFindByID_UnknownColumn() {
	// when
	_, err := s.store.FindByID(s.ctx, 1, "author")

	// then
	require.ErrorIs(s.T(), err, perrors.ErrInvalidQuery)
}

func (s *storeSuite) TestIDsAreNeverReused() {
	// given
	first := s.insert(greatestClimbs())
	n, err := s.store.Delete(s.ctx, first)
	require.NoError(s.T(), err)
	require.Equal(s.T(), int64(1), n)

	// when
	second := s.insert(greatestClimbs())

	// then
	assert.Greater(s.T(), second, first)
}

func (s *storeSuite) TestUpdate() {
	testCases := []struct {
		name      string
		patch     ProductPatch
		missingID bool
		wantRows  int64
		want      func(id int64) Product
	}{
		{
			name:     "single field",
			patch:    ProductPatch{Quantity: ptr(int32(99))},
			wantRows: 1,
			want: func(id int64) Product {
				return Product{ID: id, Name: "Greatest climbs", Price: 10, Quantity: 99, Supplier: "Frances Lincoln", Phone: "4154547890"}
			},
		},
		{
			name:     "all fields",
			patch:    ProductPatch{Name: ptr("Alpine"), Price: ptr(int64(25)), Quantity: ptr(int32(3)), Supplier: ptr("Cicerone"), Phone: ptr("0123456789")},
			wantRows: 1,
			want: func(id int64) Product {
				return Product{ID: id, Name: "Alpine", Price: 25, Quantity: 3, Supplier: "Cicerone", Phone: "0123456789"}
			},
		},
		{
			name:     "empty patch",
			patch:    ProductPatch{},
			wantRows: 0,
			want: func(id int64) Product {
				return Product{ID: id, Name: "Greatest climbs", Price: 10, Quantity: 100, Supplier: "Frances Lincoln", Phone: "4154547890"}
			},
		},
		{
			name:      "missing id",
			patch:     ProductPatch{Name: ptr("Ghost")},
			missingID: true,
			wantRows:  0,
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.SetupTest()
			// given
			id := s.insert(greatestClimbs())
			target := id
			if tc.missingID {
				target = id + 1000
			}

			// when
			rows, err := s.store.Update(s.ctx, target, tc.patch)

			// then
			require.NoError(s.T(), err)
			assert.Equal(s.T(), tc.wantRows, rows)
			if tc.want != nil {
				got, err := s.store.FindByID(s.ctx, id)
				require.NoError(s.T(), err)
				assert.Equal(s.T(), tc.want(id), *got)
			}
		})
	}
}

func (s *storeSuite) TestAddQuantity() {
	testCases := []struct {
		name      string
		start     int32
		delta     int32
		missingID bool
		wantRows  int64
		wantQty   int32
	}{
		{name: "sell one", start: 2, delta: -1, wantRows: 1, wantQty: 1},
		{name: "restock", start: 0, delta: 5, wantRows: 1, wantQty: 5},
		{name: "sell last", start: 1, delta: -1, wantRows: 1, wantQty: 0},
		{name: "never below zero", start: 0, delta: -1, wantRows: 0, wantQty: 0},
		{name: "overdraw", start: 3, delta: -4, wantRows: 0, wantQty: 3},
		{name: "missing id", start: 3, delta: -1, missingID: true, wantRows: 0, wantQty: 3},
		{name: "up to max", start: MaxQuantity - 1, delta: 1, wantRows: 1, wantQty: MaxQuantity},
		{name: "never above max", start: MaxQuantity, delta: 1, wantRows: 0, wantQty: MaxQuantity},
		{name: "largest restock overflows", start: 1, delta: math.MaxInt32, wantRows: 0, wantQty: 1},
		{name: "largest sale on small stock", start: 5, delta: math.MinInt32, wantRows: 0, wantQty: 5},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.SetupTest()
			// given
			p := greatestClimbs()
			p.Quantity = tc.start
			id := s.insert(p)
			target := id
			if tc.missingID {
				target = id + 1000
			}

			// when
			rows, err := s.store.AddQuantity(s.ctx, target, tc.delta)

			// then
			require.NoError(s.T(), err)
			assert.Equal(s.T(), tc.wantRows, rows)
			got, err := s.store.FindByID(s.ctx, id, ColumnQuantity)
			require.NoError(s.T(), err)
			assert.Equal(s.T(), tc.wantQty, got.Quantity)
		})
	}
}

func (s *storeSuite) TestAddQuantity_RefusedOverflowKeepsRowsReadable() {
	// given
	p := greatestClimbs()
	p.Quantity = MaxQuantity
	id := s.insert(p)

	// when
	rows, err := s.store.AddQuantity(s.ctx, id, 1)

	// then
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(0), rows)
	all := s.collect(Query{})
	require.Len(s.T(), all, 1)
	assert.Equal(s.T(), int32(MaxQuantity), all[0].Quantity)
}

func (s *storeSuite) TestDelete_Missing() {
	// when
	rows, err := s.store.Delete(s.ctx, 424242)

	// then
	require.NoError(s.T(), err)
	assert.Zero(s.T(), rows)
}

func (s *storeSuite) TestDeleteAll() {
	// given
	s.insert(greatestClimbs())
	s.insert(greatestClimbs())
	s.insert(greatestClimbs())

	// when
	rows, err := s.store.DeleteAll(s.ctx)

	// then
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(3), rows)
	assert.Empty(s.T(), s.collect(Query{}))
	count, err := s.store.Count(s.ctx)
	require.NoError(s.T(), err)
	assert.Zero(s.T(), count)
}

func (s *storeSuite) TestDeleteAll_Empty() {
	// when
	rows, err := s.store.DeleteAll(s.ctx)

	// then
	require.NoError(s.T(), err)
	assert.Zero(s.T(), rows)
}

func (s *storeSuite) TestFindAll_Query() {
	// given
	a := greatestClimbs()
	b := NewProduct{Name: "Alpine ascents", Price: 30, Quantity: 5, Supplier: "Cicerone", Phone: "0123456789"}
	c := NewProduct{Name: "Big walls", Price: 20, Quantity: 5, Supplier: "Cicerone", Phone: "0123456789"}
	idA, idB, idC := s.insert(a), s.insert(b), s.insert(c)

	testCases := []struct {
		name  string
		query Query
		want  []int64
	}{
		{name: "default order is by id", query: Query{}, want: []int64{idA, idB, idC}},
		{name: "sort by name", query: Query{SortOrder: "name"}, want: []int64{idB, idC, idA}},
		{name: "sort by price desc", query: Query{SortOrder: "price DESC"}, want: []int64{idB, idC, idA}},
		{name: "two sort terms", query: Query{SortOrder: "quantity asc, price asc"}, want: []int64{idC, idB, idA}},
		{name: "filter by supplier", query: Query{Filter: map[string]any{"supplier": "Cicerone"}}, want: []int64{idB, idC}},
		{name: "filter by alias", query: Query{Filter: map[string]any{"supplier_name": "Frances Lincoln"}}, want: []int64{idA}},
		{name: "filter integer given as text", query: Query{Filter: map[string]any{"quantity": "5"}, SortOrder: "_id DESC"}, want: []int64{idC, idB}},
		{name: "filter by id alias", query: Query{Filter: map[string]any{"id": idB}}, want: []int64{idB}},
		{name: "filter matches nothing", query: Query{Filter: map[string]any{"name": "Nope"}}, want: nil},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			// when
			got := s.collect(tc.query)

			// then
			var ids []int64
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(s.T(), tc.want, ids)
		})
	}
}

func (s *storeSuite) TestFindAll_Projection() {
	// given
	s.insert(greatestClimbs())

	// when
	got := s.collect(Query{Columns: []string{"phone"}})

	// then
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), Product{Phone: "4154547890"}, got[0])
}

func (s *storeSuite) TestFindAll_InvalidQuery() {
	testCases := []struct {
		name  string
		query Query
	}{
		{name: "unknown projection", query: Query{Columns: []string{"isbn"}}},
		{name: "unknown sort column", query: Query{SortOrder: "author"}},
		{name: "bad direction", query: Query{SortOrder: "name sideways"}},
		{name: "injection attempt", query: Query{SortOrder: "name; DROP TABLE products"}},
		{name: "unknown filter column", query: Query{Filter: map[string]any{"author": "x"}}},
		{name: "non numeric integer filter", query: Query{Filter: map[string]any{"price": "ten"}}},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			// when
			var errs []error
			for _, err := range s.store.FindAll(s.ctx, tc.query) {
				errs = append(errs, err)
			}

			// then
			require.Len(s.T(), errs, 1)
			assert.ErrorIs(s.T(), errs[0], perrors.ErrInvalidQuery)
		})
	}
}

func (s *storeSuite) TestFindAll_IsRestartable() {
	// given
	s.insert(greatestClimbs())
	seq := s.store.FindAll(s.ctx, Query{})
	first := 0
	for _, err := range seq {
		require.NoError(s.T(), err)
		first++
	}
	s.insert(greatestClimbs())

	// when
	second := 0
	for _, err := range seq {
		require.NoError(s.T(), err)
		second++
	}

	// then
	assert.Equal(s.T(), 1, first)
	assert.Equal(s.T(), 2, second)
}

func (s *storeSuite) TestFindAll_EarlyBreak() {
	// given
	s.insert(greatestClimbs())
	s.insert(greatestClimbs())

	// when
	seen := 0
	for _, err := range s.store.FindAll(s.ctx, Query{}) {
		require.NoError(s.T(), err)
		seen++
		break
	}

	// then
	assert.Equal(s.T(), 1, seen)
	count, err := s.store.Count(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), count)
}

// SQLiteStoreSuite runs the store cases against a temporary SQLite file.
type SQLiteStoreSuite struct {
	storeSuite
	dsn string
}

func sqliteDSN(dir string) string {
	return "file:" + filepath.Join(dir, "inventory.db") + "?_busy_timeout=5000&_journal_mode=WAL"
}

func (s *SQLiteStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.dsn = sqliteDSN(s.T().TempDir())

	migrationDB, err := bootstrap.NewSQLiteDB(s.ctx, s.dsn, 5*time.Second)
	require.NoError(s.T(), err)
	require.NoError(s.T(), Migrate(migrationDB, DialectSQLite), "Failed to apply migrations")

	s.db, err = bootstrap.NewSQLiteDB(s.ctx, s.dsn, 5*time.Second)
	require.NoError(s.T(), err)
	s.store, err = NewSQLStore(s.db, DialectSQLite)
	require.NoError(s.T(), err)
}

func (s *SQLiteStoreSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *SQLiteStoreSuite) TestMigrate_IsIdempotent() {
	// given
	db, err := bootstrap.NewSQLiteDB(s.ctx, s.dsn, 5*time.Second)
	require.NoError(s.T(), err)

	// when
	err = Migrate(db, DialectSQLite)

	// then
	require.NoError(s.T(), err)
}

func (s *SQLiteStoreSuite) TestPing() {
	require.NoError(s.T(), s.store.Ping(s.ctx))
}

func TestSQLiteStore(t *testing.T) {
	suite.Run(t, new(SQLiteStoreSuite))
}

func Test_Migrate_KeepsExistingInventoryFile(t *testing.T) {
	// given a file created by the original app, without a migrations table
	ctx := context.Background()
	dsn := sqliteDSN(t.TempDir())
	legacy, err := bootstrap.NewSQLiteDB(ctx, dsn, 5*time.Second)
	require.NoError(t, err)
	_, err = legacy.Exec("CREATE TABLE products (_id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, price INTEGER NOT NULL DEFAULT 0, quantity INTEGER NOT NULL DEFAULT 0, supplier TEXT NOT NULL, phone TEXT NOT NULL);")
	require.NoError(t, err)
	_, err = legacy.Exec("INSERT INTO products (name, price, quantity, supplier, phone) VALUES ('Greatest climbs', 10, 100, 'Frances Lincoln', '4154547890')")
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	// when
	migrationDB, err := bootstrap.NewSQLiteDB(ctx, dsn, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, Migrate(migrationDB, DialectSQLite))

	// then
	db, err := bootstrap.NewSQLiteDB(ctx, dsn, 5*time.Second)
	require.NoError(t, err)
	defer db.Close()
	store, err := NewSQLStore(db, DialectSQLite)
	require.NoError(t, err)
	got, err := store.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Greatest climbs", got.Name)
}

func Test_NewSQLStore_UnknownDialect(t *testing.T) {
	_, err := NewSQLStore(nil, Dialect("oracle"))
	require.Error(t, err)
}

func Test_Migrate_UnknownDialect(t *testing.T) {
	db, err := sql.Open("sqlite3", sqliteDSN(t.TempDir()))
	require.NoError(t, err)
	require.Error(t, Migrate(db, Dialect("oracle")))
}
