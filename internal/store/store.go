// Package store provides an interface for product storage operations.
package store

import (
	"context"
	"iter"
	"math"
)

// Column names of the products table.
const (
	Table          = "products"
	ColumnID       = "_id"
	ColumnName     = "name"
	ColumnPrice    = "price"
	ColumnQuantity = "quantity"
	ColumnSupplier = "supplier"
	ColumnPhone    = "phone"
)

// MaxQuantity is the largest quantity a product row can hold.
const MaxQuantity = math.MaxInt32

// Product is one row of the products table.
type Product struct {
	ID       int64
	Name     string
	Price    int64
	Quantity int32
	Supplier string
	Phone    string
}

// NewProduct holds the values of a row to insert.
type NewProduct struct {
	Name     string
	Price    int64
	Quantity int32
	Supplier string
	Phone    string
}

// ProductPatch lists the columns to change. A nil field keeps its stored value.
type ProductPatch struct {
	Name     *string
	Price    *int64
	Quantity *int32
	Supplier *string
	Phone    *string
}

// IsEmpty reports whether the patch changes nothing.
func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Price == nil && p.Quantity == nil && p.Supplier == nil && p.Phone == nil
}

func (p ProductPatch) toMap() map[string]any {
	m := make(map[string]any, 5)
	if p.Name != nil {
		m[ColumnName] = *p.Name
	}
	if p.Price != nil {
		m[ColumnPrice] = *p.Price
	}
	if p.Quantity != nil {
		m[ColumnQuantity] = *p.Quantity
	}
	if p.Supplier != nil {
		m[ColumnSupplier] = *p.Supplier
	}
	if p.Phone != nil {
		m[ColumnPhone] = *p.Phone
	}
	return m
}

// Query narrows a listing. The zero value selects every column of every row ordered by id.
type Query struct {
	// Columns is the projection; empty means all columns.
	Columns []string
	// Filter matches rows whose column equals the value.
	Filter map[string]any
	// SortOrder is "column [ASC|DESC]" terms separated by commas.
	SortOrder string
}

// ProductStore is an interface for product storage operations.
// It abstracts the underlying data store, allowing for different engines (SQLite, PostgreSQL).
// Implementations run exactly the statements they are asked to and apply no business rules.
type ProductStore interface {
	// Insert adds a row and returns the id the engine assigned to it.
	Insert(ctx context.Context, product NewProduct) (int64, error)

	// Update applies patch to the row with the given id and returns the number of rows changed.
	// An empty patch returns 0 without touching the database.
	Update(ctx context.Context, id int64, patch ProductPatch) (int64, error)

	// AddQuantity adds delta to the quantity of the row unless the result would leave [0, MaxQuantity].
	// Returns the number of rows changed.
	AddQuantity(ctx context.Context, id int64, delta int32) (int64, error)

	// Delete removes the row with the given id and returns the number of rows removed.
	Delete(ctx context.Context, id int64) (int64, error)

	// DeleteAll removes every row and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)

	// FindByID retrieves a single product by its identifier, reading only the given columns.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id int64, columns ...string) (*Product, error)

	// FindAll returns a lazy sequence over the rows matching q. The statement runs when
	// iteration starts, so ranging twice reads the table twice.
	FindAll(ctx context.Context, q Query) iter.Seq2[Product, error]

	// Count returns the number of rows.
	Count(ctx context.Context) (int64, error)
}
