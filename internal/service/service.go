// Package service provides the inventory business logic: validation,
// persistence through the store and change notification.
package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	perrors "github.com/kristinauko/BookStoreInventory/internal/errors"
	"github.com/kristinauko/BookStoreInventory/internal/notify"
	"github.com/kristinauko/BookStoreInventory/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InventoryService defines the operations on inventory records.
// Mutations validate first and notify observers only when a row changed.
type InventoryService interface {
	// Create validates and stores a new product and returns its id.
	// Returns a *ValidationError if a field breaks a rule.
	Create(ctx context.Context, product ProductCreateDto) (int64, error)

	// Update changes the fields present in patch and returns the rows affected.
	// An empty patch or an unknown id returns 0.
	Update(ctx context.Context, id int64, patch ProductPatchDto) (int64, error)

	// Delete removes a product and returns the rows affected.
	Delete(ctx context.Context, id int64) (int64, error)

	// DeleteAll removes every product and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)

	// Get retrieves one product, optionally only the given columns.
	// Returns ErrProductNotFound if no product exists with the given ID.
	Get(ctx context.Context, id int64, columns ...string) (*ProductDto, error)

	// List returns a lazy sequence over the products matching q.
	List(ctx context.Context, q ListQuery) iter.Seq2[ProductDto, error]

	// Count returns the number of products.
	Count(ctx context.Context) (int64, error)

	// Sell decrements the quantity by one. Selling a product that is out of stock fails validation.
	Sell(ctx context.Context, id int64) (int64, error)

	// AdjustQuantity adds delta to the quantity; the result may not drop below zero.
	AdjustQuantity(ctx context.Context, id int64, delta int32) (int64, error)

	// SeedDummy inserts the sample product.
	SeedDummy(ctx context.Context) (int64, error)
}

// Service implements InventoryService.
type Service struct {
	repository store.ProductStore
	notifier   notify.Notifier
	logger     *slog.Logger
	changes    metric.Int64Counter
}

// NewService creates a new instance of InventoryService.
func NewService(repo store.ProductStore, notifier notify.Notifier, logger *slog.Logger) *Service {
	meter := otel.Meter("inventory-service")
	changes, err := meter.Int64Counter("inventory_changes", metric.WithDescription("Total number of effective inventory mutations"))
	if err != nil {
		panic(fmt.Sprintf("failed to create inventory_changes counter: %v", err))
	}
	return &Service{
		repository: repo,
		notifier:   notifier,
		logger:     logger.With("component", "service"),
		changes:    changes,
	}
}

// ProductCreateDto is the input of Create. Omitted price and quantity default to zero.
type ProductCreateDto struct {
	Name          string `json:"name"           validate:"required"`
	Price         *int64 `json:"price"          validate:"omitnil,min=0"`
	Quantity      *int32 `json:"quantity"       validate:"omitnil,min=0"`
	SupplierName  string `json:"supplier_name"  validate:"required"`
	SupplierPhone string `json:"supplier_phone" validate:"required"`
}

// ProductPatchDto is the input of Update. A nil field is left unchanged.
type ProductPatchDto struct {
	Name          *string `json:"name"           validate:"omitnil,min=1"`
	Price         *int64  `json:"price"          validate:"omitnil,min=0"`
	Quantity      *int32  `json:"quantity"       validate:"omitnil,min=0"`
	SupplierName  *string `json:"supplier_name"  validate:"omitnil,min=1"`
	SupplierPhone *string `json:"supplier_phone" validate:"omitnil,min=1"`
}

// IsEmpty reports whether the patch carries no field.
func (p ProductPatchDto) IsEmpty() bool {
	return p.toPatch().IsEmpty()
}

func (p ProductPatchDto) toPatch() store.ProductPatch {
	return store.ProductPatch{
		Name:     p.Name,
		Price:    p.Price,
		Quantity: p.Quantity,
		Supplier: p.SupplierName,
		Phone:    p.SupplierPhone,
	}
}

// ProductDto represents the data transfer object for a product.
type ProductDto struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	Quantity      int32  `json:"quantity"`
	SupplierName  string `json:"supplier_name"`
	SupplierPhone string `json:"supplier_phone"`
}

// ListQuery narrows List. Filter values are compared for equality.
type ListQuery struct {
	Columns   []string
	Filter    map[string]string
	SortOrder string
}

func (q ListQuery) toQuery() store.Query {
	var filter map[string]any
	if len(q.Filter) > 0 {
		filter = make(map[string]any, len(q.Filter))
		for k, v := range q.Filter {
			filter[k] = v
		}
	}
	return store.Query{Columns: q.Columns, Filter: filter, SortOrder: q.SortOrder}
}

// Dummy is the sample product inserted by SeedDummy.
var Dummy = ProductCreateDto{
	Name:          "Greatest climbs",
	Price:         ptr(int64(10)),
	Quantity:      ptr(int32(100)),
	SupplierName:  "Frances Lincoln",
	SupplierPhone: "4154547890",
}

const (
	reasonOutOfStock  = "out of stock"
	reasonNegative    = "must not be negative"
	reasonOutOfRange  = "out of range"
	fieldQuantity     = "quantity"
	quantityDecrement = -1
)

// Create validates the product, stores it and returns the new id.
func (s *Service) Create(ctx context.Context, product ProductCreateDto) (int64, error) {
	if err := validate(product); err != nil {
		return 0, err
	}
	id, err := s.repository.Insert(ctx, store.NewProduct{
		Name:     product.Name,
		Price:    deref(product.Price),
		Quantity: deref(product.Quantity),
		Supplier: product.SupplierName,
		Phone:    product.SupplierPhone,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create product: %w", err)
	}
	s.changed(ctx, notify.Change{Op: notify.OpInsert, ID: id})
	return id, nil
}

// Update validates the present fields and applies them.
func (s *Service) Update(ctx context.Context, id int64, patch ProductPatchDto) (int64, error) {
	if patch.IsEmpty() {
		return 0, nil
	}
	if err := validate(patch); err != nil {
		return 0, err
	}
	rows, err := s.repository.Update(ctx, id, patch.toPatch())
	if err != nil {
		return 0, fmt.Errorf("failed to update product with ID %d: %w", id, err)
	}
	if rows > 0 {
		s.changed(ctx, notify.Change{Op: notify.OpUpdate, ID: id})
	}
	return rows, nil
}

// Delete removes the product with the given id.
func (s *Service) Delete(ctx context.Context, id int64) (int64, error) {
	rows, err := s.repository.Delete(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete product with ID %d: %w", id, err)
	}
	if rows > 0 {
		s.changed(ctx, notify.Change{Op: notify.OpDelete, ID: id})
	}
	return rows, nil
}

// DeleteAll removes every product.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	rows, err := s.repository.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete all products: %w", err)
	}
	if rows > 0 {
		s.changed(ctx, notify.Change{Op: notify.OpDeleteAll})
	}
	return rows, nil
}

// Get retrieves a product by its ID and returns it as a ProductDto.
// Returns ErrProductNotFound if no product exists with the given ID.
func (s *Service) Get(ctx context.Context, id int64, columns ...string) (*ProductDto, error) {
	product, err := s.repository.FindByID(ctx, id, columns...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %d: %w", id, err)
	}
	return toDto(product), nil
}

// List streams products as ProductDtos. Ranging over the result again re-reads the store.
func (s *Service) List(ctx context.Context, q ListQuery) iter.Seq2[ProductDto, error] {
	products := s.repository.FindAll(ctx, q.toQuery())
	return func(yield func(ProductDto, error) bool) {
		for p, err := range products {
			if err != nil {
				yield(ProductDto{}, fmt.Errorf("failed to fetch products: %w", err))
				return
			}
			if !yield(*toDto(&p), nil) {
				return
			}
		}
	}
}

// Count returns the number of products.
func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.repository.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// Sell records the sale of one copy.
func (s *Service) Sell(ctx context.Context, id int64) (int64, error) {
	return s.adjust(ctx, id, quantityDecrement, reasonOutOfStock)
}

// AdjustQuantity adds delta to the quantity of the product. A zero delta is a no-op.
// The result must stay within [0, store.MaxQuantity].
func (s *Service) AdjustQuantity(ctx context.Context, id int64, delta int32) (int64, error) {
	if delta == 0 {
		return 0, nil
	}
	reason := reasonNegative
	if delta > 0 {
		reason = reasonOutOfRange
	}
	return s.adjust(ctx, id, delta, reason)
}

func (s *Service) adjust(ctx context.Context, id int64, delta int32, reason string) (int64, error) {
	rows, err := s.repository.AddQuantity(ctx, id, delta)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust quantity of product with ID %d: %w", id, err)
	}
	if rows > 0 {
		s.changed(ctx, notify.Change{Op: notify.OpUpdate, ID: id})
		return rows, nil
	}
	// Nothing changed: either the row is missing or the guard refused the new quantity.
	if _, err := s.repository.FindByID(ctx, id, store.ColumnID); err != nil {
		if errors.Is(err, perrors.ErrProductNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to fetch product by ID %d: %w", id, err)
	}
	return 0, perrors.NewValidationError(fieldQuantity, reason)
}

// SeedDummy inserts the sample product and returns its id.
func (s *Service) SeedDummy(ctx context.Context) (int64, error) {
	return s.Create(ctx, Dummy)
}

func (s *Service) changed(ctx context.Context, change notify.Change) {
	s.changes.Add(ctx, 1, metric.WithAttributes(attribute.String("op", string(change.Op))))
	s.logger.DebugContext(ctx, "Inventory changed", "op", string(change.Op), "path", change.Path())
	s.notifier.Notify(ctx, change)
}

// toDto converts a store.Product to a ProductDto.
func toDto(product *store.Product) *ProductDto {
	return &ProductDto{
		ID:            product.ID,
		Name:          product.Name,
		Price:         product.Price,
		Quantity:      product.Quantity,
		SupplierName:  product.Supplier,
		SupplierPhone: product.Phone,
	}
}

func ptr[T any](v T) *T { return &v }

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
