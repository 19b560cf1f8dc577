// Package rest provides HTTP handlers for inventory operations.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	perrors "github.com/kristinauko/BookStoreInventory/internal/errors"
	"github.com/kristinauko/BookStoreInventory/internal/notify"
	"github.com/kristinauko/BookStoreInventory/internal/resource"
	"github.com/kristinauko/BookStoreInventory/internal/service"
	"github.com/kristinauko/BookStoreInventory/internal/store"
	"github.com/kristinauko/BookStoreInventory/pkg/web"
)

const (
	basePath = "/api/v1/products"

	// HeaderResourceType carries the vendor type of the addressed resource.
	HeaderResourceType = "X-Resource-Type"

	paramColumns = "columns"
	paramSort    = "sort"
	paramDelta   = "delta"
)

// Subscriber registers change observers.
type Subscriber interface {
	Subscribe(path string, observer notify.Observer) (*notify.Subscription, error)
}

type Handler struct {
	service service.InventoryService
	changes Subscriber
	logger  *slog.Logger
}

// NewHandler creates a new Handler with the provided service and change hub.
func NewHandler(service service.InventoryService, changes Subscriber, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		changes: changes,
		logger:  logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the inventory.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route(basePath, func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Delete("/", h.DeleteAll)
		r.Get("/changes", h.CollectionChanges)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/sale", h.Sell)
			r.Post("/adjust", h.AdjustQuantity)
			r.Get("/changes", h.ItemChanges)
		})
	})

	r.Get("/healthz", h.HealthCheck)
}

type createdResponse struct {
	ID int64 `json:"id"`
}

type rowsResponse struct {
	RowsAffected int64 `json:"rows_affected"`
}

// List returns the products matching the query string.
// columns=a,b selects a projection, sort=col [asc|desc],... orders the rows,
// any other parameter naming a column filters on equality.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	q, err := parseListQuery(r)
	if err != nil {
		mLogger.WarnContext(r.Context(), "Invalid list query", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to list products", "columns", q.Columns, "sort", q.SortOrder, "filter", q.Filter)

	list := make([]map[string]any, 0)
	for p, err := range h.service.List(r.Context(), q) {
		if err != nil {
			h.respondServiceError(w, r, mLogger, err, "Failed to fetch products")
			return
		}
		list = append(list, project(p, q.Columns))
	}
	mLogger.DebugContext(r.Context(), "Successfully retrieved product list", "count", len(list))
	w.Header().Set(HeaderResourceType, resource.ContentType(resource.Collection))
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// Get retrieves a product by its ID.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	columns := splitList(r.URL.Query().Get(paramColumns))
	mLogger.DebugContext(r.Context(), "Received request to find product by ID", "ID", id)
	found, err := h.service.Get(r.Context(), id, columns...)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, fmt.Sprintf("Failed to retrieve product with ID %d", id))
		return
	}
	w.Header().Set(HeaderResourceType, resource.ContentType(resource.Item))
	web.RespondJSON(w, mLogger, http.StatusOK, project(*found, columns))
}

// Create handles the creation of a new product.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	var productCreateDto service.ProductCreateDto
	if err := decode(r, &productCreateDto); err != nil {
		mLogger.WarnContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	id, err := h.service.Create(r.Context(), productCreateDto)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to create product")
		return
	}
	mLogger.InfoContext(r.Context(), "Product created successfully", "ID", id, "Name", productCreateDto.Name)
	w.Header().Set("Location", basePath+"/"+strconv.FormatInt(id, 10))
	web.RespondJSON(w, mLogger, http.StatusCreated, createdResponse{ID: id})
}

// Update applies a partial update. Only the fields present in the body change.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	var patch service.ProductPatchDto
	if err := decode(r, &patch); err != nil {
		mLogger.WarnContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	rows, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, fmt.Sprintf("Failed to update product with ID %d", id))
		return
	}
	if rows == 0 && !patch.IsEmpty() {
		h.respondNotFound(w, r, mLogger, id)
		return
	}
	mLogger.InfoContext(r.Context(), "Product updated", "ID", id, "rows", rows)
	web.RespondJSON(w, mLogger, http.StatusOK, rowsResponse{RowsAffected: rows})
}

// Delete deletes a product by its ID.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	rows, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, fmt.Sprintf("Failed to delete product with ID %d", id))
		return
	}
	if rows == 0 {
		h.respondNotFound(w, r, mLogger, id)
		return
	}
	mLogger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAll removes every product.
func (h *Handler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	rows, err := h.service.DeleteAll(r.Context())
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to delete products")
		return
	}
	mLogger.InfoContext(r.Context(), "All products deleted", "rows", rows)
	web.RespondJSON(w, mLogger, http.StatusOK, rowsResponse{RowsAffected: rows})
}

// Sell records the sale of one copy of a product.
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	rows, err := h.service.Sell(r.Context(), id)
	h.respondQuantityChange(w, r, mLogger, id, rows, err)
}

// AdjustQuantity adds the delta query parameter to the quantity of a product.
func (h *Handler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	delta, ok := web.ParseValidateNe(r, w, mLogger, paramDelta, 0)
	if !ok {
		return
	}
	rows, err := h.service.AdjustQuantity(r.Context(), id, delta)
	h.respondQuantityChange(w, r, mLogger, id, rows, err)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) respondQuantityChange(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, id, rows int64, err error) {
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, fmt.Sprintf("Failed to change quantity of product with ID %d", id))
		return
	}
	if rows == 0 {
		h.respondNotFound(w, r, mLogger, id)
		return
	}
	mLogger.InfoContext(r.Context(), "Product quantity changed", "ID", id)
	web.RespondJSON(w, mLogger, http.StatusOK, rowsResponse{RowsAffected: rows})
}

func (h *Handler) respondNotFound(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, id int64) {
	mLogger.WarnContext(r.Context(), "Product not found", "ID", id)
	web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %d not found", id))
}

// respondServiceError maps the error taxonomy onto HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, err error, message string) {
	var vErr *perrors.ValidationError
	switch {
	case errors.As(err, &vErr):
		errorResponse := map[string]string{vErr.Field: vErr.Reason}
		mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
		web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
	case errors.Is(err, perrors.ErrProductNotFound):
		mLogger.WarnContext(r.Context(), "Product not found", "error", err)
		web.RespondError(w, mLogger, http.StatusNotFound, "Product not found")
	case errors.Is(err, perrors.ErrInvalidQuery):
		mLogger.WarnContext(r.Context(), "Invalid query", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())
	default:
		mLogger.ErrorContext(r.Context(), message, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, message)
	}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parseListQuery(r *http.Request) (service.ListQuery, error) {
	values := r.URL.Query()
	q := service.ListQuery{
		Columns:   splitList(values.Get(paramColumns)),
		SortOrder: values.Get(paramSort),
	}
	for key, vals := range values {
		if key == paramColumns || key == paramSort {
			continue
		}
		if _, err := store.ResolveColumn(key); err != nil {
			return service.ListQuery{}, fmt.Errorf("unknown query parameter %q", key)
		}
		if len(vals) != 1 {
			return service.ListQuery{}, fmt.Errorf("query parameter %q must be given once", key)
		}
		if q.Filter == nil {
			q.Filter = make(map[string]string)
		}
		q.Filter[key] = vals[0]
	}
	return q, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// jsonNames maps table columns onto ProductDto JSON keys.
var jsonNames = map[string]string{
	store.ColumnID:       "id",
	store.ColumnName:     "name",
	store.ColumnPrice:    "price",
	store.ColumnQuantity: "quantity",
	store.ColumnSupplier: "supplier_name",
	store.ColumnPhone:    "supplier_phone",
}

// project renders p with only the requested columns; no columns means all.
func project(p service.ProductDto, columns []string) map[string]any {
	all := map[string]any{
		"id":             p.ID,
		"name":           p.Name,
		"price":          p.Price,
		"quantity":       p.Quantity,
		"supplier_name":  p.SupplierName,
		"supplier_phone": p.SupplierPhone,
	}
	if len(columns) == 0 {
		return all
	}
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		col, err := store.ResolveColumn(c)
		if err != nil {
			continue
		}
		key := jsonNames[col]
		out[key] = all[key]
	}
	return out
}
