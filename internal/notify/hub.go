// Package notify delivers "data changed, re-read" signals to observers of
// the product collection or of a single product.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kristinauko/BookStoreInventory/internal/resource"
)

// Op names the mutation that caused a change.
type Op string

const (
	OpInsert    Op = "insert"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpDeleteAll Op = "delete_all"
)

// Change describes one effective mutation. ID is zero for collection-wide changes.
// It carries no record data.
type Change struct {
	Op Op
	ID int64
}

// Path is the narrowest resource path affected by the change.
func (c Change) Path() string {
	if c.ID > 0 {
		return resource.ItemPath(c.ID)
	}
	return resource.CollectionPath()
}

// Observer receives changes. Implementations must not block for long; the
// notifying mutation waits for every observer to return.
type Observer interface {
	OnChange(ctx context.Context, change Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, change Change)

func (f ObserverFunc) OnChange(ctx context.Context, change Change) {
	f(ctx, change)
}

// Notifier is what mutating code depends on.
type Notifier interface {
	Notify(ctx context.Context, change Change)
}

type registration struct {
	target   resource.Target
	observer Observer
}

// Hub keeps the registered observers.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]registration
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[uint64]registration),
		logger: logger.With("component", "notify"),
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	hub  *Hub
	id   uint64
	once sync.Once
}

// Unsubscribe removes the observer. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
}

// Subscribe registers observer for the collection path or an item path.
func (h *Hub) Subscribe(path string, observer Observer) (*Subscription, error) {
	target, err := resource.Match(path)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.subs[h.nextID] = registration{target: target, observer: observer}
	return &Subscription{hub: h, id: h.nextID}, nil
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Notify calls every observer interested in change. Collection observers see
// all changes; item observers see changes of their id and collection-wide deletes.
// A panicking observer is logged and skipped.
func (h *Hub) Notify(ctx context.Context, change Change) {
	h.mu.RLock()
	targets := make([]Observer, 0, len(h.subs))
	for _, reg := range h.subs {
		if matches(reg.target, change) {
			targets = append(targets, reg.observer)
		}
	}
	h.mu.RUnlock()

	for _, obs := range targets {
		h.dispatch(ctx, obs, change)
	}
}

func (h *Hub) dispatch(ctx context.Context, obs Observer, change Change) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.ErrorContext(ctx, "Observer panicked", "panic", r, "op", string(change.Op), "path", change.Path())
		}
	}()
	obs.OnChange(ctx, change)
}

func matches(target resource.Target, change Change) bool {
	switch target.Kind {
	case resource.Collection:
		return true
	case resource.Item:
		return change.Op == OpDeleteAll || change.ID == target.ID
	default:
		return false
	}
}
