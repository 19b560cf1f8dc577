// Package events holds the wire representation of published events.
package events

import (
	"encoding/json"
	"time"

	"github.com/kristinauko/BookStoreInventory/pkg/messaging"
)

// ProductsChangedEvent tells consumers that inventory data changed and should be re-read.
// It never carries record contents.
type ProductsChangedEvent struct {
	Op         string    `json:"op"`
	Path       string    `json:"path"`
	ProductID  int64     `json:"product_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e ProductsChangedEvent) Subject() string {
	return messaging.ProductsChangedSubject
}

func (e ProductsChangedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
