// Package messaging defines broker-agnostic events and publishers.
package messaging

import (
	"context"
)

// ProductsChangedSubject carries inventory change notifications.
const ProductsChangedSubject = "inventory.products.changed"

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
