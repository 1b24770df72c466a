// Package events carries order events from the outbox table to a broker.
package events

import (
	"context"

	"github.com/shopspring/decimal"
)

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
)

// OrderCreated is written to the outbox in the checkout transaction.
type OrderCreated struct {
	OrderID     string          `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	UserID      string          `json:"userId"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
	Items       []OrderLine     `json:"items"`
	CreatedAt   string          `json:"createdAt"`
}

type OrderLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type OrderStatusChanged struct {
	OrderID string `json:"orderId"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// Publisher delivers one outbox payload. Implementations must be safe to
// retry: the relay republishes anything not marked sent.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}
