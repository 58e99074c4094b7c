// Package notify delivers order events to connected websocket clients,
// optionally fanned out across instances through redis pub/sub.
package notify

import (
	"context"

	"fresh-market/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventNewOrder          = "new_order"
	EventOrderStatusUpdate = "order_status_update"
)

// Event is addressed to a single room.
type Event struct {
	Room string      `json:"room"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Publisher delivers events. Delivery is best effort: callers log failures
// and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type NewOrder struct {
	OrderID     uuid.UUID       `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	Customer    string          `json:"customer"`
	Total       decimal.Decimal `json:"total"`
}

type OrderStatusUpdate struct {
	OrderID     uuid.UUID          `json:"orderId"`
	OrderNumber string             `json:"orderNumber"`
	Status      domain.OrderStatus `json:"status"`
	Note        string             `json:"note,omitempty"`
}

func MerchantRoom(id uuid.UUID) string {
	return "merchant_" + id.String()
}

func CustomerRoom(id uuid.UUID) string {
	return "customer_" + id.String()
}

// RoomFor is the room a user joins on connect. Admins have none.
func RoomFor(role domain.Role, id uuid.UUID) string {
	switch role {
	case domain.RoleMerchant:
		return MerchantRoom(id)
	case domain.RoleCustomer:
		return CustomerRoom(id)
	}
	return ""
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
