package contracts

import "time"

// Routing keys for order lifecycle events on the orders exchange.
const (
	EventOrderCreated       = "orders.created"
	EventOrderStatusChanged = "orders.status_changed"
	EventOrderDeleted       = "orders.deleted"
	EventOrderStatusCommand = "orders.status_command"
)

type OrderCreatedEvent struct {
	EventID   string         `json:"event_id"`
	OrderID   string         `json:"order_id"`
	Email     string         `json:"email"`
	Order     map[string]any `json:"order"`
	CreatedAt time.Time      `json:"created_at"`
}

type OrderStatusChangedEvent struct {
	EventID   string    `json:"event_id"`
	OrderID   string    `json:"order_id"`
	Status    any       `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}

type OrderDeletedEvent struct {
	EventID   string    `json:"event_id"`
	OrderID   string    `json:"order_id"`
	Email     string    `json:"email"`
	DeletedAt time.Time `json:"deleted_at"`
}

// OrderStatusCommand is consumed from the status queue. Workshops push
// these to move an order along without going through the storefront.
type OrderStatusCommand struct {
	EventID string `json:"event_id"`
	OrderID string `json:"order_id"`
	Status  any    `json:"status"`
}
