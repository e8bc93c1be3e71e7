package models

import "time"

// Event types
const (
	EventTypeOrderPlaced      = "ORDER_PLACED"
	EventTypeOrderConfirmed   = "ORDER_CONFIRMED"
	EventTypeOrderCancelled   = "ORDER_CANCELLED"
	EventTypePaymentCompleted = "PAYMENT_COMPLETED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderLineData represents snapshot line data carried in events
type OrderLineData struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// OrderPlacedEvent is published when checkout turns a cart into an order.
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	TotalAmount string          `json:"total_amount"`
	Items       []OrderLineData `json:"items"`
}

// OrderConfirmedEvent is published after the CONFIRMED transition commits,
// meaning stock has been deducted for every line.
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
	UserID  int64 `json:"user_id"`
}

// OrderCancelledEvent is published when an order reaches CANCELLED.
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// PaymentCompletedEvent is emitted by the payment callback endpoint after a
// verified gateway notification. The reconciliation worker consumes it.
type PaymentCompletedEvent struct {
	BaseEvent
	OrderID          int64  `json:"order_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
}

// PaymentFailedEvent is emitted for verified failure notifications.
type PaymentFailedEvent struct {
	BaseEvent
	OrderID          int64  `json:"order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Reason           string `json:"reason"`
}
