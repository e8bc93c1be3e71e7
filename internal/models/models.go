package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product represents a catalog product. Stock is only ever mutated by the
// order-confirmation path, never by cart operations.
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	ImageURL    string          `db:"image_url" json:"image_url"`
	Categories  pq.StringArray  `db:"categories" json:"categories"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Cart is a per-user mutable collection of cart items. One cart per user,
// created lazily on first access.
type Cart struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem pairs a product with a positive quantity. At most one item per
// product within a cart (unique constraint on cart_id, product_id).
type CartItem struct {
	ID        int64 `db:"id" json:"id"`
	CartID    int64 `db:"cart_id" json:"cart_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
}

// CartLine is a cart item joined with live product data, so callers always
// see current pricing.
type CartLine struct {
	ProductID int64           `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	ImageURL  string          `db:"image_url" json:"image_url"`
	Quantity  int             `db:"quantity" json:"quantity"`
}

// CartView is the materialized cart returned by every cart operation.
// Created is true when the call caused the cart to be lazily created.
type CartView struct {
	UserID  int64           `json:"user_id"`
	Items   []CartLine      `json:"items"`
	Total   decimal.Decimal `json:"total"`
	Created bool            `json:"-"`
}

// Order is an immutable snapshot of a cart at checkout time plus a mutable
// status/payment-status pair. Orders are never deleted.
type Order struct {
	ID               int64           `db:"id" json:"id"`
	UserID           int64           `db:"user_id" json:"user_id"`
	Status           string          `db:"status" json:"status"`
	PaymentStatus    string          `db:"payment_status" json:"payment_status"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"total_amount"`
	GatewayOrderID   string          `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	GatewayPaymentID string          `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is a snapshot line: product name, price and image are copied at
// checkout time and are immune to later catalog edits.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	ImageURL  string          `db:"image_url" json:"image_url"`
	Quantity  int             `db:"quantity" json:"quantity"`
}

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusCancelled = "CANCELLED"
)

// Payment statuses
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusCancelled:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether s is a known payment status.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	}
	return false
}

// ProcessedEvent records a consumed event id for consumer-side idempotency.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
