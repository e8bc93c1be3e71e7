package service

import (
	"context"
	"time"

	"unibuy/internal/models"
)

// Catalog is the product-lookup side of the external catalog contract.
type Catalog interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// CartStore persists carts and cart items. Each method is atomic on its own;
// multi-step sequences that must not interleave go through CheckoutStore.
type CartStore interface {
	// GetOrCreateCart returns the user's cart, creating it lazily. The
	// bool reports whether this call created it.
	GetOrCreateCart(ctx context.Context, userID int64) (*models.Cart, bool, error)
	// AddCartItem inserts a line or increments an existing one (additive).
	AddCartItem(ctx context.Context, cartID, productID int64, quantity int) error
	// SetCartItemQuantity replaces a line's quantity. Returns false when no
	// line for the product exists.
	SetCartItemQuantity(ctx context.Context, cartID, productID int64, quantity int) (bool, error)
	DeleteCartItem(ctx context.Context, cartID, productID int64) error
	ClearCart(ctx context.Context, cartID int64) error
	// GetCartLines materializes the cart: lines joined with live product
	// name, price and image.
	GetCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error)
}

// CheckoutTx is the unit of work available inside a checkout transaction.
// CartForUpdate locks the cart row, serializing checkout per user.
type CheckoutTx interface {
	CartForUpdate(ctx context.Context, userID int64) (*models.Cart, error)
	CartLines(ctx context.Context, cartID int64) ([]models.CartLine, error)
	InsertOrder(ctx context.Context, order *models.Order) error
	InsertOrderItems(ctx context.Context, items []models.OrderItem) error
	ClearCart(ctx context.Context, cartID int64) error
}

// CheckoutStore runs fn inside one transaction; any error rolls back.
type CheckoutStore interface {
	RunInCheckoutTx(ctx context.Context, fn func(tx CheckoutTx) error) error
}

// OrderTx is the unit of work inside a ledger transaction. OrderForUpdate
// locks the order row; DecrementStockIfAvailable is an atomic
// compare-and-decrement serialized per product.
type OrderTx interface {
	OrderForUpdate(ctx context.Context, orderID int64) (*models.Order, error)
	SetStatus(ctx context.Context, orderID int64, status string) error
	SetPayment(ctx context.Context, orderID int64, gatewayPaymentID, paymentStatus string) error
	OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	DecrementStockIfAvailable(ctx context.Context, productID int64, quantity int) (bool, error)
}

// LedgerStore persists orders and drives transactional status changes.
type LedgerStore interface {
	RunInOrderTx(ctx context.Context, fn func(tx OrderTx) error) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetOrders(ctx context.Context) ([]models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	// SetGatewayOrderID records the gateway order id once; repeated calls
	// for an order that already has one are no-ops.
	SetGatewayOrderID(ctx context.Context, orderID int64, gatewayOrderID string) error
	GetStalePendingOrderIDs(ctx context.Context, olderThan time.Time, limit int) ([]int64, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// CartCache is a best-effort cache of materialized cart views. A nil view
// with nil error means a miss. Cache failures are logged, never surfaced.
type CartCache interface {
	GetCartView(ctx context.Context, userID int64) (*models.CartView, error)
	SetCartView(ctx context.Context, userID int64, view *models.CartView) error
	InvalidateCart(ctx context.Context, userID int64) error
}

// GatewayClient creates remote payment intents. Amounts are in the
// gateway's minor unit.
type GatewayClient interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (string, error)
}

// EventSink publishes domain events. Publishing is best-effort everywhere:
// a failed publish is logged and never fails the business operation.
type EventSink interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}
