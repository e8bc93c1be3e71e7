package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"unibuy/internal/models"
	"unibuy/internal/service"

	"github.com/jmoiron/sqlx"
)

// checkoutTx implements service.CheckoutTx over a single transaction.
type checkoutTx struct {
	tx *sqlx.Tx
}

// RunInCheckoutTx runs fn inside one transaction. Any error from fn rolls
// everything back, so a checkout either fully happens or leaves no trace.
func (s *Store) RunInCheckoutTx(ctx context.Context, fn func(tx service.CheckoutTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&checkoutTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// CartForUpdate locks the cart row, serializing checkout per user.
func (t *checkoutTx) CartForUpdate(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := t.tx.GetContext(ctx, &cart,
		"SELECT * FROM carts WHERE user_id = $1 FOR UPDATE", userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cart for user %d: %w", userID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (t *checkoutTx) CartLines(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := t.tx.SelectContext(ctx, &lines, `
		SELECT ci.product_id, p.name, p.price AS unit_price, p.image_url, ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.product_id`, cartID)
	return lines, err
}

func (t *checkoutTx) InsertOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, status, payment_status, total_amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return t.tx.QueryRowxContext(ctx, query,
		order.UserID, order.Status, order.PaymentStatus, order.TotalAmount).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

func (t *checkoutTx) InsertOrderItems(ctx context.Context, items []models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, name, unit_price, image_url, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	for i := range items {
		item := &items[i]
		err := t.tx.QueryRowxContext(ctx, query,
			item.OrderID, item.ProductID, item.Name, item.UnitPrice, item.ImageURL, item.Quantity).
			Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to insert order item for product %d: %w", item.ProductID, err)
		}
	}
	return nil
}

func (t *checkoutTx) ClearCart(ctx context.Context, cartID int64) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	return err
}

// orderTx implements service.OrderTx over a single transaction.
type orderTx struct {
	tx *sqlx.Tx
}

// RunInOrderTx runs fn inside one transaction, so a status transition and
// its stock side effects commit or roll back together.
func (s *Store) RunInOrderTx(ctx context.Context, fn func(tx service.OrderTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&orderTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// OrderForUpdate locks the order row for the duration of the transaction.
func (t *orderTx) OrderForUpdate(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	err := t.tx.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (t *orderTx) SetStatus(ctx context.Context, orderID int64, status string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

func (t *orderTx) SetPayment(ctx context.Context, orderID int64, gatewayPaymentID, paymentStatus string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET gateway_payment_id = $1, payment_status = $2, updated_at = NOW() WHERE id = $3",
		gatewayPaymentID, paymentStatus, orderID)
	return err
}

func (t *orderTx) OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := t.tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// DecrementStockIfAvailable is an atomic compare-and-decrement: the
// conditional UPDATE serializes concurrent confirmations per product.
func (t *orderTx) DecrementStockIfAvailable(ctx context.Context, productID int64, quantity int) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1",
		quantity, productID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all snapshot lines for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetOrders retrieves all orders, newest first
func (s *Store) GetOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC")
	return orders, err
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// SetGatewayOrderID records the gateway order id once. A repeat call for an
// order that already carries one is a no-op.
func (s *Store) SetGatewayOrderID(ctx context.Context, orderID int64, gatewayOrderID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET gateway_order_id = $1, updated_at = NOW() WHERE id = $2 AND gateway_order_id = ''",
		gatewayOrderID, orderID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Either already set or the order does not exist.
		if _, err := s.GetOrderByID(ctx, orderID); err != nil {
			return err
		}
	}
	return nil
}

// GetStalePendingOrderIDs lists PENDING orders created before olderThan.
func (s *Store) GetStalePendingOrderIDs(ctx context.Context, olderThan time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		"SELECT id FROM orders WHERE status = $1 AND created_at < $2 ORDER BY id LIMIT $3",
		models.OrderStatusPending, olderThan, limit)
	return ids, err
}
