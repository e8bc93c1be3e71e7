package store

import (
	"context"
	"database/sql"

	"unibuy/internal/models"
)

// GetOrCreateCart returns the user's cart, creating it lazily. The bool is
// true when this call created the cart.
func (s *Store) GetOrCreateCart(ctx context.Context, userID int64) (*models.Cart, bool, error) {
	var cart models.Cart

	// RETURNING yields a row only when the insert actually happened.
	err := s.db.GetContext(ctx, &cart, `
		INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING id, user_id, created_at, updated_at`, userID)
	if err == nil {
		return &cart, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	err = s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE user_id = $1", userID)
	if err != nil {
		return nil, false, err
	}
	return &cart, false, nil
}

// AddCartItem inserts a line or increments an existing one by quantity.
func (s *Store) AddCartItem(ctx context.Context, cartID, productID int64, quantity int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		cartID, productID, quantity)
	return err
}

// SetCartItemQuantity replaces a line's quantity. Returns false when the
// cart has no line for the product.
func (s *Store) SetCartItemQuantity(ctx context.Context, cartID, productID int64, quantity int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE cart_id = $2 AND product_id = $3",
		quantity, cartID, productID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// DeleteCartItem removes a line. Deleting an absent line is a no-op.
func (s *Store) DeleteCartItem(ctx context.Context, cartID, productID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2",
		cartID, productID)
	return err
}

// ClearCart deletes all lines of a cart.
func (s *Store) ClearCart(ctx context.Context, cartID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	return err
}

// GetCartLines materializes the cart against live product data.
func (s *Store) GetCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := s.db.SelectContext(ctx, &lines, `
		SELECT ci.product_id, p.name, p.price AS unit_price, p.image_url, ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.product_id`, cartID)
	return lines, err
}
