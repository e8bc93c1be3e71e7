package service

import (
	"context"
	"fmt"

	"unibuy/internal/models"
	"unibuy/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService handles cart business logic. Every mutation returns the
// current materialized cart so callers always see fresh pricing.
type CartService struct {
	carts   CartStore
	catalog Catalog
	cache   CartCache
	logger  *zap.Logger
}

// NewCartService creates a new cart service. cache may be nil.
func NewCartService(carts CartStore, catalog Catalog, cache CartCache) *CartService {
	return &CartService{
		carts:   carts,
		catalog: catalog,
		cache:   cache,
		logger:  util.GetLogger(),
	}
}

// GetCart returns the user's materialized cart, creating an empty one on
// first access. Never fails for a valid user.
func (s *CartService) GetCart(ctx context.Context, userID int64) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	if s.cache != nil {
		view, err := s.cache.GetCartView(ctx, userID)
		if err != nil {
			s.logger.Warn("Cart cache read failed, falling back to DB",
				zap.Int64("user_id", userID), zap.Error(err))
		} else if view != nil {
			return view, nil
		}
	}

	cart, created, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create cart: %w", err)
	}
	if created {
		s.logger.Info("Cart created lazily", zap.Int64("user_id", userID))
	}

	view, err := s.materialize(ctx, userID, cart.ID)
	if err != nil {
		return nil, err
	}
	view.Created = created

	if s.cache != nil {
		if err := s.cache.SetCartView(ctx, userID, view); err != nil {
			s.logger.Warn("Cart cache write failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return view, nil
}

// AddItem increments an existing line by quantity or inserts a new one.
// The product must exist in the catalog; quantity must be positive.
func (s *CartService) AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", models.ErrInvalidInput)
	}

	if _, err := s.catalog.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}

	cart, _, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create cart: %w", err)
	}

	if err := s.carts.AddCartItem(ctx, cart.ID, productID, quantity); err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	return s.refresh(ctx, userID, cart.ID)
}

// UpdateItem replaces the quantity of an existing line. A missing line is
// an error; a non-positive quantity removes the line.
func (s *CartService) UpdateItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	cart, _, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create cart: %w", err)
	}

	if quantity <= 0 {
		if err := s.carts.DeleteCartItem(ctx, cart.ID, productID); err != nil {
			return nil, fmt.Errorf("failed to remove cart item: %w", err)
		}
	} else {
		found, err := s.carts.SetCartItemQuantity(ctx, cart.ID, productID, quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to update cart item: %w", err)
		}
		if !found {
			return nil, fmt.Errorf("cart line for product %d: %w", productID, models.ErrNotFound)
		}
	}

	util.CartMutationsTotal.WithLabelValues("update").Inc()
	return s.refresh(ctx, userID, cart.ID)
}

// RemoveItem deletes a line by product. Removing an absent line is a no-op.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID int64) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	cart, _, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create cart: %w", err)
	}

	if err := s.carts.DeleteCartItem(ctx, cart.ID, productID); err != nil {
		return nil, fmt.Errorf("failed to remove cart item: %w", err)
	}

	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	return s.refresh(ctx, userID, cart.ID)
}

// ClearCart deletes all lines. Clearing an empty cart is a no-op.
func (s *CartService) ClearCart(ctx context.Context, userID int64) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.ClearCart")
	defer span.End()

	cart, _, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create cart: %w", err)
	}

	if err := s.carts.ClearCart(ctx, cart.ID); err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	util.CartMutationsTotal.WithLabelValues("clear").Inc()
	return s.refresh(ctx, userID, cart.ID)
}

// refresh invalidates the cached view and rebuilds it after a mutation.
func (s *CartService) refresh(ctx context.Context, userID, cartID int64) (*models.CartView, error) {
	if s.cache != nil {
		if err := s.cache.InvalidateCart(ctx, userID); err != nil {
			s.logger.Warn("Cart cache invalidation failed",
				zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return s.materialize(ctx, userID, cartID)
}

func (s *CartService) materialize(ctx context.Context, userID, cartID int64) (*models.CartView, error) {
	lines, err := s.carts.GetCartLines(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart lines: %w", err)
	}
	if lines == nil {
		lines = []models.CartLine{}
	}

	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	return &models.CartView{
		UserID: userID,
		Items:  lines,
		Total:  total,
	}, nil
}
