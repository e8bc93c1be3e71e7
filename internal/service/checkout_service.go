package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"unibuy/internal/models"
	"unibuy/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckoutService converts a non-empty cart into a pending order.
type CheckoutService struct {
	store  CheckoutStore
	events EventSink
	cache  CartCache
	logger *zap.Logger
}

// NewCheckoutService creates a new checkout service. events and cache may
// be nil.
func NewCheckoutService(store CheckoutStore, events EventSink, cache CartCache) *CheckoutService {
	return &CheckoutService{
		store:  store,
		events: events,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// Checkout snapshots the user's cart into a new PENDING order and clears
// the cart, all in one transaction. The cart row lock serializes concurrent
// checkouts for the same user: the loser observes an empty cart. Prices are
// captured now; later catalog edits never change the order. No stock is
// deducted here, deduction happens at confirmation.
func (s *CheckoutService) Checkout(ctx context.Context, userID int64) (*models.Order, []models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout",
		attribute.Int64("user.id", userID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	var order *models.Order
	var items []models.OrderItem

	err := s.store.RunInCheckoutTx(ctx, func(tx CheckoutTx) error {
		cart, err := tx.CartForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// No cart yet means nothing to check out.
				return fmt.Errorf("user %d: %w", userID, models.ErrEmptyCart)
			}
			return fmt.Errorf("failed to lock cart: %w", err)
		}

		lines, err := tx.CartLines(ctx, cart.ID)
		if err != nil {
			return fmt.Errorf("failed to load cart lines: %w", err)
		}
		if len(lines) == 0 {
			return fmt.Errorf("user %d: %w", userID, models.ErrEmptyCart)
		}

		total := decimal.Zero
		for _, line := range lines {
			total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		order = &models.Order{
			UserID:        userID,
			Status:        models.OrderStatusPending,
			PaymentStatus: models.PaymentStatusPending,
			TotalAmount:   total,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		items = make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			items = append(items, models.OrderItem{
				OrderID:   order.ID,
				ProductID: line.ProductID,
				Name:      line.Name,
				UnitPrice: line.UnitPrice,
				ImageURL:  line.ImageURL,
				Quantity:  line.Quantity,
			})
		}
		if err := tx.InsertOrderItems(ctx, items); err != nil {
			return fmt.Errorf("failed to create order items: %w", err)
		}

		return tx.ClearCart(ctx, cart.ID)
	})
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, nil, err
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("total", order.TotalAmount.String()))

	// Everything after commit is best-effort: the order exists regardless.
	if s.cache != nil {
		if err := s.cache.InvalidateCart(ctx, userID); err != nil {
			s.logger.Warn("Cart cache invalidation failed after checkout",
				zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	if s.events != nil {
		eventLines := make([]models.OrderLineData, 0, len(items))
		for _, item := range items {
			eventLines = append(eventLines, models.OrderLineData{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice.String(),
			})
		}
		event := &models.OrderPlacedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderPlaced,
				Timestamp: time.Now(),
			},
			OrderID:     order.ID,
			UserID:      userID,
			TotalAmount: order.TotalAmount.String(),
			Items:       eventLines,
		}
		if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
		}
	}

	return order, items, nil
}
