package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"unibuy/internal/models"
	"unibuy/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService is the order ledger: it stores immutable order snapshots and
// drives the controlled status transitions.
type OrderService struct {
	store  LedgerStore
	events EventSink
	logger *zap.Logger
}

// NewOrderService creates a new order service. events may be nil.
func NewOrderService(store LedgerStore, events EventSink) *OrderService {
	return &OrderService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
	}
}

// GetOrder retrieves an order and its snapshot lines.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

// ListOrders retrieves all orders.
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.GetOrders(ctx)
}

// ListOrdersByUser retrieves orders for a user.
func (s *OrderService) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.GetOrdersByUserID(ctx, userID)
}

// UpdateStatus transitions an order to newStatus. Entering CONFIRMED
// deducts catalog stock for every snapshot line; any shortfall rolls the
// whole transition back with ErrInsufficientStock. The side effect is
// edge-triggered: re-confirming an already CONFIRMED order never deducts
// stock twice.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, newStatus string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.Int64("order.id", orderID), attribute.String("order.status", newStatus))
	defer span.End()

	if !models.ValidOrderStatus(newStatus) {
		return nil, fmt.Errorf("unknown order status %q: %w", newStatus, models.ErrInvalidInput)
	}

	var confirmed bool
	var updated *models.Order

	err := s.store.RunInOrderTx(ctx, func(tx OrderTx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderStatusCancelled && newStatus != models.OrderStatusCancelled {
			return fmt.Errorf("order %d is cancelled: %w", orderID, models.ErrInvalidInput)
		}

		if err := tx.SetStatus(ctx, orderID, newStatus); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		if order.Status != models.OrderStatusConfirmed && newStatus == models.OrderStatusConfirmed {
			if err := s.deductStock(ctx, tx, orderID); err != nil {
				return err
			}
			confirmed = true
		}

		o := *order
		o.Status = newStatus
		updated = &o
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			util.StockDeductionsFailedTotal.Inc()
		}
		return nil, err
	}

	s.afterTransition(ctx, updated, confirmed)
	return updated, nil
}

// UpdatePaymentStatus records the gateway payment id and payment status. A
// COMPLETED payment additionally drives the order to CONFIRMED, with the
// same edge-triggered stock deduction, exactly once. CANCELLED is terminal
// here too: a late payment on a cancelled order is recorded for
// reconciliation but never confirms the order or touches stock.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, orderID int64, gatewayPaymentID, paymentStatus string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdatePaymentStatus",
		attribute.Int64("order.id", orderID), attribute.String("payment.status", paymentStatus))
	defer span.End()

	if !models.ValidPaymentStatus(paymentStatus) {
		return nil, fmt.Errorf("unknown payment status %q: %w", paymentStatus, models.ErrInvalidInput)
	}

	var confirmed bool
	var updated *models.Order

	err := s.store.RunInOrderTx(ctx, func(tx OrderTx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		if err := tx.SetPayment(ctx, orderID, gatewayPaymentID, paymentStatus); err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}

		o := *order
		o.GatewayPaymentID = gatewayPaymentID
		o.PaymentStatus = paymentStatus

		if order.Status == models.OrderStatusCancelled {
			s.logger.Warn("Payment received for cancelled order, recorded without confirming",
				zap.Int64("order_id", orderID),
				zap.String("gateway_payment_id", gatewayPaymentID),
				zap.String("payment_status", paymentStatus))
			updated = &o
			return nil
		}

		if paymentStatus == models.PaymentStatusCompleted && order.Status != models.OrderStatusConfirmed {
			if err := tx.SetStatus(ctx, orderID, models.OrderStatusConfirmed); err != nil {
				return fmt.Errorf("failed to confirm order: %w", err)
			}
			if err := s.deductStock(ctx, tx, orderID); err != nil {
				return err
			}
			o.Status = models.OrderStatusConfirmed
			confirmed = true
		}

		updated = &o
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			util.StockDeductionsFailedTotal.Inc()
		}
		return nil, err
	}

	// Confirming is the only status change this path can make; a cancelled
	// order passing through here must not re-announce its cancellation.
	if confirmed {
		s.afterTransition(ctx, updated, true)
	}
	return updated, nil
}

// AttachGatewayOrder records the gateway order id on an order, set once.
func (s *OrderService) AttachGatewayOrder(ctx context.Context, orderID int64, gatewayOrderID string) error {
	if gatewayOrderID == "" {
		return fmt.Errorf("gateway order id is empty: %w", models.ErrInvalidInput)
	}
	return s.store.SetGatewayOrderID(ctx, orderID, gatewayOrderID)
}

// deductStock reduces catalog stock for every snapshot line, all or
// nothing: the first shortfall aborts the transaction, so no line is ever
// partially applied.
func (s *OrderService) deductStock(ctx context.Context, tx OrderTx, orderID int64) error {
	items, err := tx.OrderItems(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	for _, item := range items {
		ok, err := tx.DecrementStockIfAvailable(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to deduct stock for product %d: %w", item.ProductID, err)
		}
		if !ok {
			return fmt.Errorf("product %d (%s), requested %d: %w",
				item.ProductID, item.Name, item.Quantity, models.ErrInsufficientStock)
		}
	}
	return nil
}

// afterTransition emits metrics and best-effort events once a transition
// has committed.
func (s *OrderService) afterTransition(ctx context.Context, order *models.Order, confirmed bool) {
	if confirmed {
		util.OrdersConfirmedTotal.Inc()
		s.logger.Info("Order confirmed, stock deducted", zap.Int64("order_id", order.ID))
		if s.events != nil {
			event := &models.OrderConfirmedEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeOrderConfirmed,
					Timestamp: time.Now(),
				},
				OrderID: order.ID,
				UserID:  order.UserID,
			}
			if err := s.events.PublishOrderConfirmed(ctx, event); err != nil {
				s.logger.Error("Failed to publish OrderConfirmed event", zap.Error(err))
			}
		}
		return
	}

	if order.Status == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.Inc()
		s.logger.Info("Order cancelled", zap.Int64("order_id", order.ID))
		if s.events != nil {
			event := &models.OrderCancelledEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeOrderCancelled,
					Timestamp: time.Now(),
				},
				OrderID: order.ID,
				Reason:  "status_update",
			}
			if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
				s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
			}
		}
	}
}
