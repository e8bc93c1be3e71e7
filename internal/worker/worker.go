package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"unibuy/internal/broker"
	"unibuy/internal/models"
	"unibuy/internal/service"
	"unibuy/internal/util"

	"go.uber.org/zap"
)

// ReconcileWorker consumes verified payment events and drives the ledger's
// payment-status transition. Processed-event tracking makes redelivery a
// no-op, and the CONFIRMED side effect is edge-triggered anyway, so stock
// is never deducted twice.
type ReconcileWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	orders       *service.OrderService
	ledger       service.LedgerStore
	logger       *zap.Logger
}

// NewReconcileWorker creates a new reconciliation worker.
func NewReconcileWorker(consumer *broker.Consumer, orders *service.OrderService, ledger service.LedgerStore) *ReconcileWorker {
	w := &ReconcileWorker{
		consumer: consumer,
		orders:   orders,
		ledger:   ledger,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentCompleted(w.handlePaymentCompleted)
	eventHandler.OnPaymentFailed(w.handlePaymentFailed)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *ReconcileWorker) Start(ctx context.Context) error {
	log.Println("Starting payment reconciliation worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReconcileWorker) Stop() error {
	log.Println("Stopping payment reconciliation worker...")
	return w.consumer.Close()
}

func (w *ReconcileWorker) handlePaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	w.logger.Info("Reconciling completed payment",
		zap.Int64("order_id", event.OrderID),
		zap.String("gateway_payment_id", event.GatewayPaymentID))

	_, err = w.orders.UpdatePaymentStatus(ctx, event.OrderID, event.GatewayPaymentID, models.PaymentStatusCompleted)
	if err != nil {
		// Oversold confirmations stay on the ledger as PENDING with a
		// COMPLETED payment; that needs an operator, not a redelivery.
		if errors.Is(err, models.ErrInsufficientStock) {
			w.logger.Error("Confirmation rejected for insufficient stock",
				zap.Int64("order_id", event.OrderID), zap.Error(err))
		} else {
			return fmt.Errorf("failed to apply completed payment: %w", err)
		}
	}

	if err := w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

func (w *ReconcileWorker) handlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	w.logger.Warn("Reconciling failed payment",
		zap.Int64("order_id", event.OrderID),
		zap.String("reason", event.Reason))

	_, err = w.orders.UpdatePaymentStatus(ctx, event.OrderID, event.GatewayPaymentID, models.PaymentStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to apply failed payment: %w", err)
	}

	if err := w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}
