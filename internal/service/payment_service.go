package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"unibuy/config"
	"unibuy/internal/models"
	"unibuy/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// gatewayOrderRecorder is the slice of the ledger the payment service needs.
type gatewayOrderRecorder interface {
	AttachGatewayOrder(ctx context.Context, orderID int64, gatewayOrderID string) error
}

// PaymentService reconciles the payment gateway with order state: it
// creates remote payment intents and verifies gateway callback signatures.
type PaymentService struct {
	cfg     config.GatewayConfig
	gateway GatewayClient
	ledger  gatewayOrderRecorder
	logger  *zap.Logger
}

// NewPaymentService creates a new payment service. ledger may be nil when
// intents are not tied to local orders.
func NewPaymentService(cfg config.GatewayConfig, gateway GatewayClient, ledger gatewayOrderRecorder) *PaymentService {
	return &PaymentService{
		cfg:     cfg,
		gateway: gateway,
		ledger:  ledger,
		logger:  util.GetLogger(),
	}
}

// IntentRequest asks the gateway for a new payment intent. OrderID is the
// local order to tag with the gateway order id; zero skips the linkage.
type IntentRequest struct {
	UserID   int64           `json:"user_id" binding:"required"`
	OrderID  int64           `json:"order_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  string          `json:"receipt"`
}

// IntentResponse echoes what the client needs to open the gateway widget.
type IntentResponse struct {
	GatewayOrderID string          `json:"gateway_order_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	KeyID          string          `json:"key_id"`
}

// CreateIntent validates the request, converts the amount to the gateway's
// minor unit and creates a remote payment intent.
func (ps *PaymentService) CreateIntent(ctx context.Context, req *IntentRequest) (*IntentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreateIntent")
	defer span.End()

	if ps.cfg.Misconfigured() {
		util.PaymentIntentsTotal.WithLabelValues("misconfigured").Inc()
		return nil, fmt.Errorf("gateway credentials unset or placeholder: %w", models.ErrGatewayMisconfigured)
	}
	if !req.Amount.IsPositive() {
		util.PaymentIntentsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("amount must be positive: %w", models.ErrInvalidInput)
	}
	if req.Currency == "" {
		util.PaymentIntentsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("currency is required: %w", models.ErrInvalidInput)
	}

	minor := req.Amount.Shift(2)
	if !minor.Equal(minor.Truncate(0)) {
		util.PaymentIntentsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("amount has sub-minor-unit precision: %w", models.ErrInvalidInput)
	}

	receipt := req.Receipt
	if receipt == "" {
		receipt = fmt.Sprintf("rcpt-%s", uuid.New().String()[:8])
	}

	notes := map[string]string{
		"user_id": fmt.Sprintf("%d", req.UserID),
	}
	if req.OrderID != 0 {
		notes["order_id"] = fmt.Sprintf("%d", req.OrderID)
	}

	start := time.Now()
	gatewayOrderID, err := ps.gateway.CreateOrder(ctx, minor.IntPart(), req.Currency, receipt, notes)
	util.GatewayRequestLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.PaymentIntentsTotal.WithLabelValues("gateway_error").Inc()
		return nil, err
	}

	if ps.ledger != nil && req.OrderID != 0 {
		if err := ps.ledger.AttachGatewayOrder(ctx, req.OrderID, gatewayOrderID); err != nil {
			return nil, fmt.Errorf("failed to record gateway order id: %w", err)
		}
	}

	util.PaymentIntentsTotal.WithLabelValues("ok").Inc()
	ps.logger.Info("Payment intent created",
		zap.Int64("user_id", req.UserID),
		zap.String("gateway_order_id", gatewayOrderID))

	return &IntentResponse{
		GatewayOrderID: gatewayOrderID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		KeyID:          ps.cfg.KeyID,
	}, nil
}

// VerifySignature recomputes the gateway's HMAC-SHA256 signature over
// "<gatewayOrderID>|<gatewayPaymentID>" with the shared secret, base64
// encodes it and compares. Pure and side-effect free; malformed input
// yields false, never an error. Only a missing or placeholder secret is an
// error.
func (ps *PaymentService) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
	if ps.cfg.Misconfigured() {
		return false, fmt.Errorf("gateway secret unset or placeholder: %w", models.ErrGatewayMisconfigured)
	}
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		util.PaymentVerificationsTotal.WithLabelValues("invalid").Inc()
		return false, nil
	}

	mac := hmac.New(sha256.New, []byte(ps.cfg.KeySecret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		util.PaymentVerificationsTotal.WithLabelValues("invalid").Inc()
		return false, nil
	}
	util.PaymentVerificationsTotal.WithLabelValues("valid").Inc()
	return true, nil
}
