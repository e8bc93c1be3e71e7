package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"unibuy/config"
	"unibuy/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		KeyID:     "key_live_abc",
		KeySecret: "s3cr3t",
		BaseURL:   "https://gateway.test/v1",
		Timeout:   5 * time.Second,
	}
}

func signPayload(secret, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureValid(t *testing.T) {
	cfg := testGatewayConfig()
	ps := NewPaymentService(cfg, &fakeGateway{}, nil)

	sig := signPayload(cfg.KeySecret, "order_abc", "pay_xyz")
	valid, err := ps.VerifySignature("order_abc", "pay_xyz", sig)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	cfg := testGatewayConfig()
	ps := NewPaymentService(cfg, &fakeGateway{}, nil)

	sig := signPayload(cfg.KeySecret, "order_abc", "pay_xyz")

	cases := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
	}{
		{"wrong order id", "order_abd", "pay_xyz", sig},
		{"wrong payment id", "order_abc", "pay_xyy", sig},
		{"mutated signature", "order_abc", "pay_xyz", sig[:len(sig)-2] + "=="},
		{"signature for other secret", "order_abc", "pay_xyz", signPayload("other", "order_abc", "pay_xyz")},
		{"garbage signature", "order_abc", "pay_xyz", "not-base64-at-all"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			valid, err := ps.VerifySignature(tc.orderID, tc.paymentID, tc.signature)
			require.NoError(t, err)
			assert.False(t, valid)
		})
	}
}

func TestVerifySignatureEmptyFields(t *testing.T) {
	cfg := testGatewayConfig()
	ps := NewPaymentService(cfg, &fakeGateway{}, nil)

	for _, args := range [][3]string{
		{"", "pay_xyz", "sig"},
		{"order_abc", "", "sig"},
		{"order_abc", "pay_xyz", ""},
	} {
		valid, err := ps.VerifySignature(args[0], args[1], args[2])
		require.NoError(t, err)
		assert.False(t, valid)
	}
}

func TestVerifySignatureMisconfigured(t *testing.T) {
	cfg := config.GatewayConfig{
		KeyID:     config.PlaceholderKeyID,
		KeySecret: config.PlaceholderSecret,
	}
	ps := NewPaymentService(cfg, &fakeGateway{}, nil)

	_, err := ps.VerifySignature("order_abc", "pay_xyz", "sig")
	assert.ErrorIs(t, err, models.ErrGatewayMisconfigured)
}

func TestCreateIntentConvertsToMinorUnits(t *testing.T) {
	gw := &fakeGateway{returnID: "gw_order_1"}
	ps := NewPaymentService(testGatewayConfig(), gw, nil)

	resp, err := ps.CreateIntent(context.Background(), &IntentRequest{
		UserID:   7,
		Amount:   decimal.RequireFromString("123.45"),
		Currency: "INR",
		Receipt:  "rcpt-7",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(12345), gw.lastAmount)
	assert.Equal(t, "INR", gw.lastCurrency)
	assert.Equal(t, "rcpt-7", gw.lastReceipt)
	assert.Equal(t, "gw_order_1", resp.GatewayOrderID)
	assert.Equal(t, "key_live_abc", resp.KeyID)
	assert.True(t, resp.Amount.Equal(decimal.RequireFromString("123.45")))
}

func TestCreateIntentValidation(t *testing.T) {
	ps := NewPaymentService(testGatewayConfig(), &fakeGateway{}, nil)
	ctx := context.Background()

	_, err := ps.CreateIntent(ctx, &IntentRequest{UserID: 1, Amount: decimal.Zero, Currency: "INR"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = ps.CreateIntent(ctx, &IntentRequest{UserID: 1, Amount: decimal.RequireFromString("-5"), Currency: "INR"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = ps.CreateIntent(ctx, &IntentRequest{UserID: 1, Amount: decimal.RequireFromString("10.00")})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	// 10.999 cannot be expressed in whole minor units.
	_, err = ps.CreateIntent(ctx, &IntentRequest{UserID: 1, Amount: decimal.RequireFromString("10.999"), Currency: "INR"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCreateIntentMisconfigured(t *testing.T) {
	cfg := config.GatewayConfig{KeyID: "", KeySecret: ""}
	ps := NewPaymentService(cfg, &fakeGateway{}, nil)

	_, err := ps.CreateIntent(context.Background(), &IntentRequest{
		UserID: 1, Amount: decimal.RequireFromString("10.00"), Currency: "INR",
	})
	assert.ErrorIs(t, err, models.ErrGatewayMisconfigured)
}

func TestCreateIntentGatewayFailure(t *testing.T) {
	gw := &fakeGateway{returnErr: models.ErrGatewayUnavailable}
	ps := NewPaymentService(testGatewayConfig(), gw, nil)

	_, err := ps.CreateIntent(context.Background(), &IntentRequest{
		UserID: 1, Amount: decimal.RequireFromString("10.00"), Currency: "INR",
	})
	assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
}

func TestCreateIntentDefaultsReceipt(t *testing.T) {
	gw := &fakeGateway{}
	ps := NewPaymentService(testGatewayConfig(), gw, nil)

	_, err := ps.CreateIntent(context.Background(), &IntentRequest{
		UserID: 1, Amount: decimal.RequireFromString("10.00"), Currency: "INR",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, gw.lastReceipt)
}

func TestCreateIntentAttachesGatewayOrder(t *testing.T) {
	gw := &fakeGateway{returnID: "gw_order_9"}
	rec := &fakeRecorder{}
	ps := NewPaymentService(testGatewayConfig(), gw, rec)

	_, err := ps.CreateIntent(context.Background(), &IntentRequest{
		UserID:   1,
		OrderID:  42,
		Amount:   decimal.RequireFromString("10.00"),
		Currency: "INR",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), rec.orderID)
	assert.Equal(t, "gw_order_9", rec.gatewayOrderID)
	assert.Equal(t, "42", gw.lastNotes["order_id"])
	assert.Equal(t, "1", gw.lastNotes["user_id"])
}

func TestCreateIntentWithoutOrderSkipsLinkage(t *testing.T) {
	gw := &fakeGateway{}
	rec := &fakeRecorder{}
	ps := NewPaymentService(testGatewayConfig(), gw, rec)

	_, err := ps.CreateIntent(context.Background(), &IntentRequest{
		UserID: 1, Amount: decimal.RequireFromString("10.00"), Currency: "INR",
	})
	require.NoError(t, err)
	assert.Zero(t, rec.orderID)
}
