package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"unibuy/internal/broker"
	"unibuy/internal/models"
	"unibuy/internal/service"
	"unibuy/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers. The HTTP layer is plumbing: it parses,
// delegates to the services and maps the error taxonomy to status codes.
type Handler struct {
	catalog  *service.CatalogService
	carts    *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	payments *service.PaymentService
	events   *broker.EventPublisher
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler. events may be nil.
func NewHandler(
	catalog *service.CatalogService,
	carts *service.CartService,
	checkout *service.CheckoutService,
	orders *service.OrderService,
	payments *service.PaymentService,
	events *broker.EventPublisher,
) *Handler {
	return &Handler{
		catalog:  catalog,
		carts:    carts,
		checkout: checkout,
		orders:   orders,
		payments: payments,
		events:   events,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		v1.GET("/cart/:userId", h.getCart)
		v1.POST("/cart/:userId/items", h.addCartItem)
		v1.PUT("/cart/:userId/items/:productId", h.updateCartItem)
		v1.DELETE("/cart/:userId/items/:productId", h.removeCartItem)
		v1.DELETE("/cart/:userId", h.clearCart)

		v1.POST("/orders/checkout/:userId", h.checkoutCart)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/user/:userId", h.listOrdersByUser)
		v1.GET("/orders/:id", h.getOrder)
		v1.PUT("/orders/:id/status", h.updateOrderStatus)
		v1.PUT("/orders/:id/payment", h.updatePaymentStatus)

		v1.POST("/payments/intent", h.createPaymentIntent)
		v1.POST("/payments/verify", h.verifyPayment)
		v1.POST("/payments/callback", h.paymentCallback)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
}

func (h *Handler) listProducts(c *gin.Context) {
	var ids []int64
	if raw := c.Query("ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ids", "code": "INVALID_INPUT"})
				return
			}
			ids = append(ids, id)
		}
	}
	products, err := h.catalog.ListProducts(c.Request.Context(), ids)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) getCart(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	view, err := h.carts.GetCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type cartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "INVALID_INPUT"})
		return
	}
	view, err := h.carts.AddItem(c.Request.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	productID, ok := pathID(c, "productId")
	if !ok {
		return
	}
	quantity, err := strconv.Atoi(c.Query("quantity"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quantity", "code": "INVALID_INPUT"})
		return
	}
	view, err := h.carts.UpdateItem(c.Request.Context(), userID, productID, quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	productID, ok := pathID(c, "productId")
	if !ok {
		return
	}
	view, err := h.carts.RemoveItem(c.Request.Context(), userID, productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) clearCart(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	view, err := h.carts.ClearCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) checkoutCart(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	order, items, err := h.checkout.Checkout(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order, "items": items})
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) listOrdersByUser(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	orders, err := h.orders.ListOrdersByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, items, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

type statusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "INVALID_INPUT"})
		return
	}
	order, err := h.orders.UpdateStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) updatePaymentStatus(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	paymentID := c.Query("paymentId")
	paymentStatus := c.Query("paymentStatus")
	order, err := h.orders.UpdatePaymentStatus(c.Request.Context(), orderID, paymentID, paymentStatus)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) createPaymentIntent(c *gin.Context) {
	var req service.IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "INVALID_INPUT"})
		return
	}
	resp, err := h.payments.CreateIntent(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type verificationRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

func (h *Handler) verifyPayment(c *gin.Context) {
	var req verificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "INVALID_INPUT"})
		return
	}
	valid, err := h.payments.VerifySignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

type callbackRequest struct {
	OrderID          int64  `json:"order_id" binding:"required"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
	Status           string `json:"status"`
}

// paymentCallback ingests a gateway notification: verify the signature,
// then hand the verified fact to the reconciliation worker via Kafka. The
// worker owns the ledger transition.
func (h *Handler) paymentCallback(c *gin.Context) {
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "INVALID_INPUT"})
		return
	}

	valid, err := h.payments.VerifySignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed", "code": "SIGNATURE_INVALID"})
		return
	}

	if h.events == nil {
		// No broker wired: apply synchronously.
		status := models.PaymentStatusCompleted
		if req.Status == models.PaymentStatusFailed {
			status = models.PaymentStatusFailed
		}
		order, err := h.orders.UpdatePaymentStatus(c.Request.Context(), req.OrderID, req.GatewayPaymentID, status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
		return
	}

	base := models.BaseEvent{
		EventID:   uuid.New().String(),
		Timestamp: time.Now(),
	}
	if req.Status == models.PaymentStatusFailed {
		base.EventType = models.EventTypePaymentFailed
		err = h.events.PublishPaymentFailed(c.Request.Context(), &models.PaymentFailedEvent{
			BaseEvent:        base,
			OrderID:          req.OrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			Reason:           "gateway_reported_failure",
		})
	} else {
		base.EventType = models.EventTypePaymentCompleted
		err = h.events.PublishPaymentCompleted(c.Request.Context(), &models.PaymentCompletedEvent{
			BaseEvent:        base,
			OrderID:          req.OrderID,
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
		})
	}
	if err != nil {
		h.logger.Error("Failed to publish payment event", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to queue payment event", "code": "UNAVAILABLE"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name, "code": "INVALID_INPUT"})
		return 0, false
	}
	return id, true
}

// respondError maps the error taxonomy to HTTP. InsufficientStock gets a
// distinct code because it is a normal business outcome the client must be
// able to tell apart from a generic failure.
func respondError(c *gin.Context, err error) {
	status, code := httpStatusFromError(err)
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func httpStatusFromError(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, models.ErrEmptyCart):
		return http.StatusUnprocessableEntity, "EMPTY_CART"
	case errors.Is(err, models.ErrInsufficientStock):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, models.ErrGatewayUnavailable):
		return http.StatusBadGateway, "GATEWAY_UNAVAILABLE"
	case errors.Is(err, models.ErrGatewayMisconfigured):
		return http.StatusInternalServerError, "GATEWAY_MISCONFIGURED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
