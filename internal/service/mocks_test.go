package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"unibuy/internal/models"
)

// memStore is an in-memory stand-in for the Postgres store. Transactions are
// emulated by snapshotting state before fn and restoring it on error, which
// preserves the all-or-nothing behavior the services rely on.
type memStore struct {
	mu sync.Mutex

	nextCartID  int64
	nextOrderID int64
	nextItemID  int64

	products   map[int64]*models.Product
	carts      map[int64]*models.Cart   // keyed by user id
	items      map[int64]map[int64]int  // cart id -> product id -> quantity
	orders     map[int64]*models.Order  // keyed by order id
	orderItems map[int64][]models.OrderItem
	processed  map[string]string
}

func newMemStore(products ...*models.Product) *memStore {
	s := &memStore{
		products:   make(map[int64]*models.Product),
		carts:      make(map[int64]*models.Cart),
		items:      make(map[int64]map[int64]int),
		orders:     make(map[int64]*models.Order),
		orderItems: make(map[int64][]models.OrderItem),
		processed:  make(map[string]string),
	}
	for _, p := range products {
		cp := *p
		s.products[p.ID] = &cp
	}
	return s
}

// Catalog

func (s *memStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetProducts(ctx context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Product
	for _, p := range s.products {
		out = append(out, *p)
	}
	return out, nil
}

func (s *memStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// CartStore

func (s *memStore) GetOrCreateCart(ctx context.Context, userID int64) (*models.Cart, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateCartLocked(userID)
}

func (s *memStore) getOrCreateCartLocked(userID int64) (*models.Cart, bool, error) {
	if cart, ok := s.carts[userID]; ok {
		cp := *cart
		return &cp, false, nil
	}
	s.nextCartID++
	cart := &models.Cart{ID: s.nextCartID, UserID: userID}
	s.carts[userID] = cart
	s.items[cart.ID] = make(map[int64]int)
	cp := *cart
	return &cp, true, nil
}

func (s *memStore) AddCartItem(ctx context.Context, cartID, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, ok := s.items[cartID]
	if !ok {
		return errors.New("no such cart")
	}
	lines[productID] += quantity
	return nil
}

func (s *memStore) SetCartItemQuantity(ctx context.Context, cartID, productID int64, quantity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, ok := s.items[cartID]
	if !ok {
		return false, errors.New("no such cart")
	}
	if _, ok := lines[productID]; !ok {
		return false, nil
	}
	lines[productID] = quantity
	return true, nil
}

func (s *memStore) DeleteCartItem(ctx context.Context, cartID, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lines, ok := s.items[cartID]; ok {
		delete(lines, productID)
	}
	return nil
}

func (s *memStore) ClearCart(ctx context.Context, cartID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cartID] = make(map[int64]int)
	return nil
}

func (s *memStore) GetCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartLinesLocked(cartID)
}

func (s *memStore) cartLinesLocked(cartID int64) ([]models.CartLine, error) {
	var lines []models.CartLine
	for productID, qty := range s.items[cartID] {
		p, ok := s.products[productID]
		if !ok {
			return nil, fmt.Errorf("product %d vanished", productID)
		}
		lines = append(lines, models.CartLine{
			ProductID: productID,
			Name:      p.Name,
			UnitPrice: p.Price,
			ImageURL:  p.ImageURL,
			Quantity:  qty,
		})
	}
	return lines, nil
}

// CheckoutStore

type memCheckoutTx struct {
	s *memStore
}

func (s *memStore) RunInCheckoutTx(ctx context.Context, fn func(tx CheckoutTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backup := s.snapshotLocked()
	if err := fn(&memCheckoutTx{s: s}); err != nil {
		s.restoreLocked(backup)
		return err
	}
	return nil
}

func (t *memCheckoutTx) CartForUpdate(ctx context.Context, userID int64) (*models.Cart, error) {
	cart, ok := t.s.carts[userID]
	if !ok {
		return nil, fmt.Errorf("cart for user %d: %w", userID, models.ErrNotFound)
	}
	cp := *cart
	return &cp, nil
}

func (t *memCheckoutTx) CartLines(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	return t.s.cartLinesLocked(cartID)
}

func (t *memCheckoutTx) InsertOrder(ctx context.Context, order *models.Order) error {
	t.s.nextOrderID++
	order.ID = t.s.nextOrderID
	cp := *order
	t.s.orders[order.ID] = &cp
	return nil
}

func (t *memCheckoutTx) InsertOrderItems(ctx context.Context, items []models.OrderItem) error {
	for i := range items {
		t.s.nextItemID++
		items[i].ID = t.s.nextItemID
		t.s.orderItems[items[i].OrderID] = append(t.s.orderItems[items[i].OrderID], items[i])
	}
	return nil
}

func (t *memCheckoutTx) ClearCart(ctx context.Context, cartID int64) error {
	t.s.items[cartID] = make(map[int64]int)
	return nil
}

// LedgerStore

type memOrderTx struct {
	s *memStore
}

func (s *memStore) RunInOrderTx(ctx context.Context, fn func(tx OrderTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backup := s.snapshotLocked()
	if err := fn(&memOrderTx{s: s}); err != nil {
		s.restoreLocked(backup)
		return err
	}
	return nil
}

func (t *memOrderTx) OrderForUpdate(ctx context.Context, orderID int64) (*models.Order, error) {
	order, ok := t.s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	cp := *order
	return &cp, nil
}

func (t *memOrderTx) SetStatus(ctx context.Context, orderID int64, status string) error {
	order, ok := t.s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	order.Status = status
	return nil
}

func (t *memOrderTx) SetPayment(ctx context.Context, orderID int64, gatewayPaymentID, paymentStatus string) error {
	order, ok := t.s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	order.GatewayPaymentID = gatewayPaymentID
	order.PaymentStatus = paymentStatus
	return nil
}

func (t *memOrderTx) OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := t.s.orderItems[orderID]
	out := make([]models.OrderItem, len(items))
	copy(out, items)
	return out, nil
}

func (t *memOrderTx) DecrementStockIfAvailable(ctx context.Context, productID int64, quantity int) (bool, error) {
	p, ok := t.s.products[productID]
	if !ok {
		return false, nil
	}
	if p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	return true, nil
}

func (s *memStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	cp := *order
	return &cp, nil
}

func (s *memStore) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.orderItems[orderID]
	out := make([]models.OrderItem, len(items))
	copy(out, items)
	return out, nil
}

func (s *memStore) GetOrders(ctx context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (s *memStore) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *memStore) SetGatewayOrderID(ctx context.Context, orderID int64, gatewayOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	if order.GatewayOrderID == "" {
		order.GatewayOrderID = gatewayOrderID
	}
	return nil
}

func (s *memStore) GetStalePendingOrderIDs(ctx context.Context, olderThan time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, o := range s.orders {
		if o.Status == models.OrderStatusPending && o.CreatedAt.Before(olderThan) {
			ids = append(ids, id)
		}
		if len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

func (s *memStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *memStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID] = eventType
	return nil
}

// snapshot / restore

type memSnapshot struct {
	products   map[int64]*models.Product
	carts      map[int64]*models.Cart
	items      map[int64]map[int64]int
	orders     map[int64]*models.Order
	orderItems map[int64][]models.OrderItem
	nextOrder  int64
	nextItem   int64
}

func (s *memStore) snapshotLocked() memSnapshot {
	snap := memSnapshot{
		products:   make(map[int64]*models.Product, len(s.products)),
		carts:      make(map[int64]*models.Cart, len(s.carts)),
		items:      make(map[int64]map[int64]int, len(s.items)),
		orders:     make(map[int64]*models.Order, len(s.orders)),
		orderItems: make(map[int64][]models.OrderItem, len(s.orderItems)),
		nextOrder:  s.nextOrderID,
		nextItem:   s.nextItemID,
	}
	for id, p := range s.products {
		cp := *p
		snap.products[id] = &cp
	}
	for id, c := range s.carts {
		cp := *c
		snap.carts[id] = &cp
	}
	for id, lines := range s.items {
		m := make(map[int64]int, len(lines))
		for k, v := range lines {
			m[k] = v
		}
		snap.items[id] = m
	}
	for id, o := range s.orders {
		cp := *o
		snap.orders[id] = &cp
	}
	for id, items := range s.orderItems {
		cp := make([]models.OrderItem, len(items))
		copy(cp, items)
		snap.orderItems[id] = cp
	}
	return snap
}

func (s *memStore) restoreLocked(snap memSnapshot) {
	s.products = snap.products
	s.carts = snap.carts
	s.items = snap.items
	s.orders = snap.orders
	s.orderItems = snap.orderItems
	s.nextOrderID = snap.nextOrder
	s.nextItemID = snap.nextItem
}

// fakeCache is an in-memory CartCache that can be told to fail.
type fakeCache struct {
	mu            sync.Mutex
	views         map[int64]*models.CartView
	invalidations int
	failReads     bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{views: make(map[int64]*models.CartView)}
}

func (c *fakeCache) GetCartView(ctx context.Context, userID int64) (*models.CartView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failReads {
		return nil, errors.New("cache down")
	}
	return c.views[userID], nil
}

func (c *fakeCache) SetCartView(ctx context.Context, userID int64, view *models.CartView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[userID] = view
	return nil
}

func (c *fakeCache) InvalidateCart(ctx context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, userID)
	c.invalidations++
	return nil
}

// fakeEvents records published events.
type fakeEvents struct {
	mu        sync.Mutex
	placed    []*models.OrderPlacedEvent
	confirmed []*models.OrderConfirmedEvent
	cancelled []*models.OrderCancelledEvent
}

func (e *fakeEvents) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.placed = append(e.placed, event)
	return nil
}

func (e *fakeEvents) PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.confirmed = append(e.confirmed, event)
	return nil
}

func (e *fakeEvents) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = append(e.cancelled, event)
	return nil
}

// fakeGateway records the last CreateOrder call.
type fakeGateway struct {
	lastAmount   int64
	lastCurrency string
	lastReceipt  string
	lastNotes    map[string]string
	returnID     string
	returnErr    error
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (string, error) {
	g.lastAmount = amountMinor
	g.lastCurrency = currency
	g.lastReceipt = receipt
	g.lastNotes = notes
	if g.returnErr != nil {
		return "", g.returnErr
	}
	if g.returnID == "" {
		return "gw_order_test", nil
	}
	return g.returnID, nil
}

// fakeRecorder records gateway order attachments.
type fakeRecorder struct {
	orderID        int64
	gatewayOrderID string
}

func (r *fakeRecorder) AttachGatewayOrder(ctx context.Context, orderID int64, gatewayOrderID string) error {
	r.orderID = orderID
	r.gatewayOrderID = gatewayOrderID
	return nil
}
