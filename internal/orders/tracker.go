package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kitchenly/client-go/internal/api"
	"github.com/kitchenly/client-go/pkg/models"
)

var (
	// ErrOrderNotFound is a distinct state, not "still loading".
	ErrOrderNotFound = errors.New("order not found")

	// ErrUpdateInFlight rejects a second mutation for an order (or order
	// item) whose previous request has not resolved yet.
	ErrUpdateInFlight = errors.New("an update for this order is already in flight")

	// ErrActionNotAllowed means the order's current status does not admit
	// the requested action.
	ErrActionNotAllowed = errors.New("action not allowed in current order status")
)

// RequestState mirrors the per-key loading flags the UI keys spinners on.
type RequestState int

const (
	StateIdle RequestState = iota
	StateLoading
	StateFailed
)

// API is the slice of the backend client the tracker needs.
type API interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	PayOrder(ctx context.Context, orderID string) (string, error)
	UpdateOrderStatus(ctx context.Context, orderID string, next models.Status) (*models.Order, error)
	UpdateOrderItemStatus(ctx context.Context, orderID, itemID string, next models.Status) (*models.Order, error)
}

// CartSetter is how a repeat order feeds historical line items back into the
// live cart.
type CartSetter interface {
	SetItem(ctx context.Context, mealID string, quantity int) error
}

// Tracker caches the last server-confirmed snapshot of each order and runs
// status transitions against the backend. Unlike the cart there is no
// optimistic transition: a status changes locally only once the server has
// confirmed it, and a failed transition leaves the last confirmed status in
// place.
type Tracker struct {
	client API
	cart   CartSetter
	logger *logrus.Logger

	mu     sync.RWMutex
	orders map[string]*models.Order
	flags  map[string]RequestState
}

func NewTracker(client API, cart CartSetter, logger *logrus.Logger) *Tracker {
	return &Tracker{
		client: client,
		cart:   cart,
		logger: logger,
		orders: make(map[string]*models.Order),
		flags:  make(map[string]RequestState),
	}
}

// Get fetches an order and caches the confirmed snapshot. A missing order is
// ErrOrderNotFound so the UI can say so instead of spinning forever.
func (t *Tracker) Get(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := t.client.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
		}
		return nil, err
	}
	t.cache(order)
	return order, nil
}

func (t *Tracker) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	orders, err := t.client.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		t.cache(&orders[i])
	}
	return orders, nil
}

// Cached returns the last confirmed snapshot without touching the network.
func (t *Tracker) Cached(orderID string) (*models.Order, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	order, ok := t.orders[orderID]
	if !ok {
		return nil, false
	}
	cp := *order
	return &cp, true
}

// Pay obtains the payment redirect URL for an awaiting-payment order. The
// URL is opened externally by the caller; the order is not marked paid
// locally, only a later fetch (or a live-feed push) moves it forward.
func (t *Tracker) Pay(ctx context.Context, orderID string) (string, error) {
	order, err := t.snapshot(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != models.StatusAwaitingPayment {
		return "", fmt.Errorf("pay order %s in status %s: %w", orderID, order.Status, ErrActionNotAllowed)
	}
	if err := t.begin(orderID); err != nil {
		return "", err
	}

	redirect, err := t.client.PayOrder(ctx, orderID)
	if err != nil {
		t.finish(orderID, StateFailed)
		return "", fmt.Errorf("pay order %s: %w", orderID, err)
	}
	t.finish(orderID, StateIdle)
	t.logger.WithField("order_id", orderID).Info("Payment redirect ready, awaiting confirmation via fetch")
	return redirect, nil
}

// MarkReceived transitions a PREPARING or IN_TRANSIT order to DELIVERED on
// the customer's word. Once the tracker reflects DELIVERED a second trigger
// is rejected locally, keeping the action one-way.
func (t *Tracker) MarkReceived(ctx context.Context, orderID string) error {
	order, err := t.snapshot(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.StatusPreparing && order.Status != models.StatusInTransit {
		return fmt.Errorf("mark order %s received in status %s: %w", orderID, order.Status, ErrActionNotAllowed)
	}
	return t.transition(ctx, orderID, models.StatusDelivered)
}

// Cancel moves a non-terminal order to CANCELLED.
func (t *Tracker) Cancel(ctx context.Context, orderID string) error {
	order, err := t.snapshot(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		return fmt.Errorf("cancel order %s in status %s: %w", orderID, order.Status, ErrActionNotAllowed)
	}
	return t.transition(ctx, orderID, models.StatusCancelled)
}

// UpdateItemStatus progresses a single order item, keyed by (order, item) so
// each kitchen moves only its own items in a mixed-kitchen order.
func (t *Tracker) UpdateItemStatus(ctx context.Context, orderID, itemID string, next models.Status) error {
	order, err := t.snapshot(ctx, orderID)
	if err != nil {
		return err
	}
	var current models.Status
	found := false
	for _, item := range order.Items {
		if item.ID == itemID {
			current = item.Status
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("order %s has no item %s: %w", orderID, itemID, ErrOrderNotFound)
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("item %s cannot move %s -> %s: %w", itemID, current, next, ErrActionNotAllowed)
	}

	key := orderID + "/" + itemID
	if err := t.begin(key); err != nil {
		return err
	}
	updated, err := t.client.UpdateOrderItemStatus(ctx, orderID, itemID, next)
	if err != nil {
		t.finish(key, StateFailed)
		return fmt.Errorf("update item status: %w", err)
	}
	t.cache(updated)
	t.finish(key, StateIdle)
	return nil
}

// Repeat re-adds a delivered order's line items to the current cart at their
// historical quantities. Pricing is the current catalog price; the server
// prices cart lines, never the client.
func (t *Tracker) Repeat(ctx context.Context, orderID string) error {
	order, err := t.snapshot(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.StatusDelivered {
		return fmt.Errorf("repeat order %s in status %s: %w", orderID, order.Status, ErrActionNotAllowed)
	}
	for _, item := range order.Items {
		if err := t.cart.SetItem(ctx, item.MealID, item.Quantity); err != nil {
			return fmt.Errorf("repeat order %s: re-add meal %s: %w", orderID, item.MealID, err)
		}
	}
	t.logger.WithFields(logrus.Fields{
		"order_id":   orderID,
		"item_count": len(order.Items),
	}).Info("Order repeated into cart")
	return nil
}

// ApplyStatus ingests a server-pushed status change (live feed). Pushes are
// confirmed truth, but stale or reordered ones that would move an order
// backwards are dropped.
func (t *Tracker) ApplyStatus(orderID string, status models.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	order, ok := t.orders[orderID]
	if !ok {
		return
	}
	if order.Status == status {
		return
	}
	if !order.Status.CanTransitionTo(status) {
		t.logger.WithFields(logrus.Fields{
			"order_id": orderID,
			"current":  order.Status.String(),
			"pushed":   status.String(),
		}).Warn("Dropping out-of-order status push")
		return
	}
	order.Status = status
	t.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"status":   status.String(),
	}).Info("Order status updated from live feed")
}

// State reports the in-flight flag for an order or an order/item key.
func (t *Tracker) State(key string) RequestState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.flags[key]
}

func (t *Tracker) transition(ctx context.Context, orderID string, next models.Status) error {
	if err := t.begin(orderID); err != nil {
		return err
	}
	updated, err := t.client.UpdateOrderStatus(ctx, orderID, next)
	if err != nil {
		// No optimistic transition was applied, so the last confirmed
		// status is still what the UI shows.
		t.finish(orderID, StateFailed)
		return fmt.Errorf("transition order %s to %s: %w", orderID, next, err)
	}
	t.cache(updated)
	t.finish(orderID, StateIdle)
	return nil
}

// snapshot returns the cached order, fetching it on a cache miss.
func (t *Tracker) snapshot(ctx context.Context, orderID string) (*models.Order, error) {
	if order, ok := t.Cached(orderID); ok {
		return order, nil
	}
	return t.Get(ctx, orderID)
}

func (t *Tracker) begin(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.flags[key] == StateLoading {
		return ErrUpdateInFlight
	}
	t.flags[key] = StateLoading
	return nil
}

func (t *Tracker) finish(key string, state RequestState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flags[key] = state
}

func (t *Tracker) cache(order *models.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *order
	t.orders[order.ID] = &cp
}
