package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kitchenly/client-go/pkg/models"
)

// RequestState tracks the in-flight status of one meal's mutation, so the UI
// can key spinners per line instead of locking the whole cart.
type RequestState int

const (
	StateIdle RequestState = iota
	StateLoading
	StateFailed
)

// API is the slice of the backend client the cart needs.
type API interface {
	FetchCart(ctx context.Context) (*models.Cart, error)
	SetCartItem(ctx context.Context, mealID string, quantity int) (*models.Cart, error)
	RemoveCartItem(ctx context.Context, mealID string) (*models.Cart, error)
}

// Manager performs the round trip between a requested cart mutation and the
// server-confirmed state: optimistic local change, then wholesale overwrite
// with the authoritative response.
//
// Concurrent mutations for the same meal are guarded by per-meal request
// generations: each SetItem takes a new generation, and a response is
// applied only if its generation is still the newest for that meal. A rapid
// double-tap whose responses arrive out of order therefore cannot clobber
// the latest intent; the stale response is logged and dropped.
type Manager struct {
	store  *Store
	client API
	logger *logrus.Logger

	mu      sync.Mutex
	gens    map[string]uint64
	flags   map[string]RequestState
	catalog map[string]models.Meal
}

func NewManager(client API, logger *logrus.Logger) *Manager {
	return &Manager{
		store:   NewStore(),
		client:  client,
		logger:  logger,
		gens:    make(map[string]uint64),
		flags:   make(map[string]RequestState),
		catalog: make(map[string]models.Meal),
	}
}

// Store exposes the read-only view consumed by presentation code.
func (m *Manager) Store() *Store {
	return m.store
}

// PrimeCatalog records meal snapshots so optimistic adds of meals not yet in
// the cart can render a name and price before the server responds.
func (m *Manager) PrimeCatalog(meals []models.Meal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meal := range meals {
		m.catalog[meal.ID] = meal
	}
}

// Refresh pulls the authoritative cart and replaces local state wholesale.
// On failure local state is left untouched; the error is retryable by simply
// calling Refresh again.
func (m *Manager) Refresh(ctx context.Context) error {
	cart, err := m.client.FetchCart(ctx)
	if err != nil {
		return fmt.Errorf("refresh cart: %w", err)
	}
	m.store.Replace(cart)
	m.logger.WithField("item_count", m.store.ItemCount()).Debug("Cart refreshed from server")
	return nil
}

// SetItem requests quantity for a meal. Quantities below zero clamp to zero,
// and zero is a removal request. The local store shows the requested value
// immediately (pending) and is overwritten with the server's confirmed cart
// when the response lands, whether or not they already agree.
func (m *Manager) SetItem(ctx context.Context, mealID string, quantity int) error {
	if quantity < 0 {
		quantity = 0
	}
	return m.mutate(ctx, mealID, quantity, func(ctx context.Context) (*models.Cart, error) {
		return m.client.SetCartItem(ctx, mealID, quantity)
	})
}

// RemoveItem is equivalent to SetItem(mealID, 0).
func (m *Manager) RemoveItem(ctx context.Context, mealID string) error {
	return m.mutate(ctx, mealID, 0, func(ctx context.Context) (*models.Cart, error) {
		return m.client.RemoveCartItem(ctx, mealID)
	})
}

// ItemState reports the in-flight status of a meal's latest mutation.
func (m *Manager) ItemState(mealID string) RequestState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags[mealID]
}

// Reset drops all local cart state. Used on logout and after checkout.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.gens = make(map[string]uint64)
	m.flags = make(map[string]RequestState)
	m.mu.Unlock()
	m.store.Clear()
}

func (m *Manager) mutate(ctx context.Context, mealID string, quantity int, call func(context.Context) (*models.Cart, error)) error {
	m.mu.Lock()
	m.gens[mealID]++
	gen := m.gens[mealID]
	m.flags[mealID] = StateLoading
	meal, ok := m.catalog[mealID]
	if !ok {
		meal = models.Meal{ID: mealID}
	}
	m.mu.Unlock()

	prev, existed := m.store.stage(meal, quantity)

	cart, err := call(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gens[mealID] != gen {
		m.logger.WithFields(logrus.Fields{
			"meal_id":    mealID,
			"generation": gen,
			"latest":     m.gens[mealID],
		}).Warn("Dropping stale cart response")
		return nil
	}

	if err != nil {
		m.store.restore(mealID, prev, existed)
		m.flags[mealID] = StateFailed
		m.logger.WithError(err).WithField("meal_id", mealID).Error("Cart mutation failed, rolled back")
		return fmt.Errorf("set cart item: %w", err)
	}

	m.store.Replace(cart)
	m.flags[mealID] = StateIdle
	return nil
}
