package devserver

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitchenly/client-go/pkg/models"
	"github.com/kitchenly/client-go/pkg/money"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownMeal       = errors.New("unknown meal")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the backend's persistence boundary. The in-memory implementation
// is the default; a Postgres one is selected by DATABASE_URL.
type Store interface {
	SeedMeals(meals []models.Meal, kitchens []models.Kitchen) error
	Meals(kitchenID string) ([]models.Meal, error)
	Cart(userID string) (*models.Cart, error)
	SetCartItem(userID, mealID string, quantity int) (*models.Cart, error)
	Checkout(userID string) (*models.Order, error)
	Orders(filter models.OrderFilter) ([]models.Order, error)
	Order(orderID string) (*models.Order, error)
	UpdateOrderStatus(orderID string, next models.Status) (*models.Order, error)
	UpdateOrderItemStatus(orderID, itemID string, next models.Status) (*models.Order, error)
}

type memoryStore struct {
	mu       sync.RWMutex
	meals    map[string]models.Meal
	kitchens map[string]models.Kitchen
	carts    map[string]map[string]int // user ID -> meal ID -> quantity
	orders   map[string]*models.Order
}

func NewMemoryStore() Store {
	return &memoryStore{
		meals:    make(map[string]models.Meal),
		kitchens: make(map[string]models.Kitchen),
		carts:    make(map[string]map[string]int),
		orders:   make(map[string]*models.Order),
	}
}

func (s *memoryStore) SeedMeals(meals []models.Meal, kitchens []models.Kitchen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range kitchens {
		s.kitchens[k.ID] = k
	}
	for _, m := range meals {
		s.meals[m.ID] = m
	}
	return nil
}

func (s *memoryStore) Meals(kitchenID string) ([]models.Meal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Meal, 0, len(s.meals))
	for _, m := range s.meals {
		if kitchenID != "" && m.KitchenID != kitchenID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) Cart(userID string) (*models.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildCart(userID), nil
}

func (s *memoryStore) SetCartItem(userID, mealID string, quantity int) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Removal is idempotent: taking out a meal that is not in the catalog
	// or the cart is a no-op, not an error.
	if quantity <= 0 {
		delete(s.carts[userID], mealID)
		return s.buildCart(userID), nil
	}

	if _, ok := s.meals[mealID]; !ok {
		return nil, fmt.Errorf("meal %s: %w", mealID, ErrUnknownMeal)
	}
	lines := s.carts[userID]
	if lines == nil {
		lines = make(map[string]int)
		s.carts[userID] = lines
	}
	lines[mealID] = quantity
	return s.buildCart(userID), nil
}

func (s *memoryStore) Checkout(userID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[userID]
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	mealIDs := make([]string, 0, len(lines))
	for id := range lines {
		mealIDs = append(mealIDs, id)
	}
	sort.Strings(mealIDs)

	now := time.Now()
	order := &models.Order{
		ID:         uuid.New().String(),
		CustomerID: userID,
		Status:     models.StatusAwaitingPayment,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	total := decimal.Zero
	kitchenIDs := map[string]bool{}
	for _, mealID := range mealIDs {
		meal := s.meals[mealID]
		qty := lines[mealID]
		order.Items = append(order.Items, models.OrderItem{
			ID:        uuid.New().String(),
			MealID:    meal.ID,
			Name:      meal.Name,
			KitchenID: meal.KitchenID,
			Quantity:  qty,
			UnitPrice: meal.UnitPrice, // snapshot: later price changes don't touch this
			Status:    models.StatusAwaitingPayment,
		})
		total = total.Add(meal.UnitPrice.Mul(decimal.NewFromInt(int64(qty))))
		kitchenIDs[meal.KitchenID] = true
	}
	if len(kitchenIDs) == 1 {
		order.KitchenID = order.Items[0].KitchenID
	}
	order.Total = money.NewAmount(total)

	s.orders[order.ID] = order
	delete(s.carts, userID)

	return cloneOrder(order), nil
}

func (s *memoryStore) Orders(filter models.OrderFilter) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.Order
	for _, o := range s.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.KitchenID != "" && !orderTouchesKitchen(o, filter.KitchenID) {
			continue
		}
		all = append(all, *cloneOrder(o))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, filter.Page, filter.PerPage), nil
}

func (s *memoryStore) Order(orderID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return cloneOrder(o), nil
}

func (s *memoryStore) UpdateOrderStatus(orderID string, next models.Status) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("order %s: %s -> %s: %w", orderID, o.Status, next, ErrInvalidTransition)
	}
	o.Status = next
	o.UpdatedAt = time.Now()
	for i := range o.Items {
		if o.Items[i].Status.CanTransitionTo(next) {
			o.Items[i].Status = next
		}
	}
	return cloneOrder(o), nil
}

func (s *memoryStore) UpdateOrderItemStatus(orderID, itemID string, next models.Status) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	found := false
	for i := range o.Items {
		if o.Items[i].ID != itemID {
			continue
		}
		found = true
		if !o.Items[i].Status.CanTransitionTo(next) {
			return nil, fmt.Errorf("item %s: %s -> %s: %w", itemID, o.Items[i].Status, next, ErrInvalidTransition)
		}
		o.Items[i].Status = next
	}
	if !found {
		return nil, fmt.Errorf("order %s item %s: %w", orderID, itemID, ErrNotFound)
	}

	// The order reaches a status once every item has: mixed-kitchen orders
	// progress per item and converge at the end.
	if derived, ok := commonItemStatus(o); ok && derived != o.Status && o.Status.CanTransitionTo(derived) {
		o.Status = derived
	}
	o.UpdatedAt = time.Now()
	return cloneOrder(o), nil
}

func (s *memoryStore) buildCart(userID string) *models.Cart {
	lines := s.carts[userID]
	byKitchen := map[string][]models.CartLine{}
	for mealID, qty := range lines {
		meal := s.meals[mealID]
		byKitchen[meal.KitchenID] = append(byKitchen[meal.KitchenID], models.CartLine{
			MealID:   mealID,
			Meal:     meal,
			Quantity: qty,
		})
	}

	kitchenIDs := make([]string, 0, len(byKitchen))
	for id := range byKitchen {
		kitchenIDs = append(kitchenIDs, id)
	}
	sort.Strings(kitchenIDs)

	cart := &models.Cart{}
	for _, id := range kitchenIDs {
		items := byKitchen[id]
		sort.Slice(items, func(i, j int) bool { return items[i].MealID < items[j].MealID })
		cart.Kitchens = append(cart.Kitchens, models.KitchenCart{
			KitchenID: id,
			Kitchen:   s.kitchens[id],
			Items:     items,
		})
	}
	return cart
}

// cloneOrder copies the order and its items so callers never alias storage
// that a later mutation will write to.
func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

func orderTouchesKitchen(o *models.Order, kitchenID string) bool {
	if o.KitchenID == kitchenID {
		return true
	}
	for _, item := range o.Items {
		if item.KitchenID == kitchenID {
			return true
		}
	}
	return false
}

func commonItemStatus(o *models.Order) (models.Status, bool) {
	if len(o.Items) == 0 {
		return "", false
	}
	st := o.Items[0].Status
	for _, item := range o.Items[1:] {
		if item.Status != st {
			return "", false
		}
	}
	return st, true
}

func paginate(orders []models.Order, page, perPage int) []models.Order {
	if perPage <= 0 {
		return orders
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(orders) {
		return []models.Order{}
	}
	end := start + perPage
	if end > len(orders) {
		end = len(orders)
	}
	return orders[start:end]
}
