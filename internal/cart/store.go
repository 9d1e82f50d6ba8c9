package cart

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/kitchenly/client-go/pkg/models"
)

// Line is one meal in the cart. Pending marks an optimistic quantity that
// has not been confirmed by the server yet.
type Line struct {
	Meal     models.Meal
	Quantity int
	Pending  bool
}

// Store holds the client's best-known view of the cart, keyed by kitchen
// then meal. It is an optimistic mirror: Replace overwrites it wholesale
// with the server's authoritative payload after every successful round trip.
// UI code reads it; only the Manager writes it.
type Store struct {
	mu       sync.RWMutex
	kitchens map[string]map[string]Line
	index    map[string]string // meal ID -> kitchen ID
}

func NewStore() *Store {
	return &Store{
		kitchens: make(map[string]map[string]Line),
		index:    make(map[string]string),
	}
}

// Replace swaps in a server cart payload. No merge happens: kitchens and
// lines absent from the payload disappear, including optimistic ones.
func (s *Store) Replace(cart *models.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kitchens = make(map[string]map[string]Line)
	s.index = make(map[string]string)
	if cart == nil {
		return
	}
	for _, kc := range cart.Kitchens {
		for _, item := range kc.Items {
			if item.Quantity <= 0 {
				continue
			}
			s.put(Line{Meal: item.Meal, Quantity: item.Quantity})
		}
	}
}

// ItemsForKitchen returns the kitchen's lines ordered by meal ID. An empty
// slice is valid state, not an error.
func (s *Store) ItemsForKitchen(kitchenID string) []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := s.kitchens[kitchenID]
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meal.ID < out[j].Meal.ID })
	return out
}

// Kitchens returns the IDs of kitchens that currently have at least one
// line, sorted. A kitchen emptied by the server is not listed.
func (s *Store) Kitchens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.kitchens))
	for id := range s.kitchens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) Quantity(mealID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.line(mealID)
	if !ok {
		return 0
	}
	return l.Quantity
}

// Total sums unit price times quantity over all kitchens. Prices already
// passed through money.Parse, so malformed inputs contribute zero. Pure
// function of the current state.
func (s *Store) Total() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, lines := range s.kitchens {
		for _, l := range lines {
			total = total.Add(l.Meal.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}
	return total
}

func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, lines := range s.kitchens {
		for _, l := range lines {
			count += l.Quantity
		}
	}
	return count
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kitchens = make(map[string]map[string]Line)
	s.index = make(map[string]string)
}

// stage applies an optimistic quantity ahead of server confirmation and
// returns the previous line for rollback. A quantity of zero or below is a
// removal, never stored.
func (s *Store) stage(meal models.Meal, quantity int) (prev Line, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed = s.line(meal.ID)
	if existed && meal.KitchenID == "" {
		meal = prev.Meal
	}
	if quantity <= 0 {
		s.remove(meal.ID)
		return prev, existed
	}
	s.put(Line{Meal: meal, Quantity: quantity, Pending: true})
	return prev, existed
}

// restore undoes a staged change after the server rejected it.
func (s *Store) restore(mealID string, prev Line, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !existed {
		s.remove(mealID)
		return
	}
	prev.Pending = false
	s.put(prev)
}

func (s *Store) line(mealID string) (Line, bool) {
	kitchenID, ok := s.index[mealID]
	if !ok {
		return Line{}, false
	}
	l, ok := s.kitchens[kitchenID][mealID]
	return l, ok
}

func (s *Store) put(l Line) {
	if prevKitchen, ok := s.index[l.Meal.ID]; ok && prevKitchen != l.Meal.KitchenID {
		s.removeFrom(prevKitchen, l.Meal.ID)
	}
	lines := s.kitchens[l.Meal.KitchenID]
	if lines == nil {
		lines = make(map[string]Line)
		s.kitchens[l.Meal.KitchenID] = lines
	}
	lines[l.Meal.ID] = l
	s.index[l.Meal.ID] = l.Meal.KitchenID
}

func (s *Store) remove(mealID string) {
	kitchenID, ok := s.index[mealID]
	if !ok {
		return
	}
	s.removeFrom(kitchenID, mealID)
}

func (s *Store) removeFrom(kitchenID, mealID string) {
	delete(s.kitchens[kitchenID], mealID)
	if len(s.kitchens[kitchenID]) == 0 {
		delete(s.kitchens, kitchenID)
	}
	delete(s.index, mealID)
}
