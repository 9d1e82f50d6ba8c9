package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kitchenly/client-go/internal/api"
	"github.com/kitchenly/client-go/pkg/models"
	"github.com/kitchenly/client-go/pkg/money"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type fakeOrderAPI struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	payURL    string
	payErr    error
	updateErr error
	payCalls  int

	// blockUpdate, when non-nil, makes UpdateOrderStatus wait until the
	// channel is closed.
	blockUpdate chan struct{}
}

func newFakeOrderAPI(orders ...*models.Order) *fakeOrderAPI {
	f := &fakeOrderAPI{orders: make(map[string]*models.Order), payURL: "https://pay.example/x"}
	for _, o := range orders {
		cp := *o
		f.orders[o.ID] = &cp
	}
	return f
}

func (f *fakeOrderAPI) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, api.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderAPI) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrderAPI) PayOrder(ctx context.Context, orderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payCalls++
	if f.payErr != nil {
		return "", f.payErr
	}
	return f.payURL, nil
}

func (f *fakeOrderAPI) UpdateOrderStatus(ctx context.Context, orderID string, next models.Status) (*models.Order, error) {
	if f.blockUpdate != nil {
		<-f.blockUpdate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return nil, api.ErrNotFound
	}
	o.Status = next
	cp := *o
	return &cp, nil
}

func (f *fakeOrderAPI) UpdateOrderItemStatus(ctx context.Context, orderID, itemID string, next models.Status) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return nil, api.ErrNotFound
	}
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			o.Items[i].Status = next
		}
	}
	cp := *o
	return &cp, nil
}

type fakeCart struct {
	mu    sync.Mutex
	calls []cartCall
	err   error
}

type cartCall struct {
	mealID   string
	quantity int
}

func (f *fakeCart) SetItem(ctx context.Context, mealID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, cartCall{mealID, quantity})
	return nil
}

func order(id string, status models.Status, items ...models.OrderItem) *models.Order {
	return &models.Order{ID: id, CustomerID: "u1", KitchenID: "k1", Status: status, Items: items}
}

func TestPayReturnsRedirectWithoutLocalTransition(t *testing.T) {
	backend := newFakeOrderAPI(order("o1", models.StatusAwaitingPayment))
	tr := NewTracker(backend, &fakeCart{}, testLogger())

	ctx := context.Background()
	redirect, err := tr.Pay(ctx, "o1")
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if redirect != "https://pay.example/x" {
		t.Errorf("redirect = %q", redirect)
	}

	// The order is not marked paid locally; only a later fetch may move it.
	cached, ok := tr.Cached("o1")
	if !ok || cached.Status != models.StatusAwaitingPayment {
		t.Errorf("cached status = %v, want AWAITING_PAYMENT", cached)
	}

	// Backend confirms payment; the next fetch reflects it.
	backend.mu.Lock()
	backend.orders["o1"].Status = models.StatusAwaitingAcknowledgement
	backend.mu.Unlock()
	got, err := tr.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusAwaitingAcknowledgement {
		t.Errorf("status after fetch = %s", got.Status)
	}
}

func TestPayRejectedOutsideAwaitingPayment(t *testing.T) {
	backend := newFakeOrderAPI(order("o1", models.StatusPreparing))
	tr := NewTracker(backend, &fakeCart{}, testLogger())

	_, err := tr.Pay(context.Background(), "o1")
	if !errors.Is(err, ErrActionNotAllowed) {
		t.Errorf("expected ErrActionNotAllowed, got %v", err)
	}
	if backend.payCalls != 0 {
		t.Errorf("pay endpoint hit %d times, want 0", backend.payCalls)
	}
}

func TestMarkReceivedTransitionsToDelivered(t *testing.T) {
	for _, from := range []models.Status{models.StatusPreparing, models.StatusInTransit} {
		t.Run(string(from), func(t *testing.T) {
			backend := newFakeOrderAPI(order("o1", from))
			tr := NewTracker(backend, &fakeCart{}, testLogger())

			if err := tr.MarkReceived(context.Background(), "o1"); err != nil {
				t.Fatalf("MarkReceived: %v", err)
			}
			cached, _ := tr.Cached("o1")
			if cached.Status != models.StatusDelivered {
				t.Errorf("status = %s, want DELIVERED", cached.Status)
			}
		})
	}
}

func TestMarkReceivedRejectedOnceDelivered(t *testing.T) {
	backend := newFakeOrderAPI(order("o1", models.StatusInTransit))
	tr := NewTracker(backend, &fakeCart{}, testLogger())

	ctx := context.Background()
	if err := tr.MarkReceived(ctx, "o1"); err != nil {
		t.Fatalf("first MarkReceived: %v", err)
	}
	// The UI now shows DELIVERED; a second tap must not fire again.
	err := tr.MarkReceived(ctx, "o1")
	if !errors.Is(err, ErrActionNotAllowed) {
		t.Errorf("expected ErrActionNotAllowed, got %v", err)
	}
}

func TestMarkReceivedFailureKeepsConfirmedStatus(t *testing.T) {
	backend := newFakeOrderAPI(order("o1", models.StatusInTransit))
	tr := NewTracker(backend, &fakeCart{}, testLogger())

	ctx := context.Background()
	if _, err := tr.Get(ctx, "o1"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	backend.updateErr = errors.New("network down")
	if err := tr.MarkReceived(ctx, "o1"); err == nil {
		t.Fatal("expected error")
	}
	cached, _ := tr.Cached("o1")
	if cached.Status != models.StatusInTransit {
		t.Errorf("status = %s, want last confirmed IN_TRANSIT", cached.Status)
	}
	if st := tr.State("o1"); st != StateFailed {
		t.Errorf("State = %v, want StateFailed", st)
	}

	// Recoverable: retry succeeds once the network is back.
	backend.updateErr = nil
	if err := tr.MarkReceived(ctx, "o1"); err != nil {
		t.Fatalf("retry MarkReceived: %v", err)
	}
}

func TestRepeatIssuesSetItemPerHistoricalLine(t *testing.T) {
	delivered := order("o1", models.StatusDelivered,
		models.OrderItem{ID: "i1", MealID: "m1", Quantity: 1, UnitPrice: money.AmountFromString("2000"), Status: models.StatusDelivered},
		models.OrderItem{ID: "i2", MealID: "m2", Quantity: 3, UnitPrice: money.AmountFromString("900"), Status: models.StatusDelivered},
	)
	backend := newFakeOrderAPI(delivered)
	cart := &fakeCart{}
	tr := NewTracker(backend, cart, testLogger())

	if err := tr.Repeat(context.Background(), "o1"); err != nil {
		t.Fatalf("Repeat: %v", err)
	}

	// Exactly the historical quantities; prices are not sent at all,
	// the server prices cart lines at the current catalog price.
	want := []cartCall{{"m1", 1}, {"m2", 3}}
	if len(cart.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", cart.calls, want)
	}
	for i := range want {
		if cart.calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, cart.calls[i], want[i])
		}
	}
}

func TestRepeatRejectedBeforeDelivery(t *testing.T) {
	backend := newFakeOrderAPI(order("o1", models.StatusInTransit))
	tr := NewTracker(backend, &fakeCart{}, testLogger())

	err := tr.Repeat(context.Background(), "o1")
	if !errors.Is(err, ErrActionNotAllowed) {
		t.Errorf("expected ErrActionNotAllowed, got %v", err)
	}
}

func TestUpdateItemStatusValidatesTransition(t *testing.T) {
	o := order("o1", models.StatusAwaitingAcknowledgement,
		models.OrderItem{ID: "i1", MealID: "m1", Quantity: 1, Status: models.StatusAwaitingAcknowledgement},
	)
	backend := newFakeOrderAPI(o)
	tr := NewTracker(backend, &fakeCart{}, testLogger())

	ctx := context.Background()
	if err := tr.UpdateItemStatus(ctx, "o1", "i1", models.StatusPreparing); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	// DELIVERED is not reachable from PREPARING for a kitchen item jump
	// check; the machine allows PREPARING -> IN_TRANSIT or cancel here.
	if err := tr.UpdateItemStatus(ctx, "o1", "i1", models.StatusAwaitingPayment); !errors.Is(err, ErrActionNotAllowed) {
		t.Errorf("expected ErrActionNotAllowed for backwards move, got %v", err)
	}

	if err := tr.UpdateItemStatus(ctx, "o1", "i1", models.StatusInTransit); err != nil {
		t.Fatalf("send in transit: %v", err)
	}
	cached, _ := tr.Cached("o1")
	if cached.Items[0].Status != models.StatusInTransit {
		t.Errorf("item status = %s, want IN_TRANSIT", cached.Items[0].Status)
	}
}

func TestUpdateItemStatusUnknownItem(t *testing.T) {
	backend := newFakeOrderAPI(order("o1", models.StatusAwaitingAcknowledgement))
	tr := NewTracker(backend, &fakeCart{}, testLogger())

	err := tr.UpdateItemStatus(context.Background(), "o1", "ghost", models.StatusPreparing)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestSecondMutationWhileInFlightRejected(t *testing.T) {
	backend := newFakeOrderAPI(order("o1", models.StatusInTransit))
	backend.blockUpdate = make(chan struct{})
	tr := NewTracker(backend, &fakeCart{}, testLogger())

	ctx := context.Background()
	if _, err := tr.Get(ctx, "o1"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- tr.MarkReceived(ctx, "o1") }()

	// Wait until the first request is in flight.
	deadline := time.Now().Add(2 * time.Second)
	for tr.State("o1") != StateLoading {
		if time.Now().After(deadline) {
			t.Fatal("first request never entered loading state")
		}
		time.Sleep(time.Millisecond)
	}

	if err := tr.Cancel(ctx, "o1"); !errors.Is(err, ErrUpdateInFlight) {
		t.Errorf("expected ErrUpdateInFlight, got %v", err)
	}

	close(backend.blockUpdate)
	if err := <-done; err != nil {
		t.Fatalf("MarkReceived: %v", err)
	}
}

func TestGetNotFoundIsDistinct(t *testing.T) {
	backend := newFakeOrderAPI()
	tr := NewTracker(backend, &fakeCart{}, testLogger())

	_, err := tr.Get(context.Background(), "ghost")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestApplyStatusDropsBackwardPush(t *testing.T) {
	backend := newFakeOrderAPI(order("o1", models.StatusInTransit))
	tr := NewTracker(backend, &fakeCart{}, testLogger())

	ctx := context.Background()
	if _, err := tr.Get(ctx, "o1"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	tr.ApplyStatus("o1", models.StatusDelivered)
	cached, _ := tr.Cached("o1")
	if cached.Status != models.StatusDelivered {
		t.Errorf("status = %s, want DELIVERED", cached.Status)
	}

	// A reordered push for an earlier state must not move the order back.
	tr.ApplyStatus("o1", models.StatusPreparing)
	cached, _ = tr.Cached("o1")
	if cached.Status != models.StatusDelivered {
		t.Errorf("status = %s, want DELIVERED after stale push", cached.Status)
	}
}
