package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kitchenly/client-go/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestNewClientTimeout(t *testing.T) {
	client := NewClient("http://localhost", 3*time.Second, nil, testLogger())
	if got := client.httpClient.Timeout; got != 3*time.Second {
		t.Fatalf("timeout = %s, want 3s", got)
	}

	client = NewClient("http://localhost", 0, nil, testLogger())
	if got := client.httpClient.Timeout; got != 10*time.Second {
		t.Fatalf("default timeout = %s, want 10s", got)
	}
}

func TestFetchCartDecodesMixedPriceEncodings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cart" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		// Prices deliberately mix a grouped string and a bare number.
		w.Write([]byte(`{"success":true,"cart":{"kitchens":[{"kitchen_id":"k1","kitchen":{"id":"k1","name":"Mama Put"},"items":[
			{"meal_id":"m1","meal":{"id":"m1","kitchen_id":"k1","name":"Jollof","unit_price":"2,500"},"quantity":2},
			{"meal_id":"m2","meal":{"id":"m2","kitchen_id":"k1","name":"Suya","unit_price":1200},"quantity":1}
		]}]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil, testLogger())
	cart, err := client.FetchCart(context.Background())
	if err != nil {
		t.Fatalf("FetchCart: %v", err)
	}
	if len(cart.Kitchens) != 1 || len(cart.Kitchens[0].Items) != 2 {
		t.Fatalf("unexpected cart shape: %+v", cart)
	}
	if got := cart.Kitchens[0].Items[0].Meal.UnitPrice.String(); got != "2500" {
		t.Errorf("grouped string price = %s, want 2500", got)
	}
	if got := cart.Kitchens[0].Items[1].Meal.UnitPrice.String(); got != "1200" {
		t.Errorf("numeric price = %s, want 1200", got)
	}
}

func TestSetCartItemClampsNegativeQuantity(t *testing.T) {
	var gotQuantity int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Quantity int `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotQuantity = body.Quantity
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"cart":{"kitchens":[]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil, testLogger())
	if _, err := client.SetCartItem(context.Background(), "m1", -4); err != nil {
		t.Fatalf("SetCartItem: %v", err)
	}
	if gotQuantity != 0 {
		t.Errorf("sent quantity %d, want 0", gotQuantity)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"success":false,"message":"order not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil, testLogger())
	_, err := client.GetOrder(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestErrorPayloadMessageSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"success":false,"message":"quantity must be non-negative"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil, testLogger())
	_, err := client.SetCartItem(context.Background(), "m1", 3)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.Message != "quantity must be non-negative" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if UserMessage(err) != "quantity must be non-negative" {
		t.Errorf("UserMessage = %q", UserMessage(err))
	}
}

func TestErrorFallbackMessageWhenPayloadUnstructured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil, testLogger())
	_, err := client.FetchCart(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Message != "request failed with status 400" {
		t.Errorf("fallback message = %q", apiErr.Message)
	}
}

func TestBearerTokenSentWhenPresent(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"success":true,"cart":{"kitchens":[]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, func() string { return "tok-123" }, testLogger())
	if _, err := client.FetchCart(context.Background()); err != nil {
		t.Fatalf("FetchCart: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestPayOrderReturnsRedirectURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/o1/pay" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Method string `json:"method"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Method != "online" {
			t.Errorf("payment method = %q, want online", body.Method)
		}
		w.Write([]byte(`{"success":true,"redirect_url":"https://pay.example/session/abc"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil, testLogger())
	redirect, err := client.PayOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("PayOrder: %v", err)
	}
	if redirect != "https://pay.example/session/abc" {
		t.Errorf("redirect = %q", redirect)
	}
}

func TestListOrdersFilterEncoding(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"success":true,"orders":[],"count":0}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil, testLogger())
	_, err := client.ListOrders(context.Background(), models.OrderFilter{
		Status:    models.StatusPreparing,
		KitchenID: "k1",
		Page:      2,
		PerPage:   10,
	})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	want := "kitchen_id=k1&page=2&per_page=10&status=PREPARING"
	if gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}
}
