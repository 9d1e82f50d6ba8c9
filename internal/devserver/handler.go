package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kitchenly/client-go/pkg/models"
)

// Broadcaster pushes confirmed status changes to live-feed subscribers.
type Broadcaster interface {
	BroadcastStatus(orderID string, status models.Status)
}

// EventSink publishes status changes to the analytics pipeline. Optional.
type EventSink interface {
	PublishStatusChanged(event OrderStatusChangedEvent) error
}

type Handler struct {
	store  Store
	logger *logrus.Logger
	hub    Broadcaster
	events EventSink
}

func NewHandler(store Store, logger *logrus.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) SetBroadcaster(hub Broadcaster) {
	h.hub = hub
}

func (h *Handler) SetEventSink(sink EventSink) {
	h.events = sink
}

func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/meals", h.ListMeals).Methods("GET")
	r.HandleFunc("/cart", h.GetCart).Methods("GET")
	r.HandleFunc("/cart/items/{mealID}", h.SetCartItem).Methods("PUT")
	r.HandleFunc("/cart/items/{mealID}", h.RemoveCartItem).Methods("DELETE")
	r.HandleFunc("/checkout", h.Checkout).Methods("POST")
	r.HandleFunc("/orders", h.ListOrders).Methods("GET")
	r.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET")
	r.HandleFunc("/orders/{id}/pay", h.PayOrder).Methods("POST")
	r.HandleFunc("/orders/{id}/status", h.UpdateOrderStatus).Methods("PATCH")
	r.HandleFunc("/orders/{id}/items/{itemID}/status", h.UpdateOrderItemStatus).Methods("PATCH")
	r.HandleFunc("/pay/confirm", h.ConfirmPayment).Methods("GET")
}

// userID keys carts by bearer token; without one the caller shares the
// "guest" cart, which is fine for local development.
func userID(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
		return token
	}
	return "guest"
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "devserver",
	})
}

func (h *Handler) ListMeals(w http.ResponseWriter, r *http.Request) {
	meals, err := h.store.Meals(r.URL.Query().Get("kitchen_id"))
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to list meals")
		return
	}
	h.respondWithJSON(w, http.StatusOK, models.MealsResponse{Success: true, Meals: meals, Count: len(meals)})
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.store.Cart(userID(r))
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to fetch cart")
		return
	}
	h.respondWithJSON(w, http.StatusOK, models.CartResponse{Success: true, Cart: cart})
}

func (h *Handler) SetCartItem(w http.ResponseWriter, r *http.Request) {
	mealID := mux.Vars(r)["mealID"]

	var body struct {
		Quantity *int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Quantity == nil {
		h.respondWithError(w, http.StatusBadRequest, "Request body must include a quantity")
		return
	}
	if *body.Quantity < 0 {
		h.respondWithError(w, http.StatusUnprocessableEntity, "quantity must be non-negative")
		return
	}

	cart, err := h.store.SetCartItem(userID(r), mealID, *body.Quantity)
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to set cart item")
		return
	}
	h.logger.WithFields(logrus.Fields{
		"meal_id":  mealID,
		"quantity": *body.Quantity,
	}).Info("Cart item set")
	h.respondWithJSON(w, http.StatusOK, models.CartResponse{Success: true, Cart: cart})
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	mealID := mux.Vars(r)["mealID"]

	cart, err := h.store.SetCartItem(userID(r), mealID, 0)
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to remove cart item")
		return
	}
	h.logger.WithField("meal_id", mealID).Info("Cart item removed")
	h.respondWithJSON(w, http.StatusOK, models.CartResponse{Success: true, Cart: cart})
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	order, err := h.store.Checkout(userID(r))
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to check out")
		return
	}
	h.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"total":       order.Total.String(),
		"items_count": len(order.Items),
	}).Info("Order created at checkout")
	h.respondWithJSON(w, http.StatusCreated, models.OrderResponse{Success: true, Order: order})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := models.OrderFilter{
		KitchenID: r.URL.Query().Get("kitchen_id"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}
	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))

	orders, err := h.store.Orders(filter)
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to list orders")
		return
	}
	h.respondWithJSON(w, http.StatusOK, models.OrdersResponse{Success: true, Orders: orders, Count: len(orders)})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.store.Order(mux.Vars(r)["id"])
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to fetch order")
		return
	}
	h.respondWithJSON(w, http.StatusOK, models.OrderResponse{Success: true, Order: order})
}

// PayOrder hands back a redirect URL. In development the "payment page" is
// this server's own confirm endpoint; opening it completes the payment.
func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var body struct {
		Method string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Method != "online" {
		h.respondWithError(w, http.StatusBadRequest, "payment method must be \"online\"")
		return
	}

	order, err := h.store.Order(orderID)
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to fetch order")
		return
	}
	if order.Status != models.StatusAwaitingPayment {
		h.respondWithError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("order is %s, not awaiting payment", order.Status))
		return
	}

	redirect := fmt.Sprintf("http://%s/pay/confirm?order_id=%s", r.Host, orderID)
	h.logger.WithField("order_id", orderID).Info("Payment session created")
	h.respondWithJSON(w, http.StatusOK, models.PaymentResponse{Success: true, RedirectURL: redirect})
}

// ConfirmPayment simulates the payment provider's callback and moves the
// order to AWAITING_ACKNOWLEDGEMENT.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		h.respondWithError(w, http.StatusBadRequest, "order_id is required")
		return
	}
	order, err := h.store.UpdateOrderStatus(orderID, models.StatusAwaitingAcknowledgement)
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to confirm payment")
		return
	}
	h.announce(order)
	h.respondWithJSON(w, http.StatusOK, models.OrderResponse{Success: true, Message: "payment confirmed", Order: order})
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	next, ok := h.decodeStatus(w, r)
	if !ok {
		return
	}

	order, err := h.store.UpdateOrderStatus(orderID, next)
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to update order status")
		return
	}
	h.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"status":   next.String(),
	}).Info("Order status updated")
	h.announce(order)
	h.respondWithJSON(w, http.StatusOK, models.OrderResponse{Success: true, Order: order})
}

func (h *Handler) UpdateOrderItemStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	next, ok := h.decodeStatus(w, r)
	if !ok {
		return
	}

	order, err := h.store.UpdateOrderItemStatus(vars["id"], vars["itemID"], next)
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to update item status")
		return
	}
	h.logger.WithFields(logrus.Fields{
		"order_id": vars["id"],
		"item_id":  vars["itemID"],
		"status":   next.String(),
	}).Info("Order item status updated")
	h.announce(order)
	h.respondWithJSON(w, http.StatusOK, models.OrderResponse{Success: true, Order: order})
}

func (h *Handler) decodeStatus(w http.ResponseWriter, r *http.Request) (models.Status, bool) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return "", false
	}
	status, err := models.ParseStatus(body.Status)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return status, true
}

// announce fans a confirmed status change out to the live feed and, when
// configured, the Kafka analytics topic.
func (h *Handler) announce(order *models.Order) {
	if h.hub != nil {
		h.hub.BroadcastStatus(order.ID, order.Status)
	}
	if h.events != nil {
		err := h.events.PublishStatusChanged(OrderStatusChangedEvent{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Status:     order.Status,
			OccurredAt: order.UpdatedAt,
		})
		if err != nil {
			h.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to publish status event")
		}
	}
}

func (h *Handler) respondWithStoreError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.respondWithError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrUnknownMeal):
		h.respondWithError(w, http.StatusUnprocessableEntity, "unknown meal")
	case errors.Is(err, ErrEmptyCart):
		h.respondWithError(w, http.StatusUnprocessableEntity, "cart is empty")
	case errors.Is(err, ErrInvalidTransition):
		h.respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.WithError(err).Error(logMsg)
		h.respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"message": message,
	})
}
