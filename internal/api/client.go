package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kitchenly/client-go/pkg/models"
)

// TokenSource supplies the session's bearer token; an empty string means an
// unauthenticated (guest) request.
type TokenSource func() string

// Client is the typed boundary to the marketplace backend. All monetary
// fields in decoded payloads pass through money.Amount, so mixed string and
// number encodings from the backend are tolerated.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	token      TokenSource
	breaker    *breaker
}

// NewClient builds a client for the given base URL. A timeout of zero falls
// back to 10 seconds.
func NewClient(baseURL string, timeout time.Duration, token TokenSource, logger *logrus.Logger) *Client {
	if token == nil {
		token = func() string { return "" }
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		token:   token,
		breaker: newBreaker(3, 15*time.Second, logger),
	}
}

// FetchCart retrieves the authoritative cart. The caller replaces its local
// state wholesale with the result.
func (c *Client) FetchCart(ctx context.Context) (*models.Cart, error) {
	var out models.CartResponse
	if err := c.do(ctx, http.MethodGet, "/cart", nil, &out); err != nil {
		return nil, fmt.Errorf("fetch cart: %w", err)
	}
	if out.Cart == nil {
		return &models.Cart{}, nil
	}
	return out.Cart, nil
}

// SetCartItem asks the server to set a meal's quantity. Quantity 0 is a
// removal request. The returned cart is the server-confirmed state.
func (c *Client) SetCartItem(ctx context.Context, mealID string, quantity int) (*models.Cart, error) {
	if quantity < 0 {
		quantity = 0
	}
	body := map[string]int{"quantity": quantity}
	var out models.CartResponse
	if err := c.do(ctx, http.MethodPut, "/cart/items/"+url.PathEscape(mealID), body, &out); err != nil {
		return nil, fmt.Errorf("set cart item %s: %w", mealID, err)
	}
	c.logger.WithFields(logrus.Fields{
		"meal_id":  mealID,
		"quantity": quantity,
	}).Info("Cart item set")
	if out.Cart == nil {
		return &models.Cart{}, nil
	}
	return out.Cart, nil
}

func (c *Client) RemoveCartItem(ctx context.Context, mealID string) (*models.Cart, error) {
	var out models.CartResponse
	if err := c.do(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(mealID), nil, &out); err != nil {
		return nil, fmt.Errorf("remove cart item %s: %w", mealID, err)
	}
	c.logger.WithField("meal_id", mealID).Info("Cart item removed")
	if out.Cart == nil {
		return &models.Cart{}, nil
	}
	return out.Cart, nil
}

func (c *Client) ListMeals(ctx context.Context, kitchenID string) ([]models.Meal, error) {
	path := "/meals"
	if kitchenID != "" {
		path += "?kitchen_id=" + url.QueryEscape(kitchenID)
	}
	var out models.MealsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	return out.Meals, nil
}

func (c *Client) Checkout(ctx context.Context) (*models.Order, error) {
	var out models.OrderResponse
	if err := c.do(ctx, http.MethodPost, "/checkout", nil, &out); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	if out.Order == nil {
		return nil, fmt.Errorf("checkout: empty order in response")
	}
	c.logger.WithField("order_id", out.Order.ID).Info("Checkout completed")
	return out.Order, nil
}

func (c *Client) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.KitchenID != "" {
		q.Set("kitchen_id", filter.KitchenID)
	}
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(filter.PerPage))
	}
	path := "/orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out models.OrdersResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out.Orders, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var out models.OrderResponse
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &out); err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if out.Order == nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, ErrNotFound)
	}
	return out.Order, nil
}

// PayOrder requests an online payment session and returns the redirect URL
// to open in the external browser. The order's status is untouched locally;
// only a later fetch reflects the payment.
func (c *Client) PayOrder(ctx context.Context, orderID string) (string, error) {
	body := map[string]string{"method": "online"}
	var out models.PaymentResponse
	if err := c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/pay", body, &out); err != nil {
		return "", fmt.Errorf("pay order %s: %w", orderID, err)
	}
	if out.RedirectURL == "" {
		return "", fmt.Errorf("pay order %s: no redirect URL in response", orderID)
	}
	c.logger.WithField("order_id", orderID).Info("Payment redirect obtained")
	return out.RedirectURL, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, next models.Status) (*models.Order, error) {
	body := map[string]string{"status": string(next)}
	var out models.OrderResponse
	if err := c.do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(orderID)+"/status", body, &out); err != nil {
		return nil, fmt.Errorf("update order %s status: %w", orderID, err)
	}
	if out.Order == nil {
		return nil, fmt.Errorf("update order %s status: empty order in response", orderID)
	}
	c.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"status":   next.String(),
	}).Info("Order status updated")
	return out.Order, nil
}

// UpdateOrderItemStatus progresses a single item, keyed by (order, item) so
// kitchens can advance their own items in a mixed-kitchen order.
func (c *Client) UpdateOrderItemStatus(ctx context.Context, orderID, itemID string, next models.Status) (*models.Order, error) {
	body := map[string]string{"status": string(next)}
	path := "/orders/" + url.PathEscape(orderID) + "/items/" + url.PathEscape(itemID) + "/status"
	var out models.OrderResponse
	if err := c.do(ctx, http.MethodPatch, path, body, &out); err != nil {
		return nil, fmt.Errorf("update order %s item %s status: %w", orderID, itemID, err)
	}
	if out.Order == nil {
		return nil, fmt.Errorf("update order %s item %s status: empty order in response", orderID, itemID)
	}
	return out.Order, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.breaker.allow() {
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
		}).Debug("Breaker open, rejecting request")
		return ErrBackendUnavailable
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.recordFailure()
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		c.breaker.recordFailure()
	} else {
		c.breaker.recordSuccess()
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.decodeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode backend response: %w", err)
		}
	}
	return nil
}

// decodeError pulls the structured {"success":false,"message":...} payload
// out of an error response, falling back to a generic message when the
// server gives nothing usable.
func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}

	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
		if payload.Message != "" {
			apiErr.Message = payload.Message
		} else if payload.Error != "" {
			apiErr.Message = payload.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("request failed with status %d", resp.StatusCode)
	}

	c.logger.WithFields(logrus.Fields{
		"status":  resp.StatusCode,
		"message": apiErr.Message,
	}).Error("Backend returned error response")
	return apiErr
}
