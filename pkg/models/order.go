package models

import (
	"time"

	"github.com/kitchenly/client-go/pkg/money"
)

type Order struct {
	ID         string       `json:"id"`
	CustomerID string       `json:"customer_id"`
	KitchenID  string       `json:"kitchen_id"`
	Status     Status       `json:"status"`
	Items      []OrderItem  `json:"items"`
	Total      money.Amount `json:"total"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// OrderItem is a snapshot taken at checkout: UnitPrice is the price the
// customer paid, decoupled from the live meal price. Items carry their own
// status so kitchens can progress them independently when an order spans
// several kitchens.
type OrderItem struct {
	ID        string       `json:"id"`
	MealID    string       `json:"meal_id"`
	Name      string       `json:"name"`
	KitchenID string       `json:"kitchen_id"`
	Quantity  int          `json:"quantity"`
	UnitPrice money.Amount `json:"unit_price"`
	Status    Status       `json:"status"`
}

// OrderFilter narrows ListOrders. Zero values mean "no filter"; Page is
// 1-based and PerPage defaults server-side when zero.
type OrderFilter struct {
	Status    Status
	KitchenID string
	Page      int
	PerPage   int
}

type OrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Order   *Order `json:"order,omitempty"`
}

type OrdersResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Orders  []Order `json:"orders"`
	Count   int     `json:"count"`
}

// PaymentResponse carries the redirect URL for the external payment page.
// Receiving one does not mean the order is paid; the client finds that out
// from a later fetch.
type PaymentResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirect_url"`
}
