package models

import "github.com/kitchenly/client-go/pkg/money"

type Kitchen struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Meal is immutable once fetched; price changes arrive only through a fresh
// catalog fetch.
type Meal struct {
	ID            string       `json:"id"`
	KitchenID     string       `json:"kitchen_id"`
	Name          string       `json:"name"`
	UnitPrice     money.Amount `json:"unit_price"`
	CoverImageURL string       `json:"cover_image_url,omitempty"`
}

type CartLine struct {
	MealID   string `json:"meal_id"`
	Meal     Meal   `json:"meal"`
	Quantity int    `json:"quantity"`
}

// KitchenCart groups one kitchen's lines. The server never returns a kitchen
// with zero items; an emptied kitchen is simply absent from the payload.
type KitchenCart struct {
	KitchenID string     `json:"kitchen_id"`
	Kitchen   Kitchen    `json:"kitchen"`
	Items     []CartLine `json:"items"`
}

type Cart struct {
	Kitchens []KitchenCart `json:"kitchens"`
}

type CartResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Cart    *Cart  `json:"cart,omitempty"`
}

type MealsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Meals   []Meal `json:"meals"`
	Count   int    `json:"count"`
}
