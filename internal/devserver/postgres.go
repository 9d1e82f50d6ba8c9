package devserver

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kitchenly/client-go/pkg/models"
	"github.com/kitchenly/client-go/pkg/money"
)

// postgresStore keeps devserver state in Postgres so carts and orders
// survive a restart during longer manual test sessions.
type postgresStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewPostgresStore(dsn string, logger *logrus.Logger) (Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &postgresStore{db: db, logger: logger}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}
	logger.Info("Postgres store ready")
	return s, nil
}

func (s *postgresStore) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS meals (
			id VARCHAR(64) PRIMARY KEY,
			kitchen_id VARCHAR(64) NOT NULL,
			kitchen_name VARCHAR(255) NOT NULL DEFAULT '',
			name VARCHAR(255) NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL,
			cover_image_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			user_id VARCHAR(128) NOT NULL,
			meal_id VARCHAR(64) NOT NULL REFERENCES meals(id),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			PRIMARY KEY (user_id, meal_id)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(64) PRIMARY KEY,
			customer_id VARCHAR(128) NOT NULL,
			kitchen_id VARCHAR(64) NOT NULL DEFAULT '',
			status VARCHAR(32) NOT NULL,
			total NUMERIC(12,2) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id VARCHAR(64) PRIMARY KEY,
			order_id VARCHAR(64) NOT NULL REFERENCES orders(id),
			meal_id VARCHAR(64) NOT NULL,
			kitchen_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL,
			status VARCHAR(32) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SeedMeals(meals []models.Meal, kitchens []models.Kitchen) error {
	names := map[string]string{}
	for _, k := range kitchens {
		names[k.ID] = k.Name
	}
	for _, m := range meals {
		_, err := s.db.Exec(
			`INSERT INTO meals (id, kitchen_id, kitchen_name, name, unit_price, cover_image_url)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET name = $4, unit_price = $5`,
			m.ID, m.KitchenID, names[m.KitchenID], m.Name, m.UnitPrice.String(), m.CoverImageURL,
		)
		if err != nil {
			return fmt.Errorf("seed meal %s: %w", m.ID, err)
		}
	}
	return nil
}

func (s *postgresStore) Meals(kitchenID string) ([]models.Meal, error) {
	query := `SELECT id, kitchen_id, name, unit_price, cover_image_url FROM meals`
	args := []any{}
	if kitchenID != "" {
		query += ` WHERE kitchen_id = $1`
		args = append(args, kitchenID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query meals: %w", err)
	}
	defer rows.Close()

	var meals []models.Meal
	for rows.Next() {
		var m models.Meal
		var price string
		if err := rows.Scan(&m.ID, &m.KitchenID, &m.Name, &price, &m.CoverImageURL); err != nil {
			return nil, fmt.Errorf("scan meal: %w", err)
		}
		m.UnitPrice = money.AmountFromString(price)
		meals = append(meals, m)
	}
	return meals, rows.Err()
}

func (s *postgresStore) Cart(userID string) (*models.Cart, error) {
	rows, err := s.db.Query(
		`SELECT c.meal_id, c.quantity, m.kitchen_id, m.kitchen_name, m.name, m.unit_price, m.cover_image_url
		 FROM cart_items c JOIN meals m ON m.id = c.meal_id
		 WHERE c.user_id = $1
		 ORDER BY m.kitchen_id, c.meal_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	cart := &models.Cart{}
	var current *models.KitchenCart
	for rows.Next() {
		var line models.CartLine
		var kitchenName, price string
		var m models.Meal
		if err := rows.Scan(&line.MealID, &line.Quantity, &m.KitchenID, &kitchenName, &m.Name, &price, &m.CoverImageURL); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		m.ID = line.MealID
		m.UnitPrice = money.AmountFromString(price)
		line.Meal = m

		if current == nil || current.KitchenID != m.KitchenID {
			cart.Kitchens = append(cart.Kitchens, models.KitchenCart{
				KitchenID: m.KitchenID,
				Kitchen:   models.Kitchen{ID: m.KitchenID, Name: kitchenName},
			})
			current = &cart.Kitchens[len(cart.Kitchens)-1]
		}
		current.Items = append(current.Items, line)
	}
	return cart, rows.Err()
}

func (s *postgresStore) SetCartItem(userID, mealID string, quantity int) (*models.Cart, error) {
	// Removal is idempotent: taking out a meal that is not in the catalog
	// or the cart is a no-op, not an error.
	if quantity <= 0 {
		if _, err := s.db.Exec(`DELETE FROM cart_items WHERE user_id = $1 AND meal_id = $2`, userID, mealID); err != nil {
			return nil, fmt.Errorf("remove cart item: %w", err)
		}
		return s.Cart(userID)
	}

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM meals WHERE id = $1)`, mealID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check meal: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("meal %s: %w", mealID, ErrUnknownMeal)
	}
	_, err := s.db.Exec(
		`INSERT INTO cart_items (user_id, meal_id, quantity) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, meal_id) DO UPDATE SET quantity = $3`,
		userID, mealID, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("set cart item: %w", err)
	}
	return s.Cart(userID)
}

func (s *postgresStore) Checkout(userID string) (*models.Order, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin checkout: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT c.meal_id, c.quantity, m.kitchen_id, m.name, m.unit_price
		 FROM cart_items c JOIN meals m ON m.id = c.meal_id
		 WHERE c.user_id = $1 ORDER BY c.meal_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cart for checkout: %w", err)
	}

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
	for rows.Next() {
		var item models.OrderItem
		var price string
		if err := rows.Scan(&item.MealID, &item.Quantity, &item.KitchenID, &item.Name, &price); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan checkout line: %w", err)
		}
		item.ID = uuid.New().String()
		item.UnitPrice = money.AmountFromString(price)
		item.Status = models.StatusAwaitingPayment
		order.Items = append(order.Items, item)
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		kitchenIDs[item.KitchenID] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read checkout lines: %w", err)
	}
	if len(order.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if len(kitchenIDs) == 1 {
		order.KitchenID = order.Items[0].KitchenID
	}
	order.Total = money.NewAmount(total)

	_, err = tx.Exec(
		`INSERT INTO orders (id, customer_id, kitchen_id, status, total, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.CustomerID, order.KitchenID, string(order.Status), order.Total.String(), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	for _, item := range order.Items {
		_, err = tx.Exec(
			`INSERT INTO order_items (id, order_id, meal_id, kitchen_id, name, quantity, unit_price, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, order.ID, item.MealID, item.KitchenID, item.Name, item.Quantity, item.UnitPrice.String(), string(item.Status),
		)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkout: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"total":    order.Total.String(),
	}).Info("Order created")
	return order, nil
}

func (s *postgresStore) Orders(filter models.OrderFilter) ([]models.Order, error) {
	query := `SELECT id FROM orders`
	args := []any{}
	where := ""
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	if filter.KitchenID != "" {
		args = append(args, filter.KitchenID)
		clause := fmt.Sprintf("id IN (SELECT order_id FROM order_items WHERE kitchen_id = $%d)", len(args))
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}
	query += where + ` ORDER BY created_at DESC`
	if filter.PerPage > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		args = append(args, filter.PerPage)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, (page-1)*filter.PerPage)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.Order(id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func (s *postgresStore) Order(orderID string) (*models.Order, error) {
	var o models.Order
	var status, total string
	err := s.db.QueryRow(
		`SELECT id, customer_id, kitchen_id, status, total, created_at, updated_at FROM orders WHERE id = $1`,
		orderID,
	).Scan(&o.ID, &o.CustomerID, &o.KitchenID, &status, &total, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	o.Status = models.Status(status)
	o.Total = money.AmountFromString(total)

	rows, err := s.db.Query(
		`SELECT id, meal_id, kitchen_id, name, quantity, unit_price, status FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		var itemStatus, price string
		if err := rows.Scan(&item.ID, &item.MealID, &item.KitchenID, &item.Name, &item.Quantity, &price, &itemStatus); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.UnitPrice = money.AmountFromString(price)
		item.Status = models.Status(itemStatus)
		o.Items = append(o.Items, item)
	}
	return &o, rows.Err()
}

func (s *postgresStore) UpdateOrderStatus(orderID string, next models.Status) (*models.Order, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(`SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if !models.Status(current).CanTransitionTo(next) {
		return nil, fmt.Errorf("order %s: %s -> %s: %w", orderID, current, next, ErrInvalidTransition)
	}

	if _, err := tx.Exec(`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`, string(next), time.Now(), orderID); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	// Items that can legally follow the order move with it.
	rows, err := tx.Query(`SELECT id, status FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query items for update: %w", err)
	}
	type pending struct{ id string }
	var toUpdate []pending
	for rows.Next() {
		var id, st string
		if err := rows.Scan(&id, &st); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan item status: %w", err)
		}
		if models.Status(st).CanTransitionTo(next) {
			toUpdate = append(toUpdate, pending{id})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range toUpdate {
		if _, err := tx.Exec(`UPDATE order_items SET status = $1 WHERE id = $2`, string(next), p.id); err != nil {
			return nil, fmt.Errorf("update item status: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return s.Order(orderID)
}

func (s *postgresStore) UpdateOrderItemStatus(orderID, itemID string, next models.Status) (*models.Order, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin item update: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(`SELECT status FROM order_items WHERE id = $1 AND order_id = $2 FOR UPDATE`, itemID, orderID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s item %s: %w", orderID, itemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock order item: %w", err)
	}
	if !models.Status(current).CanTransitionTo(next) {
		return nil, fmt.Errorf("item %s: %s -> %s: %w", itemID, current, next, ErrInvalidTransition)
	}
	if _, err := tx.Exec(`UPDATE order_items SET status = $1 WHERE id = $2`, string(next), itemID); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}

	// Converge the order status when every item agrees.
	var distinct int
	if err := tx.QueryRow(`SELECT COUNT(DISTINCT status) FROM order_items WHERE order_id = $1`, orderID).Scan(&distinct); err != nil {
		return nil, fmt.Errorf("count item statuses: %w", err)
	}
	if distinct == 1 {
		var orderStatus string
		if err := tx.QueryRow(`SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&orderStatus); err != nil {
			return nil, fmt.Errorf("lock order: %w", err)
		}
		if models.Status(orderStatus).CanTransitionTo(next) {
			if _, err := tx.Exec(`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`, string(next), time.Now(), orderID); err != nil {
				return nil, fmt.Errorf("update order: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit item update: %w", err)
	}
	return s.Order(orderID)
}
