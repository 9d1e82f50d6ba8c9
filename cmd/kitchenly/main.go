// Command kitchenly is a terminal client for the Kitchenly marketplace. It
// drives the same cart, order, and live-feed packages a UI embeds, which
// makes it a handy smoke test against the devserver.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/kitchenly/client-go/internal/api"
	"github.com/kitchenly/client-go/internal/cart"
	"github.com/kitchenly/client-go/internal/config"
	"github.com/kitchenly/client-go/internal/live"
	"github.com/kitchenly/client-go/internal/orders"
	"github.com/kitchenly/client-go/internal/session"
	"github.com/kitchenly/client-go/pkg/models"
	"github.com/kitchenly/client-go/pkg/money"
)

const usage = `usage: kitchenly <command> [args]

commands:
  meals                      list the meal catalog
  cart                       show the cart
  add <meal-id> <quantity>   set a meal's quantity in the cart
  rm <meal-id>               remove a meal from the cart
  checkout                   create an order from the cart
  orders                     list orders
  order <order-id>           show one order with available actions
  pay <order-id>             start payment, prints the redirect URL
  received <order-id>        mark an order as received
  cancel <order-id>          cancel an order
  repeat <order-id>          put a delivered order's items back in the cart
  watch <order-id>           follow live status updates for an order
  login <token>              store an access token
  logout                     drop the token, back to guest
`

type app struct {
	cfg     config.Config
	logger  *logrus.Logger
	session *session.Store
	client  *api.Client
	cart    *cart.Manager
	tracker *orders.Tracker
}

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	sess, err := session.Open(cfg.SessionPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open session")
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, sess.Token, logger)
	cartMgr := cart.NewManager(client, logger)
	tracker := orders.NewTracker(client, cartMgr, logger)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		session: sess,
		client:  client,
		cart:    cartMgr,
		tracker: tracker,
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()
	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, api.UserMessage(err))
		logger.WithError(err).Debug("Command failed")
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "meals":
		return a.listMeals(ctx)
	case "cart":
		return a.showCart(ctx)
	case "add":
		if len(args) != 2 {
			return fmt.Errorf("usage: kitchenly add <meal-id> <quantity>")
		}
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("quantity must be a number: %q", args[1])
		}
		return a.setItem(ctx, args[0], qty)
	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: kitchenly rm <meal-id>")
		}
		return a.setItem(ctx, args[0], 0)
	case "checkout":
		return a.checkout(ctx)
	case "orders":
		return a.listOrders(ctx)
	case "order":
		if len(args) != 1 {
			return fmt.Errorf("usage: kitchenly order <order-id>")
		}
		return a.showOrder(ctx, args[0])
	case "pay":
		if len(args) != 1 {
			return fmt.Errorf("usage: kitchenly pay <order-id>")
		}
		return a.pay(ctx, args[0])
	case "received":
		if len(args) != 1 {
			return fmt.Errorf("usage: kitchenly received <order-id>")
		}
		return a.tracker.MarkReceived(ctx, args[0])
	case "cancel":
		if len(args) != 1 {
			return fmt.Errorf("usage: kitchenly cancel <order-id>")
		}
		return a.tracker.Cancel(ctx, args[0])
	case "repeat":
		if len(args) != 1 {
			return fmt.Errorf("usage: kitchenly repeat <order-id>")
		}
		if err := a.tracker.Repeat(ctx, args[0]); err != nil {
			return err
		}
		return a.showCart(ctx)
	case "watch":
		if len(args) != 1 {
			return fmt.Errorf("usage: kitchenly watch <order-id>")
		}
		return a.watch(ctx, args[0])
	case "login":
		if len(args) != 1 {
			return fmt.Errorf("usage: kitchenly login <token>")
		}
		return a.session.SetToken(args[0])
	case "logout":
		a.cart.Reset()
		return a.session.Clear()
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) listMeals(ctx context.Context) error {
	meals, err := a.client.ListMeals(ctx, "")
	if err != nil {
		return err
	}
	for _, m := range meals {
		fmt.Printf("%-16s %-24s %12s  (kitchen %s)\n", m.ID, m.Name, money.Format(m.UnitPrice.Decimal), m.KitchenID)
	}
	return nil
}

func (a *app) showCart(ctx context.Context) error {
	if err := a.cart.Refresh(ctx); err != nil {
		return err
	}
	store := a.cart.Store()
	for _, kitchenID := range store.Kitchens() {
		fmt.Printf("kitchen %s\n", kitchenID)
		for _, line := range store.ItemsForKitchen(kitchenID) {
			fmt.Printf("  %-16s %-24s x%d %12s\n",
				line.Meal.ID, line.Meal.Name, line.Quantity,
				money.Format(line.Meal.UnitPrice.Decimal))
		}
	}
	fmt.Printf("%d items, total %s\n", store.ItemCount(), money.Format(store.Total()))
	return nil
}

func (a *app) setItem(ctx context.Context, mealID string, quantity int) error {
	if err := a.cart.Refresh(ctx); err != nil {
		return err
	}
	if err := a.cart.SetItem(ctx, mealID, quantity); err != nil {
		return err
	}
	return a.showCart(ctx)
}

func (a *app) checkout(ctx context.Context) error {
	order, err := a.client.Checkout(ctx)
	if err != nil {
		return err
	}
	a.cart.Reset()
	fmt.Printf("order %s created, total %s\n", order.ID, money.Format(order.Total.Decimal))
	fmt.Printf("run: kitchenly pay %s\n", order.ID)
	return nil
}

func (a *app) listOrders(ctx context.Context) error {
	list, err := a.tracker.List(ctx, models.OrderFilter{})
	if err != nil {
		return err
	}
	for _, o := range list {
		fmt.Printf("%-38s %-26s %12s  %s\n",
			o.ID, o.Status, money.Format(o.Total.Decimal), o.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func (a *app) showOrder(ctx context.Context, orderID string) error {
	order, err := a.tracker.Get(ctx, orderID)
	if err != nil {
		return err
	}
	fmt.Printf("order %s  %s  total %s\n", order.ID, order.Status, money.Format(order.Total.Decimal))
	for _, item := range order.Items {
		fmt.Printf("  %-24s x%d %12s  %s\n", item.Name, item.Quantity, money.Format(item.UnitPrice.Decimal), item.Status)
	}
	actions := orders.ActionsFor(orders.RoleCustomer, order.Status)
	if len(actions) > 0 {
		fmt.Print("actions:")
		for _, action := range actions {
			fmt.Printf(" %s", action)
		}
		fmt.Println()
	}
	return nil
}

func (a *app) pay(ctx context.Context, orderID string) error {
	redirect, err := a.tracker.Pay(ctx, orderID)
	if err != nil {
		return err
	}
	fmt.Printf("open to complete payment: %s\n", redirect)
	return nil
}

// watch tails the live feed and prints updates for one order until
// interrupted or the order reaches a terminal status.
func (a *app) watch(ctx context.Context, orderID string) error {
	if _, err := a.tracker.Get(ctx, orderID); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan models.Status, 8)
	feed := live.NewFeed(a.cfg.LiveFeedURL, watchHandler{
		tracker: a.tracker,
		orderID: orderID,
		updates: updates,
	}, a.logger)
	go feed.Run(ctx)

	fmt.Printf("watching order %s (ctrl-c to stop)\n", orderID)
	for status := range updates {
		fmt.Printf("order %s is now %s\n", orderID, status)
		if status.Terminal() {
			return nil
		}
	}
	return nil
}

type watchHandler struct {
	tracker *orders.Tracker
	orderID string
	updates chan models.Status
}

func (h watchHandler) ApplyStatus(orderID string, status models.Status) {
	h.tracker.ApplyStatus(orderID, status)
	if orderID == h.orderID {
		h.updates <- status
	}
}
