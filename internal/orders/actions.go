package orders

import "github.com/kitchenly/client-go/pkg/models"

// Role is the viewpoint an order is rendered from. The same order exposes
// different actions to the customer, the kitchen, and the rider.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleKitchen  Role = "kitchen"
	RoleRider    Role = "rider"
	RoleAdmin    Role = "admin"
)

// Action is something the current user may do to an order right now.
type Action string

const (
	ActionPay           Action = "pay"
	ActionMarkReceived  Action = "mark_received"
	ActionRepeatOrder   Action = "repeat_order"
	ActionPrepare       Action = "prepare"
	ActionSendInTransit Action = "send_in_transit"
	ActionMarkDelivered Action = "mark_delivered"
	ActionCancel        Action = "cancel"
)

// ActionsFor derives the actions a role may take on an order in the given
// status. Terminal statuses expose no mutating actions; repeat is offered on
// DELIVERED because it only writes to the cart, never to the order.
func ActionsFor(role Role, status models.Status) []Action {
	switch role {
	case RoleCustomer:
		switch status {
		case models.StatusAwaitingPayment:
			return []Action{ActionPay}
		case models.StatusPreparing, models.StatusInTransit:
			return []Action{ActionMarkReceived}
		case models.StatusDelivered:
			return []Action{ActionRepeatOrder}
		}
	case RoleKitchen:
		if status == models.StatusAwaitingAcknowledgement {
			return []Action{ActionPrepare, ActionSendInTransit, ActionCancel}
		}
	case RoleRider:
		if status == models.StatusInTransit {
			return []Action{ActionMarkDelivered}
		}
	case RoleAdmin:
		if !status.Terminal() {
			return []Action{ActionCancel}
		}
	}
	return nil
}

// target maps kitchen/rider actions to the status they request.
func (a Action) target() (models.Status, bool) {
	switch a {
	case ActionPrepare:
		return models.StatusPreparing, true
	case ActionSendInTransit:
		return models.StatusInTransit, true
	case ActionMarkDelivered, ActionMarkReceived:
		return models.StatusDelivered, true
	case ActionCancel:
		return models.StatusCancelled, true
	}
	return "", false
}
