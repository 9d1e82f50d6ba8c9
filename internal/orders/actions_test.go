package orders

import (
	"testing"

	"github.com/kitchenly/client-go/pkg/models"
)

func hasAction(actions []Action, want Action) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}

func TestCustomerActionsByStatus(t *testing.T) {
	tests := []struct {
		status models.Status
		want   []Action
	}{
		{models.StatusAwaitingPayment, []Action{ActionPay}},
		{models.StatusAwaitingAcknowledgement, nil},
		{models.StatusPreparing, []Action{ActionMarkReceived}},
		{models.StatusInTransit, []Action{ActionMarkReceived}},
		{models.StatusDelivered, []Action{ActionRepeatOrder}},
		{models.StatusCancelled, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got := ActionsFor(RoleCustomer, tt.status)
			if len(got) != len(tt.want) {
				t.Fatalf("ActionsFor = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("ActionsFor = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestKitchenActionsOnlyDuringAcknowledgement(t *testing.T) {
	got := ActionsFor(RoleKitchen, models.StatusAwaitingAcknowledgement)
	for _, want := range []Action{ActionPrepare, ActionSendInTransit, ActionCancel} {
		if !hasAction(got, want) {
			t.Errorf("missing kitchen action %s in %v", want, got)
		}
	}

	for _, st := range []models.Status{
		models.StatusAwaitingPayment, models.StatusPreparing,
		models.StatusInTransit, models.StatusDelivered, models.StatusCancelled,
	} {
		if actions := ActionsFor(RoleKitchen, st); len(actions) != 0 {
			t.Errorf("kitchen actions in %s = %v, want none", st, actions)
		}
	}
}

func TestRiderMarksDeliveredOnlyInTransit(t *testing.T) {
	if got := ActionsFor(RoleRider, models.StatusInTransit); !hasAction(got, ActionMarkDelivered) {
		t.Errorf("rider actions = %v, want mark_delivered", got)
	}
	if got := ActionsFor(RoleRider, models.StatusPreparing); len(got) != 0 {
		t.Errorf("rider actions in PREPARING = %v, want none", got)
	}
}

func TestTerminalStatusesExposeNoMutatingActions(t *testing.T) {
	mutating := map[Action]bool{
		ActionPay: true, ActionMarkReceived: true, ActionPrepare: true,
		ActionSendInTransit: true, ActionMarkDelivered: true, ActionCancel: true,
	}
	roles := []Role{RoleCustomer, RoleKitchen, RoleRider, RoleAdmin}
	for _, role := range roles {
		for _, st := range []models.Status{models.StatusDelivered, models.StatusCancelled} {
			for _, a := range ActionsFor(role, st) {
				if mutating[a] {
					t.Errorf("%s sees mutating action %s on terminal %s", role, a, st)
				}
			}
		}
	}
}

func TestAdminCanCancelAnyNonTerminalOrder(t *testing.T) {
	for _, st := range []models.Status{
		models.StatusAwaitingPayment, models.StatusAwaitingAcknowledgement,
		models.StatusPreparing, models.StatusInTransit,
	} {
		if got := ActionsFor(RoleAdmin, st); !hasAction(got, ActionCancel) {
			t.Errorf("admin actions in %s = %v, want cancel", st, got)
		}
	}
}

func TestActionTargets(t *testing.T) {
	tests := []struct {
		action Action
		want   models.Status
	}{
		{ActionPrepare, models.StatusPreparing},
		{ActionSendInTransit, models.StatusInTransit},
		{ActionMarkDelivered, models.StatusDelivered},
		{ActionMarkReceived, models.StatusDelivered},
		{ActionCancel, models.StatusCancelled},
	}
	for _, tt := range tests {
		got, ok := tt.action.target()
		if !ok || got != tt.want {
			t.Errorf("%s target = %v (%v), want %s", tt.action, got, ok, tt.want)
		}
	}
	if _, ok := ActionPay.target(); ok {
		t.Error("pay must not map to a status transition")
	}
	if _, ok := ActionRepeatOrder.target(); ok {
		t.Error("repeat must not map to a status transition")
	}
}
