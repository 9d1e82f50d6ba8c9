package models

import "testing"

func TestStatusForwardTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusAwaitingPayment, StatusAwaitingAcknowledgement, true},
		{StatusAwaitingAcknowledgement, StatusPreparing, true},
		{StatusPreparing, StatusInTransit, true},
		{StatusInTransit, StatusDelivered, true},
		{StatusPreparing, StatusDelivered, true}, // customer marks received before transit

		{StatusAwaitingPayment, StatusPreparing, false},
		{StatusAwaitingAcknowledgement, StatusDelivered, false},
		{StatusInTransit, StatusPreparing, false},
		{StatusDelivered, StatusInTransit, false},
		{StatusAwaitingAcknowledgement, StatusAwaitingPayment, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusCancelReachableFromNonTerminal(t *testing.T) {
	for _, st := range []Status{
		StatusAwaitingPayment,
		StatusAwaitingAcknowledgement,
		StatusPreparing,
		StatusInTransit,
	} {
		if !st.CanTransitionTo(StatusCancelled) {
			t.Errorf("expected cancel to be reachable from %s", st)
		}
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	all := []Status{
		StatusAwaitingPayment, StatusAwaitingAcknowledgement, StatusPreparing,
		StatusInTransit, StatusDelivered, StatusCancelled,
	}
	for _, from := range []Status{StatusDelivered, StatusCancelled} {
		for _, to := range all {
			if from.CanTransitionTo(to) {
				t.Errorf("terminal %s must not transition to %s", from, to)
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	if st, err := ParseStatus("IN_TRANSIT"); err != nil || st != StatusInTransit {
		t.Errorf("ParseStatus(IN_TRANSIT) = %v, %v", st, err)
	}
	if _, err := ParseStatus("SHIPPED"); err == nil {
		t.Error("expected error for unknown status")
	}
	if _, err := ParseStatus(""); err == nil {
		t.Error("expected error for empty status")
	}
}
