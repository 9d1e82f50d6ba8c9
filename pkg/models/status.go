package models

import "fmt"

// Status is an order's lifecycle state. Orders move forward along
//
//	AWAITING_PAYMENT -> AWAITING_ACKNOWLEDGEMENT -> PREPARING -> IN_TRANSIT -> DELIVERED
//
// and may be cancelled from any non-terminal state. DELIVERED and CANCELLED
// are terminal.
type Status string

const (
	StatusAwaitingPayment         Status = "AWAITING_PAYMENT"
	StatusAwaitingAcknowledgement Status = "AWAITING_ACKNOWLEDGEMENT"
	StatusPreparing               Status = "PREPARING"
	StatusInTransit               Status = "IN_TRANSIT"
	StatusDelivered               Status = "DELIVERED"
	StatusCancelled               Status = "CANCELLED"
)

var statusSuccessors = map[Status]Status{
	StatusAwaitingPayment:         StatusAwaitingAcknowledgement,
	StatusAwaitingAcknowledgement: StatusPreparing,
	StatusPreparing:               StatusInTransit,
	StatusInTransit:               StatusDelivered,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusAwaitingPayment, StatusAwaitingAcknowledgement, StatusPreparing,
		StatusInTransit, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether next is a legal move from s: one step
// forward along the lifecycle, or CANCELLED while s is not terminal.
// Customers marking a PREPARING order received skip IN_TRANSIT, so DELIVERED
// is also reachable from PREPARING.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	if statusSuccessors[s] == next {
		return true
	}
	return s == StatusPreparing && next == StatusDelivered
}

func (s Status) String() string {
	return string(s)
}
