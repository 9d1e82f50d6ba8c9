package models

import "time"

const StatusEventType = "order_status_changed"

// StatusEvent is pushed over the live feed whenever an order's status
// changes server-side.
type StatusEvent struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}
