package models

import "time"

// Delivery log statuses.
const (
	DeliveryOK    = "ok"
	DeliveryError = "error"
)

// DeliveryLog is an append-only audit row, one per reminder per dispatcher
// run.
type DeliveryLog struct {
	ID         string    `json:"id"`
	ReminderID string    `json:"reminder_id"`
	Channel    string    `json:"channel"` // "email", "push", "email+push", "none"
	Status     string    `json:"status"`  // "ok" or "error"
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
