package models

import "time"

// Notification is an ephemeral in-app feed entry, shown as a toast in the
// browser. Stored in Redis with a TTL, never in Postgres.
type Notification struct {
	ID         int       `json:"id"`
	UserID     int       `json:"user_id"`
	ReminderID string    `json:"reminder_id"`
	Kind       string    `json:"kind"` // reminder type: habit, sleep, ...
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
