package models

import "time"

// Reminder types mirror the tracker's feature areas.
const (
	ReminderHabit    = "habit"
	ReminderSleep    = "sleep"
	ReminderWealth   = "wealth"
	ReminderRecovery = "recovery"
	ReminderCustom   = "custom"
)

type Reminder struct {
	ID         string     `json:"id"`
	UserID     int        `json:"user_id"`
	Type       string     `json:"type" validate:"required,oneof=habit sleep wealth recovery custom"`
	Title      string     `json:"title" validate:"required,max=200"`
	Message    string     `json:"message" validate:"max=2000"`
	TimeOfDay  string     `json:"time_of_day" validate:"required,len=5"` // "HH:MM", 24h
	Recurrence string     `json:"recurrence"`                            // "", once, daily, weekly:MO,WE, monthly, cron-like
	StartDate  string     `json:"start_date"`                            // "YYYY-MM-DD", empty = today
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	Enabled    bool       `json:"enabled"`
	LastSentAt *time.Time `json:"last_sent_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// OneTime reports whether the reminder has no recurrence beyond its first
// firing.
func (r *Reminder) OneTime() bool {
	return r.Recurrence == "" || r.Recurrence == "once"
}
