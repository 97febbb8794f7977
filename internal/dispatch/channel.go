package dispatch

import (
	"context"

	"wellness-hub-go/internal/models"
)

// Target is the recipient side of one delivery: the owning user plus any
// push subscriptions they have registered.
type Target struct {
	User          models.User
	Subscriptions []models.PushSubscription
}

// Payload is the rendered notification content, shared by all channels.
type Payload struct {
	ReminderID string `json:"reminder_id"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// NotificationChannel is one best-effort delivery transport. Send is
// attempted once per reminder per run; failures are reported, never
// retried within the run.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, target Target, payload Payload) error
}

// Registry holds the channels configured at startup. Zero channels is
// valid: the dispatcher still does its bookkeeping and logs "none".
type Registry struct {
	channels []NotificationChannel
}

func (r *Registry) Register(c NotificationChannel) {
	r.channels = append(r.channels, c)
}

func (r *Registry) Channels() []NotificationChannel {
	return r.channels
}
