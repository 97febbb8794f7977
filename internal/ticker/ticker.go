// Package ticker runs the in-app notification loop: a fixed-interval poll
// over all enabled reminders with a local "due right now" check. It is a
// deliberate duplicate of the dispatcher's scheduling, kept independent so
// in-app toasts keep working even if the dispatcher is down, and vice
// versa. Both firing for the same reminder is accepted behavior.
package ticker

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"wellness-hub-go/internal/models"
	"wellness-hub-go/internal/schedule"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var firesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ticker_fires_total",
	Help: "In-app notifications emitted by the polling loop.",
})

// ReminderSource is the slice of the store the ticker reads and flips.
type ReminderSource interface {
	EnabledReminders(ctx context.Context) ([]models.Reminder, error)
	SetReminderEnabled(ctx context.Context, id string, enabled bool) error
}

// Feed receives fired notifications (the in-app toast stream).
type Feed interface {
	Publish(ctx context.Context, n models.Notification) (models.Notification, error)
}

type Ticker struct {
	store    ReminderSource
	feed     Feed
	log      *zap.SugaredLogger
	interval time.Duration
	window   time.Duration

	// inFlight is the single-flight guard: a tick that starts while the
	// previous one is still running is skipped, not queued.
	inFlight atomic.Bool

	// fired remembers which scheduled instants already produced a toast,
	// since the window is wider than the poll interval.
	fired map[string]time.Time

	now func() time.Time
}

func New(store ReminderSource, feed Feed, log *zap.SugaredLogger, interval, window time.Duration) *Ticker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Ticker{
		store:    store,
		feed:     feed,
		log:      log,
		interval: interval,
		window:   window,
		fired:    make(map[string]time.Time),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until the context is cancelled. Each tick runs in its own
// goroutine so a slow poll engages the single-flight guard instead of
// delaying the schedule.
func (t *Ticker) Run(ctx context.Context) {
	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			go t.Tick(ctx)
		}
	}
}

// Tick evaluates every enabled reminder once. A failed list degrades to an
// empty slice; the loop never dies on a bad poll.
func (t *Ticker) Tick(ctx context.Context) {
	if !t.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer t.inFlight.Store(false)

	now := t.now()

	reminders, err := t.store.EnabledReminders(ctx)
	if err != nil {
		t.log.Warnw("reminder poll failed", "error", err)
		reminders = nil
	}

	for _, r := range reminders {
		scheduled, due := t.dueNow(r, now)
		if !due {
			continue
		}
		if prev, seen := t.fired[r.ID]; seen && prev.Equal(scheduled) {
			continue
		}

		n := models.Notification{
			UserID:     r.UserID,
			ReminderID: r.ID,
			Kind:       r.Type,
			Title:      r.Title,
			Message:    r.Message,
			CreatedAt:  now,
		}
		if _, err := t.feed.Publish(ctx, n); err != nil {
			t.log.Warnw("failed to publish in-app notification", "reminder", r.ID, "error", err)
			continue
		}
		firesTotal.Inc()
		t.fired[r.ID] = scheduled

		// One-time reminders must not re-fire on the next tick.
		if r.OneTime() {
			if err := t.store.SetReminderEnabled(ctx, r.ID, false); err != nil {
				t.log.Warnw("failed to disable one-time reminder", "reminder", r.ID, "error", err)
			}
		}
	}

	t.prune(now)
}

// dueNow is the local duplicate of "is it due": within the tolerance
// window around today's time-of-day, on a matching day. One-time reminders
// match their start date only, weekly ones their listed weekdays, and
// everything else matches every day.
func (t *Ticker) dueNow(r models.Reminder, now time.Time) (time.Time, bool) {
	hour, min := schedule.ParseTimeOfDay(r.TimeOfDay)
	scheduled := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, time.UTC)

	diff := now.Sub(scheduled)
	if diff < 0 {
		diff = -diff
	}
	if diff > t.window {
		return time.Time{}, false
	}
	if !dayMatches(r, scheduled) {
		return time.Time{}, false
	}
	return scheduled, true
}

func dayMatches(r models.Reminder, scheduled time.Time) bool {
	rec := strings.ToLower(strings.TrimSpace(r.Recurrence))
	switch {
	case r.OneTime():
		return r.StartDate == "" || r.StartDate == scheduled.Format("2006-01-02")
	case strings.HasPrefix(rec, "weekly"):
		list := ""
		if i := strings.IndexByte(rec, ':'); i >= 0 {
			list = rec[i+1:]
		}
		code := weekdayCode(scheduled.Weekday())
		for _, c := range strings.Split(list, ",") {
			if strings.TrimSpace(c) == code {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func weekdayCode(d time.Weekday) string {
	return [...]string{"su", "mo", "tu", "we", "th", "fr", "sa"}[d]
}

// prune drops fired-markers older than a day so the map stays small.
func (t *Ticker) prune(now time.Time) {
	for id, at := range t.fired {
		if now.Sub(at) > 24*time.Hour {
			delete(t.fired, id)
		}
	}
}
