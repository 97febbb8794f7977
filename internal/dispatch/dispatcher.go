// Package dispatch implements the server-side reminder sweep: select due
// rows, attempt best-effort delivery per channel, roll the schedule
// forward, and leave one delivery-log row per reminder per run.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wellness-hub-go/internal/models"
	"wellness-hub-go/internal/schedule"

	"go.uber.org/zap"
)

// Store is the slice of the persistence layer the dispatcher touches.
type Store interface {
	DueReminders(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error)
	GetUser(ctx context.Context, id int) (models.User, error)
	PushSubscriptions(ctx context.Context, userID int) ([]models.PushSubscription, error)
	MarkDispatched(ctx context.Context, id string, next *time.Time, enabled bool, sentAt time.Time) error
	AppendDeliveryLog(ctx context.Context, row models.DeliveryLog) error
}

// Summary is what one sweep did, returned for the plain-text status body.
type Summary struct {
	Due      int
	OK       int
	Errors   int
	Disabled int
}

func (s Summary) String() string {
	return fmt.Sprintf("due=%d ok=%d errors=%d disabled=%d", s.Due, s.OK, s.Errors, s.Disabled)
}

type Dispatcher struct {
	store    Store
	registry *Registry
	log      *zap.SugaredLogger
	batch    int

	// now is swappable for tests.
	now func() time.Time
}

func NewDispatcher(store Store, registry *Registry, log *zap.SugaredLogger, batch int) *Dispatcher {
	if batch <= 0 {
		batch = 200
	}
	return &Dispatcher{
		store:    store,
		registry: registry,
		log:      log,
		batch:    batch,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one sweep. A failure on one reminder never aborts the rest
// of the batch; only a failed due-query fails the run itself.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	runsTotal.Inc()
	now := d.now()

	due, err := d.store.DueReminders(ctx, now, d.batch)
	if err != nil {
		return Summary{}, fmt.Errorf("due query: %w", err)
	}
	batchSize.Observe(float64(len(due)))

	sum := Summary{Due: len(due)}
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		d.processOne(ctx, r, now, &sum)
	}

	d.log.Infow("dispatch sweep finished", "due", sum.Due, "ok", sum.OK,
		"errors", sum.Errors, "disabled", sum.Disabled)
	return sum, nil
}

// processOne delivers one reminder and does its bookkeeping. Exactly one
// delivery-log row comes out of here, whatever happens, and a panic in a
// channel is contained to this reminder.
func (d *Dispatcher) processOne(ctx context.Context, r models.Reminder, now time.Time, sum *Summary) {
	logRow := models.DeliveryLog{
		ReminderID: r.ID,
		Channel:    "none",
		Status:     models.DeliveryOK,
	}
	defer func() {
		if p := recover(); p != nil {
			d.log.Errorw("panic while dispatching reminder", "reminder", r.ID, "panic", p)
			logRow.Status = models.DeliveryError
			logRow.Detail = fmt.Sprintf("panic: %v", p)
		}
		if logRow.Status == models.DeliveryError {
			sum.Errors++
		} else {
			sum.OK++
		}
		if err := d.store.AppendDeliveryLog(ctx, logRow); err != nil {
			d.log.Errorw("failed to append delivery log", "reminder", r.ID, "error", err)
		}
	}()

	payload := Payload{
		ReminderID: r.ID,
		Kind:       r.Type,
		Title:      r.Title,
		Body:       r.Message,
	}
	if payload.Body == "" {
		payload.Body = r.Title
	}

	target, err := d.buildTarget(ctx, r)
	if err != nil {
		logRow.Status = models.DeliveryError
		logRow.Detail = fmt.Sprintf("target: %v", err)
		d.rollForward(ctx, r, now, &logRow, sum)
		return
	}

	var attempted, failed []string
	for _, ch := range d.registry.Channels() {
		attempted = append(attempted, ch.Name())
		if err := ch.Send(ctx, target, payload); err != nil {
			deliveriesTotal.WithLabelValues(ch.Name(), "error").Inc()
			d.log.Warnw("channel delivery failed", "reminder", r.ID, "channel", ch.Name(), "error", err)
			failed = append(failed, fmt.Sprintf("%s: %v", ch.Name(), err))
			continue
		}
		deliveriesTotal.WithLabelValues(ch.Name(), "ok").Inc()
	}

	if len(attempted) > 0 {
		logRow.Channel = strings.Join(attempted, "+")
	}
	if len(failed) > 0 {
		logRow.Status = models.DeliveryError
		logRow.Detail = strings.Join(failed, "; ")
	}

	d.rollForward(ctx, r, now, &logRow, sum)
}

// rollForward recomputes the next occurrence from the last scheduled time
// and persists it. A one-time reminder ends up disabled with no
// next_run_at, never deleted.
func (d *Dispatcher) rollForward(ctx context.Context, r models.Reminder, now time.Time, logRow *models.DeliveryLog, sum *Summary) {
	ref := now
	if r.NextRunAt != nil {
		ref = *r.NextRunAt
	}

	next, ok := schedule.NextRun(r.Recurrence, ref)
	var nextPtr *time.Time
	if ok {
		nextPtr = &next
	} else {
		remindersDisabled.Inc()
		sum.Disabled++
	}

	if err := d.store.MarkDispatched(ctx, r.ID, nextPtr, ok, now); err != nil {
		d.log.Errorw("failed to roll reminder forward", "reminder", r.ID, "error", err)
		logRow.Status = models.DeliveryError
		if logRow.Detail != "" {
			logRow.Detail += "; "
		}
		logRow.Detail += fmt.Sprintf("bookkeeping: %v", err)
	}
}

func (d *Dispatcher) buildTarget(ctx context.Context, r models.Reminder) (Target, error) {
	user, err := d.store.GetUser(ctx, r.UserID)
	if err != nil {
		return Target{}, fmt.Errorf("load user %d: %w", r.UserID, err)
	}
	subs, err := d.store.PushSubscriptions(ctx, r.UserID)
	if err != nil {
		// Email can still go out; push just sees no subscriptions.
		d.log.Warnw("failed to load push subscriptions", "user", r.UserID, "error", err)
		subs = nil
	}
	return Target{User: user, Subscriptions: subs}, nil
}
