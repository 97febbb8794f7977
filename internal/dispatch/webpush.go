package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

// SubscriptionPruner removes a push subscription the provider reported as
// permanently gone.
type SubscriptionPruner interface {
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// WebPushChannel delivers over the Web Push protocol with VAPID auth.
// Endpoints answering 404/410 are deleted mid-run so they are never tried
// again.
type WebPushChannel struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	Pruner          SubscriptionPruner
	Log             *zap.SugaredLogger
}

func (c *WebPushChannel) Name() string { return "push" }

func (c *WebPushChannel) Send(ctx context.Context, target Target, payload Payload) error {
	if len(target.Subscriptions) == 0 {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var failures []string
	for _, sub := range target.Subscriptions {
		s := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}

		resp, err := webpush.SendNotification(body, s, &webpush.Options{
			Subscriber:      c.Subscriber,
			VAPIDPublicKey:  c.VAPIDPublicKey,
			VAPIDPrivateKey: c.VAPIDPrivateKey,
			TTL:             60,
		})
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", sub.Endpoint, err))
			continue
		}
		code := resp.StatusCode
		resp.Body.Close()

		switch {
		case code == http.StatusNotFound || code == http.StatusGone:
			// Subscription is dead; drop the row so we stop pushing at it.
			if err := c.Pruner.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
				c.Log.Warnw("failed to prune gone subscription", "endpoint", sub.Endpoint, "error", err)
			} else {
				c.Log.Infow("pruned gone push subscription", "endpoint", sub.Endpoint)
			}
		case code >= 400:
			failures = append(failures, fmt.Sprintf("%s: status %d", sub.Endpoint, code))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("push: %s", strings.Join(failures, "; "))
	}
	return nil
}
