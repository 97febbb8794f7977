package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wellness-hub-go/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	notificationTTL = 7 * 24 * time.Hour
	feedChannel     = "notify_events"
)

// Store handles durable rows (PostgreSQL).
type Store interface {
	// User methods
	CreateUser(ctx context.Context, username, email, password string) (models.User, error)
	GetUser(ctx context.Context, id int) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	UpdateUser2FA(ctx context.Context, userID int, totpSecret string, enabled bool) error
	Disable2FA(ctx context.Context, userID int) error

	// Reminder methods
	ListReminders(ctx context.Context, userID int) ([]models.Reminder, error)
	GetReminder(ctx context.Context, id string) (models.Reminder, error)
	UpsertReminder(ctx context.Context, r *models.Reminder) error
	DeleteReminder(ctx context.Context, userID int, id string) error
	DueReminders(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error)
	EnabledReminders(ctx context.Context) ([]models.Reminder, error)
	MarkDispatched(ctx context.Context, id string, next *time.Time, enabled bool, sentAt time.Time) error
	SetReminderEnabled(ctx context.Context, id string, enabled bool) error

	// Push subscription methods
	SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth, userAgent string) error
	PushSubscriptions(ctx context.Context, userID int) ([]models.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error

	// Delivery log methods
	AppendDeliveryLog(ctx context.Context, row models.DeliveryLog) error
	DeliveryLogs(ctx context.Context, reminderID string, limit int) ([]models.DeliveryLog, error)

	// Snapshot methods
	GetSnapshot(ctx context.Context, userID int, kind string) (models.Snapshot, error)
	MergeSnapshot(ctx context.Context, userID int, kind string, patch json.RawMessage) (models.Snapshot, error)
}

// FeedStore handles the ephemeral in-app notification feed (Redis).
type FeedStore interface {
	Publish(ctx context.Context, n models.Notification) (models.Notification, error)
	Recent(ctx context.Context, userID int, limit int) ([]models.Notification, error)
	Subscribe(ctx context.Context) *redis.PubSub
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(opts *redis.Options) *RedisStore {
	rdb := redis.NewClient(opts)
	return &RedisStore{client: rdb}
}

// Publish stores a feed entry with a TTL, indexes it on the user's
// timeline, and pushes it to the SSE pub/sub channel.
func (s *RedisStore) Publish(ctx context.Context, n models.Notification) (models.Notification, error) {
	id, err := s.client.Incr(ctx, "notify:next_id").Result()
	if err != nil {
		return models.Notification{}, err
	}

	n.ID = int(id)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return models.Notification{}, err
	}

	key := fmt.Sprintf("notify:%d", n.ID)
	timeline := fmt.Sprintf("notify:user:%d", n.UserID)

	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, notificationTTL)
	pipe.ZAdd(ctx, timeline, redis.Z{
		Score:  float64(n.CreatedAt.Unix()),
		Member: key,
	})
	pipe.Expire(ctx, timeline, notificationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.Notification{}, err
	}

	// A failed publish only costs one live toast; the stored entry still
	// shows up in the recent feed.
	_ = s.client.Publish(ctx, feedChannel, data).Err()

	return n, nil
}

// Recent returns the newest feed entries for a user, newest first.
func (s *RedisStore) Recent(ctx context.Context, userID int, limit int) ([]models.Notification, error) {
	timeline := fmt.Sprintf("notify:user:%d", userID)
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	keys, err := s.client.ZRevRange(ctx, timeline, 0, stop).Result()
	if err != nil {
		return nil, err
	}

	var out []models.Notification
	for _, key := range keys {
		val, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			// Entry expired, drop it from the timeline.
			s.client.ZRem(ctx, timeline, key)
			continue
		} else if err != nil {
			continue
		}

		var n models.Notification
		if err := json.Unmarshal([]byte(val), &n); err == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *RedisStore) Subscribe(ctx context.Context) *redis.PubSub {
	return s.client.Subscribe(ctx, feedChannel)
}
