package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wellness-hub-go/internal/models"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrNotFound = errors.New("not found")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// RunMigrations creates tables if they don't exist and applies schema updates
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}

	// Additive changes for existing installs.
	migrations := []string{
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS email VARCHAR(255) NOT NULL DEFAULT '';`,
		`ALTER TABLE reminders ADD COLUMN IF NOT EXISTS last_sent_at TIMESTAMP WITH TIME ZONE;`,
		`ALTER TABLE push_subscriptions ADD COLUMN IF NOT EXISTS user_agent TEXT NOT NULL DEFAULT '';`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// User methods

func (s *PostgresStore) CreateUser(ctx context.Context, username, email, password string) (models.User, error) {
	passwordHash, err := models.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash, created_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, username, email, password_hash, created_at`,
		username, email, passwordHash,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)

	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (s *PostgresStore) scanUser(row *sql.Row) (models.User, error) {
	var user models.User
	var totpSecret sql.NullString

	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&totpSecret, &user.TOTPEnabled, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}

	if totpSecret.Valid {
		user.TOTPSecret = totpSecret.String
	}
	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int) (models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, totp_secret, totp_enabled, created_at
		 FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, totp_secret, totp_enabled, created_at
		 FROM users WHERE username = $1`, username))
}

func (s *PostgresStore) UpdateUser2FA(ctx context.Context, userID int, totpSecret string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET totp_secret = $1, totp_enabled = $2 WHERE id = $3`,
		totpSecret, enabled, userID,
	)
	return err
}

func (s *PostgresStore) Disable2FA(ctx context.Context, userID int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET totp_secret = NULL, totp_enabled = FALSE WHERE id = $1`,
		userID,
	)
	return err
}

// Reminder methods

const reminderCols = `id, user_id, type, title, message, time_of_day, recurrence,
	start_date, next_run_at, enabled, last_sent_at, created_at, updated_at`

func scanReminder(scan func(dest ...any) error) (models.Reminder, error) {
	var r models.Reminder
	var nextRun, lastSent sql.NullTime

	err := scan(&r.ID, &r.UserID, &r.Type, &r.Title, &r.Message, &r.TimeOfDay,
		&r.Recurrence, &r.StartDate, &nextRun, &r.Enabled, &lastSent,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.Reminder{}, err
	}

	if nextRun.Valid {
		t := nextRun.Time.UTC()
		r.NextRunAt = &t
	}
	if lastSent.Valid {
		t := lastSent.Time.UTC()
		r.LastSentAt = &t
	}
	return r, nil
}

func (s *PostgresStore) ListReminders(ctx context.Context, userID int) ([]models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows.Scan)
		if err != nil {
			continue
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func (s *PostgresStore) GetReminder(ctx context.Context, id string) (models.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE id = $1`, id)
	r, err := scanReminder(row.Scan)
	if err == sql.ErrNoRows {
		return models.Reminder{}, ErrNotFound
	}
	return r, err
}

// UpsertReminder inserts or replaces a reminder row. The id is assigned
// here when the caller leaves it empty.
func (s *PostgresStore) UpsertReminder(ctx context.Context, r *models.Reminder) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	var nextRun, lastSent sql.NullTime
	if r.NextRunAt != nil {
		nextRun = sql.NullTime{Time: r.NextRunAt.UTC(), Valid: true}
	}
	if r.LastSentAt != nil {
		lastSent = sql.NullTime{Time: r.LastSentAt.UTC(), Valid: true}
	}

	return s.db.QueryRowContext(ctx,
		`INSERT INTO reminders (id, user_id, type, title, message, time_of_day,
			recurrence, start_date, next_run_at, enabled, last_sent_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		 ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			title = EXCLUDED.title,
			message = EXCLUDED.message,
			time_of_day = EXCLUDED.time_of_day,
			recurrence = EXCLUDED.recurrence,
			start_date = EXCLUDED.start_date,
			next_run_at = EXCLUDED.next_run_at,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
		 RETURNING created_at, updated_at`,
		r.ID, r.UserID, r.Type, r.Title, r.Message, r.TimeOfDay,
		r.Recurrence, r.StartDate, nextRun, r.Enabled, lastSent,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
}

func (s *PostgresStore) DeleteReminder(ctx context.Context, userID int, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DueReminders returns enabled reminders whose next_run_at has passed,
// oldest first, capped so one dispatcher run stays bounded.
func (s *PostgresStore) DueReminders(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders
		 WHERE enabled AND next_run_at IS NOT NULL AND next_run_at <= $1
		 ORDER BY next_run_at ASC
		 LIMIT $2`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows.Scan)
		if err != nil {
			continue
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func (s *PostgresStore) EnabledReminders(ctx context.Context) ([]models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE enabled ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows.Scan)
		if err != nil {
			continue
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// MarkDispatched records the bookkeeping step after a delivery attempt:
// the rolled-forward next_run_at (nil when there is no next occurrence),
// the enabled flag, and last_sent_at.
func (s *PostgresStore) MarkDispatched(ctx context.Context, id string, next *time.Time, enabled bool, sentAt time.Time) error {
	var nextRun sql.NullTime
	if next != nil {
		nextRun = sql.NullTime{Time: next.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET next_run_at = $1, enabled = $2, last_sent_at = $3, updated_at = NOW()
		 WHERE id = $4`,
		nextRun, enabled, sentAt.UTC(), id,
	)
	return err
}

func (s *PostgresStore) SetReminderEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET enabled = $1, updated_at = NOW() WHERE id = $2`,
		enabled, id,
	)
	return err
}

// Push subscription methods

func (s *PostgresStore) SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth, userAgent string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (endpoint) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth,
			user_agent = EXCLUDED.user_agent`,
		userID, endpoint, p256dh, auth, userAgent,
	)
	return err
}

func (s *PostgresStore) PushSubscriptions(ctx context.Context, userID int) ([]models.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, endpoint, p256dh, auth, user_agent, created_at
		 FROM push_subscriptions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.PushSubscription
	for rows.Next() {
		var sub models.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh,
			&sub.Auth, &sub.UserAgent, &sub.CreatedAt); err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PostgresStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}

// Delivery log methods

func (s *PostgresStore) AppendDeliveryLog(ctx context.Context, row models.DeliveryLog) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_log (id, reminder_id, channel, status, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		row.ID, row.ReminderID, row.Channel, row.Status, row.Detail,
	)
	return err
}

func (s *PostgresStore) DeliveryLogs(ctx context.Context, reminderID string, limit int) ([]models.DeliveryLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reminder_id, channel, status, detail, created_at
		 FROM delivery_log WHERE reminder_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		reminderID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.DeliveryLog
	for rows.Next() {
		var l models.DeliveryLog
		if err := rows.Scan(&l.ID, &l.ReminderID, &l.Channel, &l.Status, &l.Detail, &l.CreatedAt); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Snapshot methods

func (s *PostgresStore) GetSnapshot(ctx context.Context, userID int, kind string) (models.Snapshot, error) {
	var snap models.Snapshot
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, kind, doc, updated_at FROM snapshots WHERE user_id = $1 AND kind = $2`,
		userID, kind,
	).Scan(&snap.UserID, &snap.Kind, &doc, &snap.UpdatedAt)

	if err == sql.ErrNoRows {
		return models.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return models.Snapshot{}, err
	}
	snap.Doc = json.RawMessage(doc)
	return snap, nil
}

// MergeSnapshot overlays the patch onto the stored document and upserts
// the result. No transaction spans the read and write; last writer wins,
// matching the original plain merge-and-upsert behavior.
func (s *PostgresStore) MergeSnapshot(ctx context.Context, userID int, kind string, patch json.RawMessage) (models.Snapshot, error) {
	doc := patch
	if existing, err := s.GetSnapshot(ctx, userID, kind); err == nil {
		doc = models.MergeDoc(existing.Doc, patch)
	}

	var snap models.Snapshot
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO snapshots (user_id, kind, doc, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id, kind) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
		 RETURNING user_id, kind, doc, updated_at`,
		userID, kind, []byte(doc),
	).Scan(&snap.UserID, &snap.Kind, &raw, &snap.UpdatedAt)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap.Doc = json.RawMessage(raw)
	return snap, nil
}
