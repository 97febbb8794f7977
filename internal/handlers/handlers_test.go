package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"wellness-hub-go/internal/dispatch"
	"wellness-hub-go/internal/llm"
	"wellness-hub-go/internal/models"
	"wellness-hub-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	users     map[int]models.User
	reminders map[string]models.Reminder
	subs      map[string]models.PushSubscription
	logs      []models.DeliveryLog
	snaps     map[string]models.Snapshot
	nextUser  int

	failSubDelete bool
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[int]models.User{},
		reminders: map[string]models.Reminder{},
		subs:      map[string]models.PushSubscription{},
		snaps:     map[string]models.Snapshot{},
		nextUser:  1,
	}
}

func (m *memStore) CreateUser(ctx context.Context, username, email, password string) (models.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return models.User{}, errors.New("username already exists")
		}
	}
	hash, err := models.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	u := models.User{ID: m.nextUser, Username: username, Email: email, PasswordHash: hash, CreatedAt: time.Now()}
	m.users[u.ID] = u
	m.nextUser++
	return u, nil
}

func (m *memStore) GetUser(ctx context.Context, id int) (models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (m *memStore) UpdateUser2FA(ctx context.Context, userID int, totpSecret string, enabled bool) error {
	u := m.users[userID]
	u.TOTPSecret = totpSecret
	u.TOTPEnabled = enabled
	m.users[userID] = u
	return nil
}

func (m *memStore) Disable2FA(ctx context.Context, userID int) error {
	u := m.users[userID]
	u.TOTPSecret = ""
	u.TOTPEnabled = false
	m.users[userID] = u
	return nil
}

func (m *memStore) ListReminders(ctx context.Context, userID int) ([]models.Reminder, error) {
	var out []models.Reminder
	for _, r := range m.reminders {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetReminder(ctx context.Context, id string) (models.Reminder, error) {
	r, ok := m.reminders[id]
	if !ok {
		return models.Reminder{}, store.ErrNotFound
	}
	return r, nil
}

func (m *memStore) UpsertReminder(ctx context.Context, r *models.Reminder) error {
	if r.ID == "" {
		r.ID = "gen-1"
	}
	m.reminders[r.ID] = *r
	return nil
}

func (m *memStore) DeleteReminder(ctx context.Context, userID int, id string) error {
	r, ok := m.reminders[id]
	if !ok || r.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.reminders, id)
	return nil
}

func (m *memStore) DueReminders(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	return nil, nil
}

func (m *memStore) EnabledReminders(ctx context.Context) ([]models.Reminder, error) {
	return nil, nil
}

func (m *memStore) MarkDispatched(ctx context.Context, id string, next *time.Time, enabled bool, sentAt time.Time) error {
	return nil
}

func (m *memStore) SetReminderEnabled(ctx context.Context, id string, enabled bool) error {
	r := m.reminders[id]
	r.Enabled = enabled
	m.reminders[id] = r
	return nil
}

func (m *memStore) SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth, userAgent string) error {
	m.subs[endpoint] = models.PushSubscription{UserID: userID, Endpoint: endpoint, P256dh: p256dh, Auth: auth, UserAgent: userAgent}
	return nil
}

func (m *memStore) PushSubscriptions(ctx context.Context, userID int) ([]models.PushSubscription, error) {
	var out []models.PushSubscription
	for _, s := range m.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	if m.failSubDelete {
		return errors.New("db down")
	}
	delete(m.subs, endpoint)
	return nil
}

func (m *memStore) AppendDeliveryLog(ctx context.Context, row models.DeliveryLog) error {
	m.logs = append(m.logs, row)
	return nil
}

func (m *memStore) DeliveryLogs(ctx context.Context, reminderID string, limit int) ([]models.DeliveryLog, error) {
	var out []models.DeliveryLog
	for _, l := range m.logs {
		if l.ReminderID == reminderID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) GetSnapshot(ctx context.Context, userID int, kind string) (models.Snapshot, error) {
	s, ok := m.snaps[kind]
	if !ok || s.UserID != userID {
		return models.Snapshot{}, store.ErrNotFound
	}
	return s, nil
}

func (m *memStore) MergeSnapshot(ctx context.Context, userID int, kind string, patch json.RawMessage) (models.Snapshot, error) {
	doc := patch
	if existing, ok := m.snaps[kind]; ok && existing.UserID == userID {
		doc = models.MergeDoc(existing.Doc, patch)
	}
	s := models.Snapshot{UserID: userID, Kind: kind, Doc: doc, UpdatedAt: time.Now()}
	m.snaps[kind] = s
	return s, nil
}

func newTestHandler(t *testing.T, ms *memStore) *Handler {
	t.Helper()
	InitSessions("test-secret")
	return NewHandler(ms, nil, llm.New("", "http://unused", "m", time.Second), nil, zap.NewNop().Sugar())
}

// login creates a user and returns the session cookie.
func login(t *testing.T, h *Handler, ms *memStore) (*http.Cookie, models.User) {
	t.Helper()
	body := `{"username":"ana","email":"ana@example.com","password":"secret-password"}`
	req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.RegisterHandler(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	user, err := ms.GetUserByUsername(context.Background(), "ana")
	require.NoError(t, err)
	return cookies[0], user
}

func authed(method, path, body string, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.AddCookie(cookie)
	return req
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ms := newMemStore()
	h := newTestHandler(t, ms)
	login(t, h, ms)

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		bytes.NewBufferString(`{"username":"ana","password":"wrong"}`))
	rec := httptest.NewRecorder()
	h.LoginHandler(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateReminderSeedsNextRun(t *testing.T) {
	ms := newMemStore()
	h := newTestHandler(t, ms)
	cookie, user := login(t, h, ms)

	body := `{"type":"habit","title":"Drink water","time_of_day":"09:00","recurrence":"daily"}`
	rec := httptest.NewRecorder()
	h.RemindersHandler(rec, authed(http.MethodPost, "/api/reminders", body, cookie))
	require.Equal(t, http.StatusCreated, rec.Code)

	reminders, err := ms.ListReminders(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	r := reminders[0]
	assert.True(t, r.Enabled)
	require.NotNil(t, r.NextRunAt)
	assert.True(t, r.NextRunAt.After(time.Now().UTC().Add(-time.Minute)))
	assert.Equal(t, 9, r.NextRunAt.Hour())
	assert.Equal(t, 0, r.NextRunAt.Minute())
}

func TestCreateReminderValidatesType(t *testing.T) {
	ms := newMemStore()
	h := newTestHandler(t, ms)
	cookie, _ := login(t, h, ms)

	body := `{"type":"bogus","title":"x","time_of_day":"09:00"}`
	rec := httptest.NewRecorder()
	h.RemindersHandler(rec, authed(http.MethodPost, "/api/reminders", body, cookie))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateReminderOfOtherUserIs404(t *testing.T) {
	ms := newMemStore()
	h := newTestHandler(t, ms)
	cookie, _ := login(t, h, ms)

	ms.reminders["foreign"] = models.Reminder{ID: "foreign", UserID: 99, Title: "not yours"}

	body := `{"type":"habit","title":"hijack","time_of_day":"09:00"}`
	rec := httptest.NewRecorder()
	h.ReminderItemHandler(rec, authed(http.MethodPut, "/api/reminders/foreign", body, cookie))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteReminder(t *testing.T) {
	ms := newMemStore()
	h := newTestHandler(t, ms)
	cookie, user := login(t, h, ms)

	ms.reminders["r1"] = models.Reminder{ID: "r1", UserID: user.ID}

	rec := httptest.NewRecorder()
	h.ReminderItemHandler(rec, authed(http.MethodDelete, "/api/reminders/r1", "", cookie))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ReminderItemHandler(rec, authed(http.MethodDelete, "/api/reminders/r1", "", cookie))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnsubscribeStatusCodes(t *testing.T) {
	ms := newMemStore()
	h := newTestHandler(t, ms)
	cookie, user := login(t, h, ms)

	ms.subs["https://push.example/ep1"] = models.PushSubscription{UserID: user.ID, Endpoint: "https://push.example/ep1"}

	// Missing endpoint -> 400.
	rec := httptest.NewRecorder()
	h.UnsubscribePushHandler(rec, authed(http.MethodPost, "/api/push/unsubscribe", `{}`, cookie))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Matching endpoint -> 200 and the row is gone.
	rec = httptest.NewRecorder()
	h.UnsubscribePushHandler(rec, authed(http.MethodPost, "/api/push/unsubscribe",
		`{"endpoint":"https://push.example/ep1"}`, cookie))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ms.subs)

	// Store failure -> 500.
	ms.failSubDelete = true
	rec = httptest.NewRecorder()
	h.UnsubscribePushHandler(rec, authed(http.MethodPost, "/api/push/unsubscribe",
		`{"endpoint":"https://push.example/ep2"}`, cookie))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSnapshotMergePut(t *testing.T) {
	ms := newMemStore()
	h := newTestHandler(t, ms)
	cookie, _ := login(t, h, ms)

	rec := httptest.NewRecorder()
	h.SnapshotHandler(rec, authed(http.MethodPut, "/api/snapshots/habit", `{"streak":3,"goal":"run"}`, cookie))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.SnapshotHandler(rec, authed(http.MethodPut, "/api/snapshots/habit", `{"streak":4}`, cookie))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Doc map[string]any `json:"doc"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(4), resp.Doc["streak"])
	assert.Equal(t, "run", resp.Doc["goal"])
}

func TestSnapshotUnknownKind(t *testing.T) {
	ms := newMemStore()
	h := newTestHandler(t, ms)
	cookie, _ := login(t, h, ms)

	rec := httptest.NewRecorder()
	h.SnapshotHandler(rec, authed(http.MethodGet, "/api/snapshots/astrology", "", cookie))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssistantMissingAPIKey(t *testing.T) {
	ms := newMemStore()
	h := newTestHandler(t, ms)
	cookie, _ := login(t, h, ms)

	rec := httptest.NewRecorder()
	h.AssistantHandler(rec, authed(http.MethodPost, "/api/assistant/sleep", `{"message":"hi"}`, cookie))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "missing_api_key", resp["error"])
}

func TestAssistantUnknownPersona(t *testing.T) {
	ms := newMemStore()
	h := newTestHandler(t, ms)
	cookie, _ := login(t, h, ms)

	rec := httptest.NewRecorder()
	h.AssistantHandler(rec, authed(http.MethodPost, "/api/assistant/astrology", `{"message":"hi"}`, cookie))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssistantVendorErrorMapsTo502(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ms := newMemStore()
	InitSessions("test-secret")
	h := NewHandler(ms, nil, llm.New("sk-test", srv.URL, "m", time.Second), nil, zap.NewNop().Sugar())
	cookie, _ := login(t, h, ms)

	rec := httptest.NewRecorder()
	h.AssistantHandler(rec, authed(http.MethodPost, "/api/assistant/sleep", `{"message":"hi"}`, cookie))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "openai_error", resp["error"])
}

func TestDispatchHandlerSecret(t *testing.T) {
	ms := newMemStore()
	h := newTestHandler(t, ms)
	h.Dispatcher = dispatch.NewDispatcher(ms, &dispatch.Registry{}, zap.NewNop().Sugar(), 10)
	h.DispatchSecret = "hunter2"

	req := httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil)
	rec := httptest.NewRecorder()
	h.DispatchHandler(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil)
	req.Header.Set("X-Dispatch-Secret", "hunter2")
	rec = httptest.NewRecorder()
	h.DispatchHandler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "due=0")
}

func TestAuthMiddlewareBlocksAnonymous(t *testing.T) {
	ms := newMemStore()
	h := newTestHandler(t, ms)

	called := false
	protected := AuthMiddleware(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	protected(rec, httptest.NewRequest(http.MethodGet, "/api/reminders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
	_ = h
}
