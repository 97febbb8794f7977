package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyReturnsAssistantMessage(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Sleep at the same time every night."}},
			},
		})
	}))
	defer srv.Close()

	c := New("sk-test", srv.URL, "gpt-4o-mini", 5*time.Second)
	reply, err := c.Reply(context.Background(), "sleep", "How do I sleep better?", `{"avg_hours":5.5}`)
	require.NoError(t, err)
	assert.Equal(t, "Sleep at the same time every night.", reply)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[0].Content, "avg_hours")
	assert.Equal(t, "How do I sleep better?", gotReq.Messages[1].Content)
}

func TestReplyMissingAPIKey(t *testing.T) {
	c := New("", "http://unused", "m", time.Second)
	_, err := c.Reply(context.Background(), "sleep", "hi", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestReplyUnknownPersona(t *testing.T) {
	c := New("sk-test", "http://unused", "m", time.Second)
	_, err := c.Reply(context.Background(), "astrology", "hi", "")
	assert.Error(t, err)
}

func TestReplyVendorErrorPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New("sk-test", srv.URL, "m", time.Second)
	_, err := c.Reply(context.Background(), "habits", "hi", "")

	var vendorErr *VendorError
	require.True(t, errors.As(err, &vendorErr))
	assert.Equal(t, http.StatusTooManyRequests, vendorErr.Status)
	assert.Contains(t, vendorErr.Detail, "rate limited")
}

func TestReplyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New("sk-test", srv.URL, "m", 20*time.Millisecond)
	_, err := c.Reply(context.Background(), "finance", "hi", "")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestKnownPersona(t *testing.T) {
	for _, p := range []string{"finance", "sleep", "habits", "recovery"} {
		assert.True(t, KnownPersona(p), p)
	}
	assert.False(t, KnownPersona("unknown"))
}
