package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"wellness-hub-go/internal/models"
)

// SSEHandler streams the session user's in-app notifications. The Redis
// channel carries everyone's events; this filters down to the subscriber.
func (h *Handler) SSEHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUserID(r)
	if !ok {
		h.errorJSON(w, http.StatusUnauthorized, "unauthorized", "login required")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		h.errorJSON(w, http.StatusInternalServerError, "server_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	pubsub := h.Feed.Subscribe(r.Context())
	defer pubsub.Close()

	ch := pubsub.Channel()

	fmt.Fprintf(w, "data: %s\n\n", "connected")
	flusher.Flush()

	for {
		select {
		case msg := <-ch:
			var n models.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil || n.UserID != userID {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// NotificationsHandler returns the recent in-app feed, newest first, for
// clients catching up after a reload.
func (h *Handler) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := CurrentUserID(r)

	items, err := h.Feed.Recent(r.Context(), userID, 50)
	if err != nil {
		// A feed outage degrades to an empty list; the UI must not crash
		// on a failed poll.
		h.Log.Warnw("failed to read notification feed", "user", userID, "error", err)
		items = nil
	}
	if items == nil {
		items = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}
