package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"wellness-hub-go/internal/models"
	"wellness-hub-go/internal/store"
)

// SnapshotHandler serves GET/PUT on /api/snapshots/{kind}. Documents are
// free-form JSON owned by the feature editors; PUT merges at the top
// level and upserts.
func (h *Handler) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	kind := strings.TrimPrefix(r.URL.Path, "/api/snapshots/")
	if !models.SnapshotKinds[kind] {
		h.errorJSON(w, http.StatusNotFound, "not_found", "unknown snapshot kind")
		return
	}

	userID, _ := CurrentUserID(r)

	switch r.Method {
	case http.MethodGet:
		snap, err := h.Store.GetSnapshot(r.Context(), userID, kind)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"doc": map[string]any{}})
			return
		}
		if err != nil {
			h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to load snapshot")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"doc": snap.Doc, "updated_at": snap.UpdatedAt})

	case http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil || !json.Valid(body) {
			h.errorJSON(w, http.StatusBadRequest, "invalid_request", "body must be a JSON document")
			return
		}
		snap, err := h.Store.MergeSnapshot(r.Context(), userID, kind, body)
		if err != nil {
			h.Log.Errorw("failed to merge snapshot", "user", userID, "kind", kind, "error", err)
			h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to save snapshot")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"doc": snap.Doc, "updated_at": snap.UpdatedAt})

	default:
		h.errorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET or PUT only")
	}
}
