package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"wellness-hub-go/internal/llm"
)

// AssistantHandler proxies POST /api/assistant/{persona} to the LLM
// vendor. The error codes and statuses are part of the API contract:
// missing_api_key 500, openai_error 502, timeout 504, server_error 500.
func (h *Handler) AssistantHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	persona := strings.TrimPrefix(r.URL.Path, "/api/assistant/")
	if !llm.KnownPersona(persona) {
		h.errorJSON(w, http.StatusNotFound, "not_found", "unknown persona")
		return
	}

	var req struct {
		Message string `json:"message"`
		Context string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	reply, err := h.LLM.Reply(r.Context(), persona, req.Message, req.Context)
	if err != nil {
		var vendorErr *llm.VendorError
		switch {
		case errors.Is(err, llm.ErrNoAPIKey):
			h.errorJSON(w, http.StatusInternalServerError, "missing_api_key", "LLM API key is not configured")
		case errors.Is(err, llm.ErrTimeout):
			h.errorJSON(w, http.StatusGatewayTimeout, "timeout", "upstream call timed out")
		case errors.As(err, &vendorErr):
			h.errorJSON(w, http.StatusBadGateway, "openai_error",
				fmt.Sprintf("vendor status %d: %s", vendorErr.Status, vendorErr.Detail))
		default:
			h.Log.Errorw("assistant call failed", "persona", persona, "error", err)
			h.errorJSON(w, http.StatusInternalServerError, "server_error", "assistant call failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}
