package handlers

import (
	"encoding/json"
	"net/http"

	"wellness-hub-go/internal/dispatch"
	"wellness-hub-go/internal/llm"
	"wellness-hub-go/internal/store"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Handler struct {
	Store      store.Store
	Feed       store.FeedStore
	LLM        *llm.Client
	Dispatcher *dispatch.Dispatcher
	Log        *zap.SugaredLogger

	// DispatchSecret guards the internal dispatch trigger; empty means
	// the check is skipped (local development).
	DispatchSecret string

	validate *validator.Validate
}

func NewHandler(s store.Store, feed store.FeedStore, llmClient *llm.Client, d *dispatch.Dispatcher, log *zap.SugaredLogger) *Handler {
	return &Handler{
		Store:      s,
		Feed:       feed,
		LLM:        llmClient,
		Dispatcher: d,
		Log:        log,
		validate:   validator.New(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorJSON is the outermost error boundary shape: every handler failure
// becomes {"error": code, "detail": ...} and nothing propagates further.
func (h *Handler) errorJSON(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"error":  code,
		"detail": detail,
	})
}
