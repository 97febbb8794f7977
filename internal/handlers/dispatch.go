package handlers

import (
	"crypto/hmac"
	"fmt"
	"net/http"
)

// DispatchHandler triggers one dispatcher sweep, standing in for the
// original scheduled-function cron. The response is a plain-text status
// body. With DISPATCH_SECRET set, callers must present it in
// X-Dispatch-Secret; comparison is constant-time.
func (h *Handler) DispatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.DispatchSecret != "" {
		got := r.Header.Get("X-Dispatch-Secret")
		if !hmac.Equal([]byte(got), []byte(h.DispatchSecret)) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	sum, err := h.Dispatcher.Run(r.Context())
	if err != nil {
		h.Log.Errorw("dispatch run failed", "error", err)
		http.Error(w, "dispatch failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, sum.String())
}

// HealthzHandler is the liveness probe.
func (h *Handler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}
