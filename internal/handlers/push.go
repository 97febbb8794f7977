package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

var (
	vapidPrivateKey string
	vapidPublicKey  string
)

// InitVAPID takes keys from the environment or generates a fresh pair,
// logging it so it can be pinned in .env. Returns the pair in use.
func InitVAPID(publicKey, privateKey string, log *zap.SugaredLogger) (string, string, error) {
	if publicKey == "" || privateKey == "" {
		log.Info("VAPID keys not configured, generating a new pair")
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return "", "", err
		}
		privateKey, publicKey = priv, pub
		log.Infof("Generated VAPID keys:\nVAPID_PRIVATE_KEY=%s\nVAPID_PUBLIC_KEY=%s\n(add these to your .env file to persist them)", priv, pub)
	}
	vapidPublicKey = publicKey
	vapidPrivateKey = privateKey
	return publicKey, privateKey, nil
}

// GetVAPIDKeyHandler returns the public VAPID key
func (h *Handler) GetVAPIDKeyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"publicKey": vapidPublicKey,
	})
}

// SubscribePushHandler saves a push subscription for the session user.
// Re-subscribing an existing endpoint just refreshes its keys.
func (h *Handler) SubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	userID, _ := CurrentUserID(r)

	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Endpoint == "" {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", "endpoint is required")
		return
	}

	err := h.Store.SavePushSubscription(r.Context(), userID, req.Endpoint,
		req.Keys.P256dh, req.Keys.Auth, r.UserAgent())
	if err != nil {
		h.Log.Errorw("failed to save push subscription", "user", userID, "error", err)
		h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to save subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// UnsubscribePushHandler deletes the subscription matching the endpoint.
// Called when the user disables push or the browser drops the
// subscription.
func (h *Handler) UnsubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", "endpoint is required")
		return
	}

	if err := h.Store.DeletePushSubscription(r.Context(), req.Endpoint); err != nil {
		h.Log.Errorw("failed to delete push subscription", "endpoint", req.Endpoint, "error", err)
		h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to delete subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
