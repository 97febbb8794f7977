package handlers

import (
	"encoding/json"
	"net/http"

	"wellness-hub-go/internal/models"
)

// Setup2FAHandler generates a new TOTP secret and QR code for the session
// user. Nothing is persisted until the code is verified.
func (h *Handler) Setup2FAHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	userID, _ := CurrentUserID(r)
	user, err := h.Store.GetUser(r.Context(), userID)
	if err != nil {
		h.errorJSON(w, http.StatusNotFound, "not_found", "user not found")
		return
	}

	key, err := models.NewTOTPKey(user.Username)
	if err != nil {
		h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to generate secret")
		return
	}

	qrCode, err := models.TOTPQRCode(key)
	if err != nil {
		h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to generate QR code")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"secret":  key.Secret(),
		"qr_code": "data:image/png;base64," + qrCode,
		"issuer":  models.TOTPIssuer,
		"account": user.Username,
	})
}

// Enable2FAHandler verifies the first TOTP code and turns 2FA on.
func (h *Handler) Enable2FAHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	userID, _ := CurrentUserID(r)

	var req struct {
		Secret string `json:"secret"`
		Code   string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	if !models.VerifyTOTPCode(req.Secret, req.Code) {
		h.errorJSON(w, http.StatusUnauthorized, "invalid_code", "verification code rejected")
		return
	}

	if err := h.Store.UpdateUser2FA(r.Context(), userID, req.Secret, true); err != nil {
		h.Log.Errorw("failed to enable 2FA", "user", userID, "error", err)
		h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to enable 2FA")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Disable2FAHandler turns 2FA off for the session user.
func (h *Handler) Disable2FAHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	userID, _ := CurrentUserID(r)
	if err := h.Store.Disable2FA(r.Context(), userID); err != nil {
		h.Log.Errorw("failed to disable 2FA", "user", userID, "error", err)
		h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to disable 2FA")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
