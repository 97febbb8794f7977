package handlers

import (
	"encoding/json"
	"net/http"

	"wellness-hub-go/internal/models"

	"github.com/gorilla/sessions"
)

var (
	sessionStore *sessions.CookieStore
	sessionName  = "wellness-session"
)

// InitSessions configures the cookie store. Must run before any route is
// served.
func InitSessions(secret string) {
	sessionStore = sessions.NewCookieStore([]byte(secret))
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode
}

// RegisterHandler creates an account. Email is optional but without it the
// email channel has nowhere to deliver.
func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	var req struct {
		Username string `json:"username" validate:"required,min=3,max=64"`
		Email    string `json:"email" validate:"omitempty,email"`
		Password string `json:"password" validate:"required,min=8"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	user, err := h.Store.CreateUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.Log.Warnw("failed to create user", "username", req.Username, "error", err)
		h.errorJSON(w, http.StatusConflict, "registration_failed", "username may already be taken")
		return
	}

	h.startSession(w, r, user)
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

// LoginHandler checks credentials. Accounts with 2FA enabled get a
// challenge response instead of a session; /api/2fa/login finishes it.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	user, err := h.Store.GetUserByUsername(r.Context(), req.Username)
	if err != nil || !user.CheckPassword(req.Password) {
		h.errorJSON(w, http.StatusUnauthorized, "invalid_credentials", "username or password is wrong")
		return
	}

	if user.TOTPEnabled {
		writeJSON(w, http.StatusOK, map[string]any{
			"requires_totp": true,
			"user_id":       user.ID,
		})
		return
	}

	h.startSession(w, r, user)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// Verify2FALoginHandler finishes a TOTP-challenged login.
func (h *Handler) Verify2FALoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	var req struct {
		UserID int    `json:"user_id"`
		Code   string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	user, err := h.Store.GetUser(r.Context(), req.UserID)
	if err != nil {
		h.errorJSON(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	if !models.VerifyTOTPCode(user.TOTPSecret, req.Code) {
		h.errorJSON(w, http.StatusUnauthorized, "invalid_code", "verification code rejected")
		return
	}

	h.startSession(w, r, user)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionStore.Get(r, sessionName)
	session.Values["user_id"] = nil
	session.Options.MaxAge = -1
	_ = session.Save(r, w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// MeHandler returns the logged-in user's profile.
func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUserID(r)
	if !ok {
		h.errorJSON(w, http.StatusUnauthorized, "unauthorized", "no active session")
		return
	}
	user, err := h.Store.GetUser(r.Context(), userID)
	if err != nil {
		h.errorJSON(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user models.User) {
	session, _ := sessionStore.Get(r, sessionName)
	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	_ = session.Save(r, w)
}

// AuthMiddleware rejects requests without a session. Per-user data scoping
// happens in the handlers using CurrentUserID.
func AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := CurrentUserID(r)
		if !ok || userID == 0 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":  "unauthorized",
				"detail": "login required",
			})
			return
		}
		next(w, r)
	}
}

// CurrentUserID reads the session user, if any.
func CurrentUserID(r *http.Request) (int, bool) {
	session, _ := sessionStore.Get(r, sessionName)
	userID, ok := session.Values["user_id"].(int)
	return userID, ok && userID != 0
}
