package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"wellness-hub-go/internal/models"
	"wellness-hub-go/internal/schedule"
	"wellness-hub-go/internal/store"
)

// RemindersHandler serves GET (list) and POST (create) on /api/reminders.
func (h *Handler) RemindersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listReminders(w, r)
	case http.MethodPost:
		h.upsertReminder(w, r, "")
	default:
		h.errorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET or POST only")
	}
}

// ReminderItemHandler serves PUT/DELETE on /api/reminders/{id} and GET on
// /api/reminders/{id}/logs.
func (h *Handler) ReminderItemHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/reminders/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", "reminder id missing")
		return
	}

	if sub == "logs" && r.Method == http.MethodGet {
		h.listDeliveryLogs(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodPut:
		h.upsertReminder(w, r, id)
	case http.MethodDelete:
		h.deleteReminder(w, r, id)
	default:
		h.errorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "PUT or DELETE only")
	}
}

func (h *Handler) listReminders(w http.ResponseWriter, r *http.Request) {
	userID, _ := CurrentUserID(r)
	reminders, err := h.Store.ListReminders(r.Context(), userID)
	if err != nil {
		h.Log.Errorw("failed to list reminders", "user", userID, "error", err)
		h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to list reminders")
		return
	}
	if reminders == nil {
		reminders = []models.Reminder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

type reminderRequest struct {
	Type       string `json:"type" validate:"required,oneof=habit sleep wealth recovery custom"`
	Title      string `json:"title" validate:"required,max=200"`
	Message    string `json:"message" validate:"max=2000"`
	TimeOfDay  string `json:"time_of_day" validate:"required,len=5"`
	Recurrence string `json:"recurrence" validate:"max=100"`
	StartDate  string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	Enabled    *bool  `json:"enabled"`
}

// upsertReminder creates (empty id) or replaces a reminder and re-seeds
// next_run_at from start date + time-of-day.
func (h *Handler) upsertReminder(w http.ResponseWriter, r *http.Request, id string) {
	userID, _ := CurrentUserID(r)

	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	reminder := models.Reminder{
		ID:         id,
		UserID:     userID,
		Type:       req.Type,
		Title:      req.Title,
		Message:    req.Message,
		TimeOfDay:  req.TimeOfDay,
		Recurrence: req.Recurrence,
		StartDate:  req.StartDate,
		Enabled:    true,
	}
	if req.Enabled != nil {
		reminder.Enabled = *req.Enabled
	}

	if id != "" {
		existing, err := h.Store.GetReminder(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			h.errorJSON(w, http.StatusNotFound, "not_found", "reminder not found")
			return
		}
		if err != nil {
			h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to load reminder")
			return
		}
		if existing.UserID != userID {
			h.errorJSON(w, http.StatusNotFound, "not_found", "reminder not found")
			return
		}
		reminder.LastSentAt = existing.LastSentAt
	}

	if reminder.Enabled {
		if next, ok := schedule.InitialRun(reminder.Recurrence, reminder.StartDate, reminder.TimeOfDay, time.Now().UTC()); ok {
			reminder.NextRunAt = &next
		}
	}

	if err := h.Store.UpsertReminder(r.Context(), &reminder); err != nil {
		h.Log.Errorw("failed to upsert reminder", "user", userID, "error", err)
		h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to save reminder")
		return
	}

	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"reminder": reminder})
}

func (h *Handler) deleteReminder(w http.ResponseWriter, r *http.Request, id string) {
	userID, _ := CurrentUserID(r)
	err := h.Store.DeleteReminder(r.Context(), userID, id)
	if errors.Is(err, store.ErrNotFound) {
		h.errorJSON(w, http.StatusNotFound, "not_found", "reminder not found")
		return
	}
	if err != nil {
		h.Log.Errorw("failed to delete reminder", "user", userID, "reminder", id, "error", err)
		h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to delete reminder")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) listDeliveryLogs(w http.ResponseWriter, r *http.Request, id string) {
	userID, _ := CurrentUserID(r)

	reminder, err := h.Store.GetReminder(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && reminder.UserID != userID) {
		h.errorJSON(w, http.StatusNotFound, "not_found", "reminder not found")
		return
	}
	if err != nil {
		h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to load reminder")
		return
	}

	logs, err := h.Store.DeliveryLogs(r.Context(), id, 50)
	if err != nil {
		h.errorJSON(w, http.StatusInternalServerError, "server_error", "failed to load delivery logs")
		return
	}
	if logs == nil {
		logs = []models.DeliveryLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
