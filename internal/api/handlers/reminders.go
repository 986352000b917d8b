package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/narvanalabs/contractdesk/internal/api/middleware"
	"github.com/narvanalabs/contractdesk/internal/models"
)

// ReminderService lists and acknowledges reminders.
type ReminderService interface {
	Acknowledge(ctx context.Context, actorID, reminderID string) (*models.Reminder, error)
	ListByContract(ctx context.Context, contractID string) ([]*models.Reminder, error)
}

// ReminderHandler handles reminder requests.
type ReminderHandler struct {
	reminders ReminderService
	logger    *slog.Logger
}

// NewReminderHandler creates a new reminder handler.
func NewReminderHandler(svc ReminderService, logger *slog.Logger) *ReminderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderHandler{reminders: svc, logger: logger}
}

// ListByContract handles GET /v1/contracts/{contractID}/reminders.
func (h *ReminderHandler) ListByContract(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.reminders.ListByContract(r.Context(), chi.URLParam(r, "contractID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

// Acknowledge handles POST /v1/reminders/{reminderID}/acknowledge.
func (h *ReminderHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	rem, err := h.reminders.Acknowledge(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "reminderID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, rem)
}
