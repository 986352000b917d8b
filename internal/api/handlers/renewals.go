package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/narvanalabs/contractdesk/internal/api/middleware"
	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/renewal"
	"github.com/narvanalabs/contractdesk/internal/store"
)

// RenewalWorkflow is the subset of renewal.Workflow used by the API.
type RenewalWorkflow interface {
	Create(ctx context.Context, actorID, contractID, orgID string, p renewal.Proposal) (*models.RenewalView, error)
	Update(ctx context.Context, actorID, renewalID string, patch renewal.Patch) (*models.RenewalView, error)
	Get(ctx context.Context, renewalID string) (*models.RenewalView, error)
	ListByContract(ctx context.Context, contractID string, filter store.RenewalFilter) ([]*models.Renewal, error)
}

// RenewalHandler handles renewal requests.
type RenewalHandler struct {
	workflow RenewalWorkflow
	logger   *slog.Logger
}

// NewRenewalHandler creates a new renewal handler.
func NewRenewalHandler(wf RenewalWorkflow, logger *slog.Logger) *RenewalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenewalHandler{workflow: wf, logger: logger}
}

// Create handles POST /v1/orgs/{orgID}/contracts/{contractID}/renewals.
// The organization comes from the path, resolved by middleware.OrgContext.
func (h *RenewalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p renewal.Proposal
	if err := decodeJSON(r, &p); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	view, err := h.workflow.Create(r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "contractID"),
		middleware.GetOrgID(r.Context()),
		p,
	)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, view)
}

// Update handles PATCH /v1/renewals/{renewalID}.
func (h *RenewalHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch renewal.Patch
	if err := decodeJSON(r, &patch); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	view, err := h.workflow.Update(r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "renewalID"),
		patch,
	)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, view)
}

// Get handles GET /v1/renewals/{renewalID}.
func (h *RenewalHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.workflow.Get(r.Context(), chi.URLParam(r, "renewalID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// ListByContract handles GET /v1/contracts/{contractID}/renewals.
// sub_status may be repeated or comma-separated; active_only=true hides
// renewals in FINAL_PROCESSING.
func (h *RenewalHandler) ListByContract(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := boolQuery(r, "active_only")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	filter := store.RenewalFilter{ActiveOnly: activeOnly}
	for _, raw := range r.URL.Query()["sub_status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.SubStatuses = append(filter.SubStatuses, models.SubStatus(strings.ToUpper(s)))
			}
		}
	}

	renewals, err := h.workflow.ListByContract(r.Context(), chi.URLParam(r, "contractID"), filter)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"renewals": renewals})
}
