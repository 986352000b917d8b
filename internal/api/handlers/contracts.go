package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/narvanalabs/contractdesk/internal/apperr"
	"github.com/narvanalabs/contractdesk/internal/lifecycle"
	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/scanner"
	"github.com/narvanalabs/contractdesk/internal/store"
)

// ExpiryReport describes where a contract stands relative to its end date.
// It is computed on read and never written back to the contract.
type ExpiryReport struct {
	ContractID     string                 `json:"contract_id"`
	ContractNumber string                 `json:"contract_number"`
	EndDate        time.Time              `json:"end_date"`
	ThresholdDays  int                    `json:"threshold_days"`
	DaysLeft       int                    `json:"days_left"`
	Bucket         lifecycle.ExpiryBucket `json:"bucket"`
	StoredStatus   models.ContractStatus  `json:"stored_status"`
	StatusDiverges bool                   `json:"status_diverges"`
}

// ContractHandler serves read-only views of contracts.
type ContractHandler struct {
	contracts        store.ContractStore
	clock            lifecycle.Clock
	defaultThreshold int
	logger           *slog.Logger
}

// NewContractHandler creates a new contract handler. A nil clock means the wall clock.
func NewContractHandler(contracts store.ContractStore, clock lifecycle.Clock, defaultThreshold int, logger *slog.Logger) *ContractHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = lifecycle.SystemClock
	}
	return &ContractHandler{
		contracts:        contracts,
		clock:            clock,
		defaultThreshold: defaultThreshold,
		logger:           logger,
	}
}

// Expiry handles GET /v1/contracts/{contractID}/expiry.
func (h *ContractHandler) Expiry(w http.ResponseWriter, r *http.Request) {
	threshold, err := intQuery(r, "threshold_days", h.defaultThreshold)
	if err == nil {
		err = scanner.ValidateThreshold(threshold)
	}
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	c, err := h.contracts.Get(r.Context(), chi.URLParam(r, "contractID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.NotFound("contract not found")
		} else {
			err = apperr.DataAccess("loading contract", err)
		}
		WriteError(w, r, h.logger, err)
		return
	}

	now := h.clock()
	WriteJSON(w, http.StatusOK, &ExpiryReport{
		ContractID:     c.ID,
		ContractNumber: c.ContractNumber,
		EndDate:        c.EndDate,
		ThresholdDays:  threshold,
		DaysLeft:       lifecycle.DaysUntilExpiry(c.EndDate, now),
		Bucket:         lifecycle.Classify(c, threshold, now),
		StoredStatus:   c.Status,
		StatusDiverges: lifecycle.StatusDiverges(c, now),
	})
}
