package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/narvanalabs/contractdesk/internal/scanner"
)

// Scanner runs expiration scans.
type Scanner interface {
	Run(ctx context.Context, thresholdDays int) (*scanner.Summary, error)
}

// ScanHandler handles expiration scan requests.
type ScanHandler struct {
	scanner          Scanner
	defaultThreshold int
	logger           *slog.Logger
}

// NewScanHandler creates a new scan handler. defaultThreshold is used when the
// request has no threshold_days parameter.
func NewScanHandler(s Scanner, defaultThreshold int, logger *slog.Logger) *ScanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanHandler{
		scanner:          s,
		defaultThreshold: defaultThreshold,
		logger:           logger,
	}
}

// Scan handles POST /v1/contracts/scan.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	threshold, err := intQuery(r, "threshold_days", h.defaultThreshold)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	summary, err := h.scanner.Run(r.Context(), threshold)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}
