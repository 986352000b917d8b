// Package handlers implements the HTTP handlers of the contractdesk API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	apierrors "github.com/narvanalabs/contractdesk/internal/api/errors"
	"github.com/narvanalabs/contractdesk/internal/apperr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	apierrors.WriteJSON(w, status, data)
}

// WriteError maps err to an API error response. Errors that map to 500 are
// logged; the client only sees "internal error".
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	apiErr := apierrors.FromError(err)
	if apiErr.HTTPStatusCode() == http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	apierrors.WriteErrorWithRequestID(w, apiErr, chimiddleware.GetReqID(r.Context()))
}

// decodeJSON decodes the request body into v. Unknown fields, including
// contract_id and org_id on a renewal patch, are ignored.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return apperr.Invalid("body", "is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Invalid("body", "must not exceed %d bytes", maxBodyBytes)
		}
		return apperr.Invalid("body", "must be valid JSON: %s", err.Error())
	}
	return nil
}

// intQuery parses an optional integer query parameter.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Invalid(name, "must be an integer")
	}
	return n, nil
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.Invalid(name, "must be a boolean")
	}
	return b, nil
}
