package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/narvanalabs/contractdesk/internal/api/errors"
	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/store"
	"github.com/narvanalabs/contractdesk/pkg/logger"
)

// OrgContextKey is the context key for the organization.
const OrgContextKey contextKey = "org"

// OrgContext returns a middleware that resolves the {orgID} URL parameter to an
// organization. Unknown organizations get a 404 before the handler runs.
func OrgContext(orgs store.OrgStore, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := chimiddleware.GetReqID(r.Context())
			orgID := chi.URLParam(r, "orgID")

			org, err := orgs.Get(r.Context(), orgID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					log.Debug("organization not found", "org_id", orgID)
					apierrors.WriteErrorWithRequestID(w, apierrors.NewNotFoundError("organization not found"), requestID)
					return
				}
				log.Error("failed to load organization", "org_id", orgID, "error", err)
				apierrors.WriteErrorWithRequestID(w, apierrors.NewInternalError("internal error"), requestID)
				return
			}

			ctx := context.WithValue(r.Context(), OrgContextKey, org)
			ctx = logger.ContextWithOrgID(ctx, org.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOrg extracts the organization from the request context.
func GetOrg(ctx context.Context) *models.Organization {
	if v, ok := ctx.Value(OrgContextKey).(*models.Organization); ok {
		return v
	}
	return nil
}

// GetOrgID extracts the organization ID from the request context.
// Returns empty string if no organization is set.
func GetOrgID(ctx context.Context) string {
	if org := GetOrg(ctx); org != nil {
		return org.ID
	}
	return ""
}
