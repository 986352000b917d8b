package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/narvanalabs/contractdesk/internal/api/errors"
)

// Recovery returns a middleware that recovers from panics and logs the error.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID := middleware.GetReqID(r.Context())

					logEntry := apierrors.NewErrorLogEntry(
						requestID,
						apierrors.CodeInternalError,
						"panic recovered",
					)

					attrs := append(logEntry.ToSlogAttrs(),
						"error", rec,
						"method", r.Method,
						"path", r.URL.Path,
					)
					logger.Error("panic recovered", attrs...)

					apierrors.WriteErrorWithRequestID(w,
						apierrors.NewInternalError("an unexpected error occurred"), requestID)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
