package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/narvanalabs/contractdesk/internal/api/errors"
	"github.com/narvanalabs/contractdesk/internal/auth"
	"github.com/narvanalabs/contractdesk/pkg/logger"
)

// Context keys for caller information.
type contextKey string

const (
	// UserKey is the context key for the authenticated caller.
	UserKey contextKey = "user"
)

// GetUser extracts the authenticated caller from the request context.
func GetUser(ctx context.Context) *auth.User {
	if u, ok := ctx.Value(UserKey).(*auth.User); ok {
		return u
	}
	return nil
}

// GetUserID extracts the caller ID from the request context.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.ID
	}
	return ""
}

// WithUser returns ctx carrying u. The actor ID is also attached for logging.
func WithUser(ctx context.Context, u *auth.User) context.Context {
	ctx = context.WithValue(ctx, UserKey, u)
	return logger.ContextWithActorID(ctx, u.ID)
}

// Authenticator validates credentials. *auth.Service implements it.
type Authenticator interface {
	ValidateToken(token string) (*auth.Claims, error)
	ValidateAPIKey(ctx context.Context, key string) (*auth.User, error)
}

// AuthMiddleware handles JWT and API key authentication.
type AuthMiddleware struct {
	authService  Authenticator
	apiKeyHeader string
	logger       *slog.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(authService Authenticator, apiKeyHeader string, logger *slog.Logger) *AuthMiddleware {
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		authService:  authService,
		apiKeyHeader: apiKeyHeader,
		logger:       logger,
	}
}

// Authenticate is a middleware that validates JWT tokens or API keys.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var user *auth.User

		if apiKey := r.Header.Get(m.apiKeyHeader); apiKey != "" {
			u, err := m.authService.ValidateAPIKey(r.Context(), apiKey)
			if err != nil {
				m.logger.Debug("API key validation failed", "error", err)
				writeUnauthorized(w, r, "invalid API key")
				return
			}
			user = u
		} else {
			token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeUnauthorized(w, r, "missing authentication")
				return
			}

			claims, err := m.authService.ValidateToken(token)
			if err != nil {
				m.logger.Debug("JWT validation failed", "error", err)
				if errors.Is(err, auth.ErrExpiredToken) {
					writeUnauthorized(w, r, "token has expired")
					return
				}
				writeUnauthorized(w, r, "invalid token")
				return
			}
			user = claims.User()
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequirePermission returns a middleware that rejects callers whose role lacks p.
func RequirePermission(p auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				writeUnauthorized(w, r, "authentication required")
				return
			}
			if err := auth.CheckRolePermission(user.Role, p); err != nil {
				apierrors.WriteErrorWithRequestID(w,
					apierrors.NewForbiddenError("role "+string(user.Role)+" may not "+string(p)),
					chimiddleware.GetReqID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.WriteErrorWithRequestID(w, apierrors.NewUnauthorizedError(message), chimiddleware.GetReqID(r.Context()))
}
