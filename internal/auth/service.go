// Package auth provides authentication and authorization services.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors returned by the auth service.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrMissingClaims    = errors.New("missing required claims")
	ErrInvalidSignature = errors.New("invalid token signature")
)

// User represents an authenticated caller.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// Claims represents the JWT claims structure.
type Claims struct {
	UserID string    `json:"user_id"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
	Exp    time.Time `json:"exp"`
}

// User returns the caller identity carried by the claims.
func (c *Claims) User() *User {
	return &User{ID: c.UserID, Email: c.Email, Role: c.Role}
}

// APIKey represents a stored API key.
type APIKey struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	KeyHash   string    `json:"-"` // SHA256 hash of the key
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// APIKeyStore defines the interface for API key lookup.
type APIKeyStore interface {
	// GetByHash retrieves an API key by its hash.
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
}

// Config holds authentication configuration.
type Config struct {
	JWTSecret   []byte
	TokenExpiry time.Duration
}

// Service provides authentication functionality.
type Service struct {
	jwtSecret   []byte
	tokenExpiry time.Duration
	apiKeyStore APIKeyStore
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new authentication service.
func NewService(cfg *Config, apiKeyStore APIKeyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jwtSecret:   cfg.JWTSecret,
		tokenExpiry: cfg.TokenExpiry,
		apiKeyStore: apiKeyStore,
		logger:      logger,
		now:         time.Now,
	}
}

// GenerateToken creates a new JWT token for the given user and role.
func (s *Service) GenerateToken(userID, email string, role Role) (string, error) {
	if userID == "" || !role.IsValid() {
		return "", ErrMissingClaims
	}

	now := s.now()
	exp := now.Add(s.tokenExpiry)

	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  string(role),
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"nbf":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.logger.Error("failed to sign token", "error", err)
		return "", fmt.Errorf("signing token: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := mapClaims["sub"].(string)
	if !ok || userID == "" {
		return nil, ErrMissingClaims
	}

	roleName, _ := mapClaims["role"].(string)
	role := Role(roleName)
	if !role.IsValid() {
		return nil, ErrMissingClaims
	}

	email, _ := mapClaims["email"].(string)

	expFloat, ok := mapClaims["exp"].(float64)
	if !ok {
		return nil, ErrMissingClaims
	}

	return &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		Exp:    time.Unix(int64(expFloat), 0),
	}, nil
}

// ValidateAPIKey validates an API key and returns the associated caller.
func (s *Service) ValidateAPIKey(ctx context.Context, apiKey string) (*User, error) {
	if apiKey == "" || s.apiKeyStore == nil {
		return nil, ErrInvalidAPIKey
	}

	storedKey, err := s.apiKeyStore.GetByHash(ctx, HashAPIKey(apiKey))
	if err != nil {
		s.logger.Debug("API key lookup failed", "error", err)
		return nil, ErrInvalidAPIKey
	}
	if storedKey == nil {
		return nil, ErrInvalidAPIKey
	}

	if !storedKey.ExpiresAt.IsZero() && s.now().After(storedKey.ExpiresAt) {
		return nil, ErrExpiredToken
	}

	return &User{
		ID:   storedKey.UserID,
		Role: storedKey.Role,
	}, nil
}

// StaticKeyStore is an APIKeyStore over a fixed set of keys, typically loaded
// from configuration.
type StaticKeyStore struct {
	mu     sync.RWMutex
	byHash map[string]*APIKey
}

// NewStaticKeyStore creates a store holding keys.
func NewStaticKeyStore(keys ...*APIKey) *StaticKeyStore {
	s := &StaticKeyStore{byHash: make(map[string]*APIKey, len(keys))}
	for _, k := range keys {
		s.byHash[k.KeyHash] = k
	}
	return s
}

func (s *StaticKeyStore) GetByHash(ctx context.Context, hash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for h, k := range s.byHash {
		if SecureCompare(h, hash) {
			return k, nil
		}
	}
	return nil, ErrInvalidAPIKey
}

// ParseAPIKeys parses a comma-separated list of user:role:key entries into
// hashed APIKeys.
func ParseAPIKeys(list string) ([]*APIKey, error) {
	var keys []*APIKey
	for i, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("api key entry %d: expected user:role:key", i+1)
		}
		role := Role(parts[1])
		if !role.IsValid() {
			return nil, fmt.Errorf("api key entry %d: %w %q", i+1, ErrInvalidRole, parts[1])
		}
		keys = append(keys, &APIKey{
			ID:      fmt.Sprintf("static-%d", i+1),
			UserID:  parts[0],
			Role:    role,
			KeyHash: HashAPIKey(parts[2]),
			Name:    parts[0],
		})
	}
	return keys, nil
}

// GenerateAPIKey generates a new API key and returns the raw key.
// The raw key should be shown to the user once and never stored.
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return "cd_" + base64.RawURLEncoding.EncodeToString(bytes), nil
}

// HashAPIKey creates a SHA256 hash of an API key for storage.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// ExtractBearerToken extracts the token from a Bearer authorization header.
func ExtractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// SecureCompare performs a constant-time comparison of two strings.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
