package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/flowforge/orchestrator/graph"
)

// TokenManager issues and verifies the bearer tokens the HTTP API
// requires (spec §6 implies an authenticated, per-user API surface:
// Workflow/Execution records are all scoped to a owning user id).
// Grounded on cklxx-elephant.ai's JWTTokenManager.
type TokenManager struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
}

// NewTokenManager builds a TokenManager. accessTTL <= 0 defaults to 15m.
func NewTokenManager(secret, issuer string, accessTTL time.Duration) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, accessTTL: accessTTL}
}

// IssueAccessToken signs a short-lived access token for userID.
func (m *TokenManager) IssueAccessToken(userID string) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	expiresAt := time.Now().Add(m.accessTTL)
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": expiresAt.Unix(),
		"iss": m.issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// userIDFromToken verifies token and returns the subject claim.
func (m *TokenManager) userIDFromToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("token missing subject")
	}
	return sub, nil
}

type contextKey int

const userIDContextKey contextKey = 0

// UserIDFromContext retrieves the authenticated user id a handler
// stores via RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userIDContextKey).(string)
	return uid, ok
}

// RequireAuth wraps next, rejecting requests without a valid
// "Authorization: Bearer <token>" header with a 401 (spec §7's
// CodeUnauthorized) and otherwise injecting the resolved user id into
// the request context.
func (m *TokenManager) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token", Code: graph.CodeUnauthorized})
			return
		}
		userID, err := m.userIDFromToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid token", Code: graph.CodeUnauthorized})
			return
		}
		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next(w, r.WithContext(ctx))
	}
}
