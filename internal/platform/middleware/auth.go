package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Moderation endpoints are the only privileged surface; every ledger operation
// is otherwise permissionless per the protocol. Moderators authenticate with
// an HMAC-signed JWT carrying role=moderator.

// ModeratorClaims are the claims expected from a moderation token.
type ModeratorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ModeratorValidator verifies moderation tokens.
type ModeratorValidator struct {
	key []byte
}

func NewModeratorValidator(signingKey string) *ModeratorValidator {
	return &ModeratorValidator{key: []byte(signingKey)}
}

// ValidateToken parses the token and returns the moderator subject.
func (v *ModeratorValidator) ValidateToken(tokenString string) (string, error) {
	var claims ModeratorClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Role != "moderator" {
		return "", fmt.Errorf("token lacks moderator role")
	}
	return claims.Subject, nil
}

type contextKeyModerator struct{}

// GetModerator retrieves the authenticated moderator subject from the context.
func GetModerator(ctx context.Context) string {
	v, ok := ctx.Value(contextKeyModerator{}).(string)
	if !ok {
		return ""
	}
	return v
}

// RequireModerator guards moderation routes with bearer token auth.
func RequireModerator(validator *ModeratorValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			subject, err := validator.ValidateToken(tokenString)
			if err != nil {
				logger.WarnContext(r.Context(), "moderation auth failed",
					"request_id", GetRequestID(r.Context()),
					"error", err.Error(),
				)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyModerator{}, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
