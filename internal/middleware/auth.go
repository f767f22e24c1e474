package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cloudshare/service/internal/response"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// AccountIDKey is the context key for the authenticated account's ID.
const AccountIDKey contextKey = "accountID"

// AccountEmailKey is the context key for the authenticated account's email.
const AccountEmailKey contextKey = "accountEmail"

// AccountRoleKey is the context key for the authenticated account's role.
const AccountRoleKey contextKey = "accountRole"

// AccountID extracts the authenticated account ID from the request context.
// Handlers resolve the actor here once and pass the ID into services explicitly.
func AccountID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(AccountIDKey).(string)
	return id, ok && id != ""
}

// RequireAuth returns middleware that validates a Bearer JWT and injects
// account claims into the request context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				response.Unauthorized(w, "invalid or expired token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				response.Unauthorized(w, "invalid token claims")
				return
			}

			accountID, _ := claims["sub"].(string)
			email, _ := claims["email"].(string)
			role, _ := claims["role"].(string)

			ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
			ctx = context.WithValue(ctx, AccountEmailKey, email)
			ctx = context.WithValue(ctx, AccountRoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
