package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sensus/peek/internal/logging"
	"github.com/sensus/peek/internal/models"
)

type contextKey string

const UserIDKey contextKey = "userID"

// TokenVerifier resolves a bearer token to the user id it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// BearerAuth validates "Authorization: Bearer <token>" and stores the token's user id
// in the request context.
func BearerAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse(models.CodeUnauthorized, "Authorization header required"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse(models.CodeUnauthorized, "Invalid authorization header format"))
				return
			}

			userID, err := verifier.Verify(r.Context(), parts[1])
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("bearer token rejected")
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse(models.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSelf allows the request only when the authenticated user matches the
// {param} URL parameter. Must run after BearerAuth, inside the route.
func RequireSelf(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUserID(r.Context()) != chi.URLParam(r, param) {
				writeJSON(w, http.StatusForbidden, models.NewErrorResponse(models.CodeForbidden, "Token does not grant access to this user"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}
