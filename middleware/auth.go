package middleware

import (
	"context"
	"net/http"
	"strings"

	"courier/apperrors"
	"courier/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// ErrorWriter renders an error response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

var errMissingToken = apperrors.Unauthorized("not authenticated")

// Auth requires a valid "Authorization: Bearer <token>" header and adds the
// authenticated user to the request context.
func Auth(authn Authenticator, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, r, errMissingToken)
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				if apperrors.CodeOf(err) == apperrors.CodeUnauthenticated {
					w.Header().Set("WWW-Authenticate", "Bearer")
				}
				writeError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext retrieves the user from the request context
func GetUserFromContext(r *http.Request) *models.User {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
