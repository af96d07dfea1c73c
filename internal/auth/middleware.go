package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "user", u), ANY package that knows the string "user"
// can read or shadow your value. Using a package-private type prevents
// collisions: only THIS package can create a key of type contextKey.
type contextKey string

const (
	userKey  contextKey = "user"
	tokenKey contextKey = "token"
)

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the JWT from the "Authorization: Bearer <token>" header and
// performs three checks, in order:
//
//  1. The signature verifies and the token hasn't expired
//  2. The user named in the "sub" claim still exists
//  3. The exact token string is still in that user's session list
//
// Check 3 is what makes logout work: a signed token presented after logout
// fails here even though its signature is still valid. The check runs on
// every request — nothing is cached — so revocation takes effect
// immediately.
//
// On success the user record and the presenting token are stored in the
// request context. On any failure the chain stops with 401; no handler runs.
func RequireAuth(tokens *TokenService, users repository.UserRepository, sessions repository.SessionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}

			userID, err := tokens.Validate(tokenStr)
			if err != nil {
				unauthorized(w)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				unauthorized(w)
				return
			}

			live, err := sessions.Exists(r.Context(), user.ID, tokenStr)
			if err != nil || !live {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, tokenKey, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext retrieves the authenticated user from the request context.
// Returns (nil, false) on routes that didn't pass through RequireAuth.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// TokenFromContext retrieves the token the current request authenticated
// with. Logout needs it to know WHICH session to end.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok && t != ""
}

// bearerToken extracts the credential from an "Authorization: Bearer ..."
// header. The scheme comparison is case-insensitive per RFC 7235.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
}
