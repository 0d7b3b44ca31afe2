package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/birthday-reminder/internal/apperror"
)

// contextKey is unexported so no other package can read or shadow our values.
type contextKey string

const usernameKey contextKey = "username"

// RequireAuth enforces a valid bearer token on the wrapped routes and stores
// the token's username in the request context. Missing or invalid tokens get
// a 401 with the same JSON error shape the handlers use.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := extractUsername(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="birthday-reminder"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUsername(r.Context(), username)))
		})
	}
}

// WithUsername returns a copy of ctx carrying the authenticated username.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// UsernameFromContext returns the authenticated username, or ("", false)
// for an anonymous request.
func UsernameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(usernameKey).(string)
	return name, ok && name != ""
}

// CheckOwner returns a Forbidden error when the request is authenticated as
// someone other than owner. Anonymous requests pass: routes that need a
// token are wrapped in RequireAuth, which rejects them earlier.
func CheckOwner(ctx context.Context, owner string) error {
	name, ok := UsernameFromContext(ctx)
	if ok && name != owner {
		return apperror.Forbidden("token does not belong to " + owner)
	}
	return nil
}

// extractUsername reads the bearer token from the Authorization header,
// falling back to a "token" cookie for browser clients.
func extractUsername(r *http.Request, tokens *TokenService) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return "", apperror.Unauthorized("authorization header must use the Bearer scheme")
		}
		return tokens.Validate(strings.TrimSpace(token))
	}

	cookie, err := r.Cookie("token")
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
