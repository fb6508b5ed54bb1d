package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey struct{}

// publicPrefixes lists paths reachable without a token. Webhook deliveries
// carry their own per-repository verification.
var publicPrefixes = []string{
	"/api/v1/webhook/",
	"/api/v1/auth/login",
	"/api/v1/health",
	"/metrics",
}

// Middleware rejects requests without a valid bearer token and stores the
// authenticated user in the request context for downstream handlers.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := ExtractBearer(r.Header.Get("Authorization"))
			if token == "" {
				unauthorized(w, "authentication required")
				return
			}
			user, err := svc.ValidateToken(token)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns a context carrying the authenticated username.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFrom returns the authenticated username, or "" for unauthenticated
// requests.
func UserFrom(ctx context.Context) string {
	user, _ := ctx.Value(contextKey{}).(string)
	return user
}

func isPublic(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, "{\"error\":%q}\n", msg)
}
