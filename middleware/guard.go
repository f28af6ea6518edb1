package middleware

import (
	"context"
	"net/http"
	"strings"

	identity "github.com/orionworks/identity"
	"github.com/orionworks/identity/jwt"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the validated access claims injected by a guard.
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return claims, ok
}

// RequireAuth rejects requests without a valid bearer token. Validated claims
// are available to the wrapped handler via [ClaimsFromContext].
func RequireAuth(engine *identity.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(engine, r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose token does not carry the given group.
func RequireRole(engine *identity.Engine, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(engine, r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !hasGroup(claims.Groups, role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(engine *identity.Engine, r *http.Request) (*jwt.AccessClaims, bool) {
	if engine == nil {
		return nil, false
	}

	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, false
	}

	claims, err := engine.ValidateAccess(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func hasGroup(groups []string, role string) bool {
	for _, g := range groups {
		if g == role {
			return true
		}
	}
	return false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
