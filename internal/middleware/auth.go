package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
)

type principalResolver interface {
	ResolvePrincipal(ctx context.Context, raw string) (model.Principal, error)
}

type contextKey string

const principalContextKey contextKey = "principal"

type AuthMiddleware struct {
	resolver principalResolver
	logger   *slog.Logger
}

func NewAuthMiddleware(resolver principalResolver, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{resolver: resolver, logger: logger}
}

// Authenticate attaches the principal behind a valid bearer token. It never
// rejects a request: a missing, malformed or stale token leaves the request
// anonymous and Authorize decides what that means for the route.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := m.resolver.ResolvePrincipal(r.Context(), raw)
		if err != nil {
			m.logger.Debug("bearer token ignored", "path", r.URL.Path, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		noteUser(r.Context(), principal.Username)
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}

func WithPrincipal(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(model.Principal)
	return principal, ok
}
