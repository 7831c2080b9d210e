package middleware

import (
	"net/http"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/metrics"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/policy"
)

// Authorize enforces the access table: 401 when a non-public route has no
// principal, 403 when an admin route has a non-admin principal.
func Authorize(table *policy.Table, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tier := table.Lookup(r.Method, r.URL.Path)

			principal, ok := PrincipalFromContext(r.Context())
			decision := table.Decide(r.Method, r.URL.Path, nil)
			if ok {
				decision = table.Decide(r.Method, r.URL.Path, &principal)
			}

			switch decision {
			case policy.Unauthenticated:
				m.Decision(tier.String(), "unauthenticated")
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			case policy.Forbidden:
				m.Decision(tier.String(), "forbidden")
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "Access denied")
			default:
				m.Decision(tier.String(), "allow")
				next.ServeHTTP(w, r)
			}
		})
	}
}
