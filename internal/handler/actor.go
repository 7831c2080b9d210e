package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/middleware"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

// actorFromRequest describes who is calling for the audit trail. The
// identity comes only from the resolved principal.
func actorFromRequest(r *http.Request) model.AuditActor {
	actor := model.AuditActor{IP: middleware.ClientIP(r)}

	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return actor
	}

	actor.UserID = principal.UserID
	actor.Username = principal.Username
	actor.Role = string(principal.Role)
	return actor
}

// requirePrincipal returns the acting user or model.ErrUnauthorized.
func requirePrincipal(r *http.Request) (model.Principal, error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return model.Principal{}, model.ErrUnauthorized
	}
	return principal, nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apierror.BadRequest("invalid "+name, raw)
	}
	return id, nil
}

func parseIntOrDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
