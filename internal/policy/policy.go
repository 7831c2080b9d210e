// Package policy maps (method, path) pairs to the access tier a request needs.
//
// A Table is built once at startup and never mutated. Rules are evaluated in
// order and the first match wins; paths no rule matches require an
// authenticated principal.
package policy

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
)

type Tier int

const (
	Public Tier = iota
	Authenticated
	Admin
)

func (t Tier) String() string {
	switch t {
	case Public:
		return "PUBLIC"
	case Authenticated:
		return "AUTHENTICATED"
	case Admin:
		return "ADMIN"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Rule matches a method (empty for any) and a slash-separated pattern where
// "*" matches exactly one segment and a trailing "**" matches any remainder,
// including nothing.
type Rule struct {
	Method  string
	Pattern string
	Tier    Tier

	segments []string
}

type Table struct {
	rules    []Rule
	fallback Tier
}

// Decision is the outcome of evaluating a request against the table.
type Decision int

const (
	Allow Decision = iota
	Unauthenticated
	Forbidden
)

func NewTable(fallback Tier, rules ...Rule) (*Table, error) {
	compiled := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if !strings.HasPrefix(r.Pattern, "/") {
			return nil, fmt.Errorf("policy pattern %q must start with /", r.Pattern)
		}

		segs := splitPath(r.Pattern)
		for i, s := range segs {
			if s == "**" && i != len(segs)-1 {
				return nil, fmt.Errorf("policy pattern %q: ** is only allowed as the last segment", r.Pattern)
			}
		}

		r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
		r.segments = segs
		compiled = append(compiled, r)
	}

	return &Table{rules: compiled, fallback: fallback}, nil
}

// Lookup returns the tier required for the request.
func (t *Table) Lookup(method string, path string) Tier {
	method = strings.ToUpper(method)
	segs := splitPath(path)

	for _, r := range t.rules {
		if r.Method != "" && r.Method != method {
			continue
		}
		if matchSegments(r.segments, segs) {
			return r.Tier
		}
	}
	return t.fallback
}

// Decide combines the required tier with the resolved principal, if any.
func (t *Table) Decide(method string, path string, principal *model.Principal) Decision {
	switch t.Lookup(method, path) {
	case Public:
		return Allow
	case Authenticated:
		if principal == nil {
			return Unauthenticated
		}
		return Allow
	default:
		if principal == nil {
			return Unauthenticated
		}
		if !principal.IsAdmin() {
			return Forbidden
		}
		return Allow
	}
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func matchSegments(pattern []string, path []string) bool {
	for i, seg := range pattern {
		if seg == "**" {
			return true
		}
		if i >= len(path) {
			return false
		}
		if seg != "*" && seg != path[i] {
			return false
		}
	}
	return len(pattern) == len(path)
}

// Default is the access table for the storefront API.
func Default() *Table {
	t, err := NewTable(Authenticated,
		Rule{Method: http.MethodOptions, Pattern: "/**", Tier: Public},
		Rule{Method: http.MethodGet, Pattern: "/health", Tier: Public},
		Rule{Method: http.MethodGet, Pattern: "/metrics", Tier: Public},

		Rule{Method: http.MethodPost, Pattern: "/api/auth", Tier: Public},
		Rule{Method: http.MethodPost, Pattern: "/api/auth/google", Tier: Public},
		Rule{Method: http.MethodPost, Pattern: "/api/auth/register", Tier: Public},
		Rule{Method: http.MethodPost, Pattern: "/register", Tier: Public},
		Rule{Method: http.MethodPost, Pattern: "/verify-email", Tier: Public},
		Rule{Method: http.MethodPost, Pattern: "/api/password-reset/request", Tier: Public},
		Rule{Method: http.MethodPost, Pattern: "/api/password-reset/confirm", Tier: Public},

		Rule{Method: http.MethodGet, Pattern: "/api/bikes/**", Tier: Public},
		Rule{Method: http.MethodGet, Pattern: "/uploads/**", Tier: Public},

		Rule{Pattern: "/api/admin/**", Tier: Admin},
		Rule{Pattern: "/api/bikes/**", Tier: Admin},
		Rule{Method: http.MethodPost, Pattern: "/api/upload", Tier: Admin},
	)
	if err != nil {
		panic(err)
	}
	return t
}
