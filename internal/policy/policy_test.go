package policy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
)

func TestDefaultTableLookup(t *testing.T) {
	t.Parallel()

	table := Default()

	tests := []struct {
		method string
		path   string
		want   Tier
	}{
		{http.MethodPost, "/api/auth", Public},
		{http.MethodPost, "/api/auth/google", Public},
		{http.MethodPost, "/register", Public},
		{http.MethodPost, "/verify-email", Public},
		{http.MethodPost, "/api/password-reset/request", Public},
		{http.MethodPost, "/api/password-reset/confirm", Public},
		{http.MethodGet, "/api/bikes", Public},
		{http.MethodGet, "/api/bikes/all", Public},
		{http.MethodGet, "/api/bikes/7", Public},
		{http.MethodGet, "/uploads/bikes/r1.jpg", Public},
		{http.MethodGet, "/health", Public},
		{http.MethodOptions, "/api/admin/users", Public},

		{http.MethodGet, "/api/auth", Authenticated},
		{http.MethodGet, "/user/profile", Authenticated},
		{http.MethodPut, "/user/profile", Authenticated},
		{http.MethodGet, "/api/cart", Authenticated},
		{http.MethodPost, "/api/cart/add", Authenticated},
		{http.MethodPost, "/api/orders/place", Authenticated},
		{http.MethodGet, "/something/unlisted", Authenticated},

		{http.MethodGet, "/api/admin/users", Admin},
		{http.MethodDelete, "/api/admin/orders/3", Admin},
		{http.MethodPut, "/api/admin/orders/3/status", Admin},
		{http.MethodPost, "/api/bikes", Admin},
		{http.MethodPut, "/api/bikes/7", Admin},
		{http.MethodDelete, "/api/bikes/7", Admin},
		{http.MethodPost, "/api/upload", Admin},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			require.Equal(t, tc.want, table.Lookup(tc.method, tc.path))
		})
	}
}

func TestDecide(t *testing.T) {
	t.Parallel()

	table := Default()
	user := &model.Principal{Username: "bob", Role: model.RoleUser}
	admin := &model.Principal{Username: "admin", Role: model.RoleAdmin}

	require.Equal(t, Unauthenticated, table.Decide(http.MethodGet, "/api/admin/users", nil))
	require.Equal(t, Forbidden, table.Decide(http.MethodGet, "/api/admin/users", user))
	require.Equal(t, Allow, table.Decide(http.MethodGet, "/api/admin/users", admin))

	require.Equal(t, Unauthenticated, table.Decide(http.MethodGet, "/api/cart", nil))
	require.Equal(t, Allow, table.Decide(http.MethodGet, "/api/cart", user))

	require.Equal(t, Allow, table.Decide(http.MethodPost, "/api/auth", nil))
}

func TestPatternMatching(t *testing.T) {
	t.Parallel()

	table, err := NewTable(Authenticated,
		Rule{Pattern: "/a/*/c", Tier: Public},
		Rule{Pattern: "/x/**", Tier: Admin},
	)
	require.NoError(t, err)

	require.Equal(t, Public, table.Lookup("GET", "/a/b/c"))
	require.Equal(t, Authenticated, table.Lookup("GET", "/a/b/c/d"))
	require.Equal(t, Authenticated, table.Lookup("GET", "/a/c"))
	require.Equal(t, Admin, table.Lookup("GET", "/x"))
	require.Equal(t, Admin, table.Lookup("GET", "/x/y/z"))
	require.Equal(t, Authenticated, table.Lookup("GET", "/xy"))
}

func TestNewTableRejectsBadPatterns(t *testing.T) {
	t.Parallel()

	_, err := NewTable(Authenticated, Rule{Pattern: "no-slash"})
	require.Error(t, err)

	_, err = NewTable(Authenticated, Rule{Pattern: "/a/**/b"})
	require.Error(t, err)
}

func TestTierString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "PUBLIC", Public.String())
	require.Equal(t, "ADMIN", Admin.String())
	require.Equal(t, "Tier(9)", Tier(9).String())
}
