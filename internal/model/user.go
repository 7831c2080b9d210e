package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole normalizes a role name; unknown values fall back to USER.
func ParseRole(raw string) Role {
	normalized := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(raw)), "ROLE_")
	switch normalized {
	case string(RoleAdmin):
		return RoleAdmin
	default:
		return RoleUser
	}
}

type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Role          Role      `json:"role"`
	Enabled       bool      `json:"enabled"`
	EmailVerified bool      `json:"emailVerified"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Principal is the request-scoped identity attached by the access gate.
type Principal struct {
	UserID      string
	Username    string
	Role        Role
	Authorities []string
}

func NewPrincipal(u User) Principal {
	return Principal{
		UserID:      u.ID,
		Username:    u.Username,
		Role:        u.Role,
		Authorities: []string{"ROLE_" + string(u.Role)},
	}
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// ExternalIdentity is the verified subset of a third-party identity token.
type ExternalIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

type ActionKind string

const (
	ActionVerifyEmail   ActionKind = "verify_email"
	ActionPasswordReset ActionKind = "password_reset"
)

// ActionToken is a single-use emailed token. Only the hash of the raw value is stored.
type ActionToken struct {
	TokenHash string
	Kind      ActionKind
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type UserList struct {
	Users []User `json:"users"`
}
