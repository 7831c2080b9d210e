// Package token issues and parses the HS256 bearer tokens handed out at login.
//
// Tokens carry the username as subject, the role as a private claim and the
// signing key id in the "kid" header. A token is valid iff its signature
// verifies under a currently configured key and the current time is strictly
// before its expiry. There is no revocation list: retiring a key from the
// KeySet invalidates every token it signed.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
)

const DefaultTTL = 10 * time.Hour

type Claims struct {
	Subject   string
	Role      model.Role
	KeyID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Codec struct {
	keys *KeySet
	ttl  time.Duration
	now  func() time.Time
}

type Option func(*Codec)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func NewCodec(keys *KeySet, ttl time.Duration, opts ...Option) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Codec{keys: keys, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) TTL() time.Duration {
	return c.ttl
}

func (c *Codec) Issue(subject string, role model.Role) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("issue token: subject is required")
	}

	kid := c.keys.ActiveID()
	key, _ := c.keys.lookup(kid)

	issuedAt := c.now().UTC().Truncate(time.Second)
	claims := tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = kid

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates the token and returns its claims. Every failure wraps
// model.ErrInvalidToken.
func (c *Codec) Parse(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, fmt.Errorf("%w: empty token", model.ErrInvalidToken)
	}

	var kid string
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		id, _ := t.Header["kid"].(string)
		if id == "" {
			return nil, errors.New("missing key id")
		}

		key, ok := c.keys.lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", id)
		}

		kid = id
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", model.ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: unexpected claims", model.ErrInvalidToken)
	}

	// jwt treats now == exp as still valid; the token must be dead at its expiry instant.
	expiresAt := claims.ExpiresAt.Time
	if !c.now().Before(expiresAt) {
		return Claims{}, fmt.Errorf("%w: %w", model.ErrInvalidToken, jwt.ErrTokenExpired)
	}

	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", model.ErrInvalidToken)
	}

	out := Claims{
		Subject:   claims.Subject,
		Role:      model.ParseRole(claims.Role),
		KeyID:     kid,
		ExpiresAt: expiresAt,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
