// Package google verifies Google Sign-In ID tokens against Google's published
// signing keys. A credential is accepted only when its RS256 signature checks
// out under a key from the JWKS endpoint, its issuer is Google, and its
// audience names one of the configured OAuth client ids.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
)

const (
	DefaultJWKSURL    = "https://www.googleapis.com/oauth2/v3/certs"
	DefaultCacheTTL   = time.Hour
	DefaultMinRefresh = 30 * time.Second

	maxCachedKeys = 32
)

var validIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// ErrNotConfigured is returned when no client ids are configured.
var ErrNotConfigured = errors.New("google sign-in is not configured")

type Config struct {
	ClientIDs  []string
	JWKSURL    string
	CacheTTL   time.Duration
	MinRefresh time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
}

type Verifier struct {
	clientIDs  []string
	jwksURL    string
	minRefresh time.Duration
	client     *http.Client
	now        func() time.Time

	keys  *expirable.LRU[string, any]
	group singleflight.Group

	mu        sync.Mutex
	lastFetch time.Time
}

func NewVerifier(cfg Config) *Verifier {
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = DefaultJWKSURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.MinRefresh <= 0 {
		cfg.MinRefresh = DefaultMinRefresh
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	clientIDs := make([]string, 0, len(cfg.ClientIDs))
	for _, id := range cfg.ClientIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			clientIDs = append(clientIDs, trimmed)
		}
	}

	return &Verifier{
		clientIDs:  clientIDs,
		jwksURL:    cfg.JWKSURL,
		minRefresh: cfg.MinRefresh,
		client:     cfg.HTTPClient,
		now:        cfg.Now,
		keys:       expirable.NewLRU[string, any](maxCachedKeys, nil, cfg.CacheTTL),
	}
}

func (v *Verifier) Configured() bool {
	return len(v.clientIDs) > 0
}

type idTokenClaims struct {
	Email         string    `json:"email"`
	EmailVerified *flexBool `json:"email_verified"`
	Name          string    `json:"name"`
	jwt.RegisteredClaims
}

// Verify checks the credential and returns the identity it asserts. Every
// verification failure wraps model.ErrExternalTokenInvalid.
func (v *Verifier) Verify(ctx context.Context, credential string) (model.ExternalIdentity, error) {
	if !v.Configured() {
		return model.ExternalIdentity{}, fmt.Errorf("%w: %w", model.ErrExternalTokenInvalid, ErrNotConfigured)
	}

	credential = strings.TrimSpace(credential)
	if credential == "" {
		return model.ExternalIdentity{}, fmt.Errorf("%w: empty credential", model.ErrExternalTokenInvalid)
	}

	claims := &idTokenClaims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing key id")
		}
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return model.ExternalIdentity{}, fmt.Errorf("%w: %w", model.ErrExternalTokenInvalid, err)
	}

	if !slices.Contains(validIssuers, claims.Issuer) {
		return model.ExternalIdentity{}, fmt.Errorf("%w: unexpected issuer %q", model.ErrExternalTokenInvalid, claims.Issuer)
	}

	if !slices.ContainsFunc(claims.Audience, func(aud string) bool { return slices.Contains(v.clientIDs, aud) }) {
		return model.ExternalIdentity{}, fmt.Errorf("%w: audience mismatch", model.ErrExternalTokenInvalid)
	}

	email := strings.TrimSpace(claims.Email)
	if email == "" {
		return model.ExternalIdentity{}, fmt.Errorf("%w: email claim missing", model.ErrExternalTokenInvalid)
	}

	if claims.EmailVerified != nil && !bool(*claims.EmailVerified) {
		return model.ExternalIdentity{}, fmt.Errorf("%w: email not verified by provider", model.ErrExternalTokenInvalid)
	}

	return model.ExternalIdentity{
		Subject:       claims.Subject,
		Email:         email,
		EmailVerified: true,
		Name:          claims.Name,
	}, nil
}

func (v *Verifier) key(ctx context.Context, kid string) (any, error) {
	if key, ok := v.keys.Get(kid); ok {
		return key, nil
	}

	if err := v.refresh(ctx); err != nil {
		return nil, err
	}

	if key, ok := v.keys.Get(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("unknown key id %q", kid)
}

// refresh reloads the key set. Concurrent callers share one fetch, and an
// unknown kid cannot trigger more than one fetch per minRefresh window.
func (v *Verifier) refresh(ctx context.Context) error {
	if v.fetchedRecently() {
		return nil
	}

	ch := v.group.DoChan("jwks", func() (any, error) {
		if v.fetchedRecently() {
			return nil, nil
		}
		return nil, v.fetch(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Verifier) fetchedRecently() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.lastFetch.IsZero() && v.now().Sub(v.lastFetch) < v.minRefresh
}

func (v *Verifier) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	loaded := 0
	for _, k := range set.Keys {
		if k.KeyID == "" || !k.Valid() || !k.IsPublic() {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		v.keys.Add(k.KeyID, k.Key)
		loaded++
	}

	v.mu.Lock()
	v.lastFetch = v.now()
	v.mu.Unlock()

	slog.Debug("google signing keys refreshed", "keys", loaded)
	return nil
}

// flexBool accepts both JSON booleans and the string forms Google has used.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.Trim(strings.ToLower(string(data)), `"`) {
	case "true":
		*b = true
	case "false":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}
