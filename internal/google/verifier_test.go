package google

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
)

const testClientID = "bigbikeblitz-web.apps.googleusercontent.com"

type jwksServer struct {
	*httptest.Server
	mu      sync.Mutex
	keys    []jose.JSONWebKey
	fetches atomic.Int32
}

func newJWKSServer(t *testing.T, keys ...jose.JSONWebKey) *jwksServer {
	t.Helper()

	s := &jwksServer{keys: keys}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.fetches.Add(1)
		s.mu.Lock()
		set := jose.JSONWebKeySet{Keys: s.keys}
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(keys ...jose.JSONWebKey) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func publicJWK(key *rsa.PrivateKey, kid string) jose.JSONWebKey {
	return jose.JSONWebKey{Key: &key.PublicKey, KeyID: kid, Algorithm: string(jose.RS256), Use: "sig"}
}

type credentialOpts struct {
	kid           string
	issuer        string
	audience      string
	email         string
	emailVerified any
	expiresAt     time.Time
}

func signCredential(t *testing.T, key *rsa.PrivateKey, opts credentialOpts) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss":   opts.issuer,
		"aud":   opts.audience,
		"sub":   "1098765432101234567890",
		"email": opts.email,
		"name":  "Rider",
		"iat":   time.Now().Add(-time.Minute).Unix(),
		"exp":   opts.expiresAt.Unix(),
	}
	if opts.emailVerified != nil {
		claims["email_verified"] = opts.emailVerified
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = opts.kid
	raw, err := tok.SignedString(key)
	require.NoError(t, err)
	return raw
}

func validOpts() credentialOpts {
	return credentialOpts{
		kid:           "g1",
		issuer:        "https://accounts.google.com",
		audience:      testClientID,
		email:         "rider@example.com",
		emailVerified: true,
		expiresAt:     time.Now().Add(time.Hour),
	}
}

func TestVerifierAcceptsValidCredential(t *testing.T) {
	t.Parallel()

	key := newRSAKey(t)
	server := newJWKSServer(t, publicJWK(key, "g1"))
	verifier := NewVerifier(Config{ClientIDs: []string{"other-client", testClientID}, JWKSURL: server.URL})

	identity, err := verifier.Verify(context.Background(), signCredential(t, key, validOpts()))
	require.NoError(t, err)
	require.Equal(t, "rider@example.com", identity.Email)
	require.True(t, identity.EmailVerified)
	require.Equal(t, "1098765432101234567890", identity.Subject)

	opts := validOpts()
	opts.issuer = "accounts.google.com"
	opts.emailVerified = "true"
	_, err = verifier.Verify(context.Background(), signCredential(t, key, opts))
	require.NoError(t, err)

	require.EqualValues(t, 1, server.fetches.Load())
}

func TestVerifierRejectsInvalidCredentials(t *testing.T) {
	t.Parallel()

	key := newRSAKey(t)
	attacker := newRSAKey(t)
	server := newJWKSServer(t, publicJWK(key, "g1"))
	verifier := NewVerifier(Config{ClientIDs: []string{testClientID}, JWKSURL: server.URL})

	tests := []struct {
		name   string
		signer *rsa.PrivateKey
		mutate func(*credentialOpts)
	}{
		{name: "wrong audience", signer: key, mutate: func(o *credentialOpts) { o.audience = "someone-elses-app" }},
		{name: "wrong issuer", signer: key, mutate: func(o *credentialOpts) { o.issuer = "https://evil.example.com" }},
		{name: "expired", signer: key, mutate: func(o *credentialOpts) { o.expiresAt = time.Now().Add(-time.Minute) }},
		{name: "forged signature", signer: attacker, mutate: func(*credentialOpts) {}},
		{name: "missing email", signer: key, mutate: func(o *credentialOpts) { o.email = "" }},
		{name: "email not verified", signer: key, mutate: func(o *credentialOpts) { o.emailVerified = false }},
		{name: "email not verified as string", signer: key, mutate: func(o *credentialOpts) { o.emailVerified = "false" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := validOpts()
			tc.mutate(&opts)

			_, err := verifier.Verify(context.Background(), signCredential(t, tc.signer, opts))
			require.ErrorIs(t, err, model.ErrExternalTokenInvalid)
		})
	}

	t.Run("unsigned payload", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"iss": "https://accounts.google.com", "aud": testClientID, "email": "rider@example.com",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		tok.Header["kid"] = "g1"
		raw, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = verifier.Verify(context.Background(), raw)
		require.ErrorIs(t, err, model.ErrExternalTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := verifier.Verify(context.Background(), "not-a-jwt")
		require.ErrorIs(t, err, model.ErrExternalTokenInvalid)
	})
}

func TestVerifierNotConfigured(t *testing.T) {
	t.Parallel()

	verifier := NewVerifier(Config{ClientIDs: []string{" "}})
	require.False(t, verifier.Configured())

	_, err := verifier.Verify(context.Background(), "anything")
	require.ErrorIs(t, err, model.ErrExternalTokenInvalid)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestVerifierRefetchesOnKeyRotation(t *testing.T) {
	t.Parallel()

	oldKey := newRSAKey(t)
	newKey := newRSAKey(t)
	server := newJWKSServer(t, publicJWK(oldKey, "g1"))

	now := time.Now()
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		clockMu.Lock()
		now = now.Add(d)
		clockMu.Unlock()
	}

	verifier := NewVerifier(Config{
		ClientIDs:  []string{testClientID},
		JWKSURL:    server.URL,
		MinRefresh: time.Minute,
		Now:        clock,
	})

	_, err := verifier.Verify(context.Background(), signCredential(t, oldKey, validOpts()))
	require.NoError(t, err)
	require.EqualValues(t, 1, server.fetches.Load())

	server.setKeys(publicJWK(oldKey, "g1"), publicJWK(newKey, "g2"))

	rotated := validOpts()
	rotated.kid = "g2"
	rotated.expiresAt = now.Add(2 * time.Hour)

	// Inside the refresh window an unknown kid does not hit the endpoint again.
	_, err = verifier.Verify(context.Background(), signCredential(t, newKey, rotated))
	require.ErrorIs(t, err, model.ErrExternalTokenInvalid)
	require.EqualValues(t, 1, server.fetches.Load())

	advance(2 * time.Minute)

	_, err = verifier.Verify(context.Background(), signCredential(t, newKey, rotated))
	require.NoError(t, err)
	require.EqualValues(t, 2, server.fetches.Load())
}

func TestVerifierCollapsesConcurrentFetches(t *testing.T) {
	t.Parallel()

	key := newRSAKey(t)
	server := newJWKSServer(t, publicJWK(key, "g1"))
	verifier := NewVerifier(Config{ClientIDs: []string{testClientID}, JWKSURL: server.URL})
	credential := signCredential(t, key, validOpts())

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := verifier.Verify(context.Background(), credential)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, server.fetches.Load())
}
