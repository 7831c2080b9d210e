package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/config"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/event"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/handler"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/metrics"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/middleware"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/policy"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/repository"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/service"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/storage"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/token"
)

const (
	adminPassword = "Admin1234"
	userPassword  = "Rider1234"
)

// outbox captures mail so tests can follow the links inside it. When fail is
// set every send is refused.
type outbox struct {
	mu   sync.Mutex
	sent []string
	fail error
}

func (o *outbox) Send(_ context.Context, _ string, _ string, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.sent = append(o.sent, body)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

// identityFunc lets a test decide what a Google credential resolves to.
type identityFunc func(ctx context.Context, credential string) (model.ExternalIdentity, error)

func (f identityFunc) Verify(ctx context.Context, credential string) (model.ExternalIdentity, error) {
	return f(ctx, credential)
}

// googleIdentity accepts any credential except "forged" as the given email.
func googleIdentity(email string) identityFunc {
	return func(_ context.Context, credential string) (model.ExternalIdentity, error) {
		if credential == "forged" {
			return model.ExternalIdentity{}, fmt.Errorf("%w: bad signature", model.ErrExternalTokenInvalid)
		}
		return model.ExternalIdentity{Subject: "g-" + email, Email: email, EmailVerified: true}, nil
	}
}

// emailLookupDown fails every lookup by email, the way a dropped database
// connection would.
type emailLookupDown struct {
	service.UserStore
}

func (emailLookupDown) FindByEmail(context.Context, string) (model.User, error) {
	return model.User{}, errors.New("connection reset by peer")
}

type serverSettings struct {
	google    service.IdentityVerifier
	userStore func(service.UserStore) service.UserStore
	trusted   []netip.Prefix
}

type serverOption func(*serverSettings)

func withGoogle(v service.IdentityVerifier) serverOption {
	return func(s *serverSettings) { s.google = v }
}

func withUserStore(wrap func(service.UserStore) service.UserStore) serverOption {
	return func(s *serverSettings) { s.userStore = wrap }
}

func withTrustedProxies(prefixes ...string) serverOption {
	return func(s *serverSettings) {
		for _, p := range prefixes {
			s.trusted = append(s.trusted, netip.MustParsePrefix(p))
		}
	}
}

func (o *outbox) lastToken(t *testing.T) string {
	t.Helper()

	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no mail was sent")

	body := o.sent[len(o.sent)-1]
	_, rest, found := strings.Cut(body, "token=")
	require.True(t, found, "mail has no token link")
	raw, _, _ := strings.Cut(rest, "\n")
	decoded, err := url.QueryUnescape(raw)
	require.NoError(t, err)
	return decoded
}

type testServer struct {
	*httptest.Server
	users  *repository.MemoryUserRepository
	mail   *outbox
	codec  *token.Codec
	tokens map[string]string
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	var settings serverSettings
	for _, opt := range opts {
		opt(&settings)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	bus := event.NewBus(logger)

	keys, err := token.NewKeySet(map[string]string{"k1": "router-test-secret-with-enough-bytes"}, "k1")
	require.NoError(t, err)
	codec := token.NewCodec(keys, token.DefaultTTL)

	users := repository.NewMemoryUserRepository()
	var userStore service.UserStore = users
	if settings.userStore != nil {
		userStore = settings.userStore(users)
	}
	actionTokens := repository.NewMemoryActionTokenRepository()
	bikes := repository.NewMemoryBikeRepository()
	cart := repository.NewMemoryCartRepository(bikes)
	orders := repository.NewMemoryOrderRepository(cart)
	auditRepo := repository.NewMemoryAuditRepository()
	mail := &outbox{}

	authService, err := service.NewAuthService(userStore, codec, settings.google, bus, m, logger, service.AuthConfig{
		BcryptCost:               bcrypt.MinCost,
		RequireEmailVerification: true,
	})
	require.NoError(t, err)
	accountService := service.NewAccountService(userStore, actionTokens, mail, bus, m, logger, service.AccountConfig{
		BcryptCost:               bcrypt.MinCost,
		RequireEmailVerification: true,
		VerificationTokenTTL:     24 * time.Hour,
		ResetTokenTTL:            time.Hour,
		FrontendURL:              "http://localhost:3000",
	})

	auditService := service.NewAuditService(auditRepo, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go auditService.Listen(bus)(ctx)

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	images := service.NewImageService(store, []string{"image/*"}, 64, logger)

	cfg := &config.Config{
		RequestTimeout:   30 * time.Second,
		UploadTimeout:    time.Minute,
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     1000,
		AuthRateLimitRPM: 1000,
		TrustedProxies:   settings.trusted,
		MaxUploadSize:    1024 * 1024,
	}

	handlers := Handlers{
		Auth:   handler.NewAuthHandler(authService, accountService),
		User:   handler.NewUserHandler(service.NewUserService(userStore, accountService, bus, bcrypt.MinCost)),
		Bike:   handler.NewBikeHandler(service.NewCatalogService(bikes)),
		Cart:   handler.NewCartHandler(service.NewCartService(cart, bikes)),
		Order:  handler.NewOrderHandler(service.NewOrderService(orders, cart, users, bus)),
		Audit:  handler.NewAuditHandler(auditService),
		Upload: handler.NewUploadHandler(images, cfg.MaxUploadSize),
		Health: handler.NewHealthHandler(nil, logger),
	}

	server := httptest.NewServer(New(cfg, logger, m, policy.Default(), middleware.NewAuthMiddleware(authService, logger), handlers))
	t.Cleanup(server.Close)

	ts := &testServer{Server: server, users: users, mail: mail, codec: codec, tokens: map[string]string{}}
	ts.addUser(t, "admin", adminPassword, model.RoleAdmin)
	ts.addUser(t, "rider", userPassword, model.RoleUser)
	ts.tokens["admin"] = ts.login(t, "admin", adminPassword)
	ts.tokens["rider"] = ts.login(t, "rider", userPassword)
	return ts
}

func (s *testServer) addUser(t *testing.T, username string, password string, role model.Role) model.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now().UTC()
	u := model.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         username + "@example.com",
		PasswordHash:  string(hash),
		Role:          role,
		Enabled:       true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, s.users.Create(context.Background(), u))
	return u
}

func (s *testServer) login(t *testing.T, username string, password string) string {
	t.Helper()

	resp := s.do(t, http.MethodPost, "/api/auth", map[string]string{"username": username, "password": password}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed model.LoginResponse
	decodeBody(t, resp, &parsed)
	require.NotEmpty(t, parsed.Token)
	return parsed.Token
}

// do sends body as JSON when it is not nil and authenticates with bearer when
// it is not empty.
func (s *testServer) do(t *testing.T, method string, path string, body any, bearer string) *http.Response {
	t.Helper()

	var payload io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.URL+path, payload)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

// envelope is the shape of every response except successful auth ones.
// Failures carry a message in error with code beside it.
type envelope[T any] struct {
	Success bool        `json:"success"`
	Data    T           `json:"data"`
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details string      `json:"details"`
	Meta    *model.Meta `json:"meta"`
}

func decodeEnvelope[T any](t *testing.T, resp *http.Response) envelope[T] {
	t.Helper()
	var env envelope[T]
	decodeBody(t, resp, &env)
	return env
}
