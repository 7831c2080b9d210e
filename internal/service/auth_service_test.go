package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/event"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/google"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/metrics"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/repository"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/service/mocks"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/token"
)

const testPassword = "Secret123"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCodec(t *testing.T) *token.Codec {
	t.Helper()
	keys, err := token.NewKeySet(map[string]string{"k1": "an-unguessable-test-secret-of-32b"}, "k1")
	require.NoError(t, err)
	return token.NewCodec(keys, token.DefaultTTL)
}

func seedUser(t *testing.T, users UserStore, username string, mutate func(*model.User)) model.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now().UTC()
	u := model.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         username + "@example.com",
		PasswordHash:  string(hash),
		Role:          model.RoleUser,
		Enabled:       true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(&u)
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

type authFixture struct {
	users    *repository.MemoryUserRepository
	codec    *token.Codec
	verifier *mocks.MockIdentityVerifier
	bus      *event.InMemoryBus
	svc      *AuthService
}

func newAuthFixture(t *testing.T, requireVerification bool) *authFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &authFixture{
		users:    repository.NewMemoryUserRepository(),
		codec:    newTestCodec(t),
		verifier: mocks.NewMockIdentityVerifier(ctrl),
		bus:      event.NewBus(discardLogger()),
	}

	svc, err := NewAuthService(f.users, f.codec, f.verifier, f.bus, metrics.New(), discardLogger(), AuthConfig{
		BcryptCost:               bcrypt.MinCost,
		RequireEmailVerification: requireVerification,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestAuthServiceLogin(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, true)
	seedUser(t, f.users, "bob", nil)
	seedUser(t, f.users, "dora", func(u *model.User) { u.Enabled = false })
	seedUser(t, f.users, "nova", func(u *model.User) { u.Enabled = false; u.EmailVerified = false })
	seedUser(t, f.users, "root", func(u *model.User) { u.Role = model.RoleAdmin })

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
		wantRole model.Role
	}{
		{name: "valid credentials", username: "bob", password: testPassword, wantRole: model.RoleUser},
		{name: "username is case-insensitive", username: " BOB ", password: testPassword, wantRole: model.RoleUser},
		{name: "admin gets admin role", username: "root", password: testPassword, wantRole: model.RoleAdmin},
		{name: "unknown user", username: "ghost", password: testPassword, wantErr: model.ErrInvalidCredentials},
		{name: "wrong password", username: "bob", password: "Secret124", wantErr: model.ErrInvalidCredentials},
		{name: "empty password", username: "bob", password: "", wantErr: model.ErrInvalidCredentials},
		{name: "disabled with correct password", username: "dora", password: testPassword, wantErr: model.ErrAccountDisabled},
		{name: "disabled with wrong password", username: "dora", password: "nope", wantErr: model.ErrInvalidCredentials},
		{name: "unverified email", username: "nova", password: testPassword, wantErr: model.ErrEmailNotVerified},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resp, err := f.svc.Login(context.Background(), tc.username, tc.password, model.AuditActor{IP: "203.0.113.7"})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, resp.Token)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "Login successful", resp.Message)
			assert.Equal(t, tc.wantRole, resp.Role)

			claims, err := f.codec.Parse(resp.Token)
			require.NoError(t, err)
			assert.Equal(t, tc.wantRole, claims.Role)
			assert.Equal(t, 10*time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt))
		})
	}
}

func TestAuthServiceLoginWithoutVerificationRequirement(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	seedUser(t, f.users, "nova", func(u *model.User) { u.EmailVerified = false })

	_, err := f.svc.Login(context.Background(), "nova", testPassword, model.AuditActor{})
	require.NoError(t, err)
}

func TestAuthServiceLoginPublishesAuditEvents(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, true)
	bob := seedUser(t, f.users, "bob", nil)
	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	_, err := f.svc.Login(context.Background(), "bob", "wrong", model.AuditActor{IP: "198.51.100.1"})
	require.ErrorIs(t, err, model.ErrInvalidCredentials)

	failed := <-events
	assert.Equal(t, event.TypeLoginFailed, failed.Type)
	assert.Equal(t, "wrong_password", failed.Error)
	assert.Equal(t, bob.ID, failed.ActorID)
	assert.Equal(t, "198.51.100.1", failed.ActorIP)

	_, err = f.svc.Login(context.Background(), "ghost", "wrong", model.AuditActor{})
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
	failed = <-events
	assert.Equal(t, "unknown_user", failed.Error)
	assert.Empty(t, failed.ActorID)

	_, err = f.svc.Login(context.Background(), "bob", testPassword, model.AuditActor{})
	require.NoError(t, err)
	ok := <-events
	assert.Equal(t, event.TypeLoginSucceeded, ok.Type)
	assert.Equal(t, "USER", ok.ActorRole)
}

func TestAuthServiceRegisterThenLoginRequiresVerification(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, true)
	tokens := repository.NewMemoryActionTokenRepository()
	mailer := &recordingMailer{}
	accounts := NewAccountService(f.users, tokens, mailer, f.bus, nil, discardLogger(), AccountConfig{
		BcryptCost:               bcrypt.MinCost,
		RequireEmailVerification: true,
		FrontendURL:              "http://shop.test",
	})
	ctx := context.Background()

	_, err := accounts.Register(ctx, model.RegisterRequest{Username: "alice", Password: "Passw0rdX", Email: "alice@example.com"}, model.AuditActor{})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "alice", "Passw0rdX", model.AuditActor{})
	require.ErrorIs(t, err, model.ErrEmailNotVerified)

	raw := mailer.lastToken(t)
	_, err = accounts.VerifyEmail(ctx, raw, model.AuditActor{})
	require.NoError(t, err)

	resp, err := f.svc.Login(ctx, "alice", "Passw0rdX", model.AuditActor{})
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, resp.Role)
}

func TestAuthServiceGoogleLogin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	identity := model.ExternalIdentity{Subject: "g-1", Email: "rider@gmail.com", EmailVerified: true}

	t.Run("creates an enabled verified account on first use", func(t *testing.T) {
		t.Parallel()

		f := newAuthFixture(t, true)
		f.verifier.EXPECT().Verify(gomock.Any(), "cred").Return(identity, nil).Times(2)

		first, err := f.svc.GoogleLogin(ctx, "cred", model.AuditActor{})
		require.NoError(t, err)
		second, err := f.svc.GoogleLogin(ctx, "cred", model.AuditActor{})
		require.NoError(t, err)

		users, err := f.users.List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		created := users[0]
		assert.Equal(t, "rider@gmail.com", created.Username)
		assert.Equal(t, "rider@gmail.com", created.Email)
		assert.True(t, created.Enabled)
		assert.True(t, created.EmailVerified)
		assert.Equal(t, model.RoleUser, created.Role)
		assert.NotEmpty(t, created.PasswordHash)

		for _, resp := range []model.TokenResponse{first, second} {
			claims, err := f.codec.Parse(resp.Token)
			require.NoError(t, err)
			assert.Equal(t, created.ID, claims.Subject)
		}
	})

	t.Run("matches an existing account by email", func(t *testing.T) {
		t.Parallel()

		f := newAuthFixture(t, true)
		existing := seedUser(t, f.users, "rider", func(u *model.User) {
			u.Email = "Rider@Gmail.com"
			u.Role = model.RoleAdmin
		})
		f.verifier.EXPECT().Verify(gomock.Any(), "cred").Return(identity, nil)

		resp, err := f.svc.GoogleLogin(ctx, "cred", model.AuditActor{})
		require.NoError(t, err)

		principal, err := f.svc.ResolvePrincipal(ctx, resp.Token)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, principal.UserID)
		assert.Equal(t, model.RoleAdmin, principal.Role)
	})

	t.Run("matches an existing account whose username is the email", func(t *testing.T) {
		t.Parallel()

		f := newAuthFixture(t, true)
		existing := seedUser(t, f.users, "rider@gmail.com", func(u *model.User) { u.Email = "" })
		f.verifier.EXPECT().Verify(gomock.Any(), "cred").Return(identity, nil)

		resp, err := f.svc.GoogleLogin(ctx, "cred", model.AuditActor{})
		require.NoError(t, err)

		principal, err := f.svc.ResolvePrincipal(ctx, resp.Token)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, principal.UserID)
	})

	t.Run("unverified email holder is not matched", func(t *testing.T) {
		t.Parallel()

		f := newAuthFixture(t, true)
		squatter := seedUser(t, f.users, "mallory", func(u *model.User) {
			u.Email = "rider@gmail.com"
			u.EmailVerified = false
		})
		seedUser(t, f.users, "rider@gmail.com", func(u *model.User) { u.Email = "other@example.com" })
		f.verifier.EXPECT().Verify(gomock.Any(), "cred").Return(identity, nil)

		resp, err := f.svc.GoogleLogin(ctx, "cred", model.AuditActor{})
		require.Error(t, err)
		assert.Empty(t, resp.Token)

		got, err := f.users.FindByID(ctx, squatter.ID)
		require.NoError(t, err)
		assert.False(t, got.EmailVerified)
	})

	t.Run("disabled account is refused", func(t *testing.T) {
		t.Parallel()

		f := newAuthFixture(t, true)
		seedUser(t, f.users, "rider", func(u *model.User) {
			u.Email = "rider@gmail.com"
			u.Enabled = false
		})
		f.verifier.EXPECT().Verify(gomock.Any(), "cred").Return(identity, nil)

		_, err := f.svc.GoogleLogin(ctx, "cred", model.AuditActor{})
		require.ErrorIs(t, err, model.ErrAccountDisabled)
	})

	t.Run("rejected credential creates nothing", func(t *testing.T) {
		t.Parallel()

		f := newAuthFixture(t, true)
		f.verifier.EXPECT().Verify(gomock.Any(), "forged").
			Return(model.ExternalIdentity{}, fmt.Errorf("%w: bad signature", model.ErrExternalTokenInvalid))

		_, err := f.svc.GoogleLogin(ctx, "forged", model.AuditActor{})
		require.ErrorIs(t, err, model.ErrExternalTokenInvalid)

		users, err := f.users.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("no verifier means not configured", func(t *testing.T) {
		t.Parallel()

		svc, err := NewAuthService(repository.NewMemoryUserRepository(), newTestCodec(t), nil, nil, nil, discardLogger(), AuthConfig{BcryptCost: bcrypt.MinCost})
		require.NoError(t, err)

		_, err = svc.GoogleLogin(ctx, "cred", model.AuditActor{})
		require.ErrorIs(t, err, google.ErrNotConfigured)
		require.ErrorIs(t, err, model.ErrExternalTokenInvalid)
	})
}

func TestAuthServiceGoogleLoginConcurrentFirstUse(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, true)
	f.verifier.EXPECT().Verify(gomock.Any(), "cred").
		Return(model.ExternalIdentity{Subject: "g-2", Email: "race@gmail.com", EmailVerified: true}, nil).
		AnyTimes()

	const callers = 16
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	start := make(chan struct{})

	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			resp, err := f.svc.GoogleLogin(context.Background(), "cred", model.AuditActor{})
			tokens[i], errs[i] = resp.Token, err
		}(i)
	}
	close(start)
	wg.Wait()

	users, err := f.users.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)

	for i := range callers {
		require.NoError(t, errs[i])
		principal, err := f.svc.ResolvePrincipal(context.Background(), tokens[i])
		require.NoError(t, err)
		assert.Equal(t, users[0].ID, principal.UserID)
	}
}

func TestAuthServiceGoogleLoginRetriesAfterDuplicate(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStore(ctrl)
	verifier := mocks.NewMockIdentityVerifier(ctrl)
	winner := model.User{ID: "winner", Username: "race@gmail.com", Email: "race@gmail.com", Role: model.RoleUser, Enabled: true, EmailVerified: true}

	verifier.EXPECT().Verify(gomock.Any(), "cred").
		Return(model.ExternalIdentity{Email: "race@gmail.com", EmailVerified: true}, nil)
	gomock.InOrder(
		users.EXPECT().FindByEmail(gomock.Any(), "race@gmail.com").Return(model.User{}, model.ErrUserNotFound),
		users.EXPECT().FindByUsername(gomock.Any(), "race@gmail.com").Return(model.User{}, model.ErrUserNotFound),
		users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(fmt.Errorf("create: %w", model.ErrDuplicateUser)),
		users.EXPECT().FindByEmail(gomock.Any(), "race@gmail.com").Return(winner, nil),
	)

	svc, err := NewAuthService(users, newTestCodec(t), verifier, nil, nil, discardLogger(), AuthConfig{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	resp, err := svc.GoogleLogin(context.Background(), "cred", model.AuditActor{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
}

func TestAuthServiceGoogleLoginStoreFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStore(ctrl)
	verifier := mocks.NewMockIdentityVerifier(ctrl)
	storeDown := errors.New("connection refused")

	verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(model.ExternalIdentity{Email: "x@gmail.com"}, nil)
	users.EXPECT().FindByEmail(gomock.Any(), "x@gmail.com").Return(model.User{}, storeDown)

	svc, err := NewAuthService(users, newTestCodec(t), verifier, nil, nil, discardLogger(), AuthConfig{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	_, err = svc.GoogleLogin(context.Background(), "cred", model.AuditActor{})
	require.ErrorIs(t, err, storeDown)
}

func TestAuthServiceResolvePrincipal(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, true)
	ctx := context.Background()
	bob := seedUser(t, f.users, "bob", nil)
	gone := seedUser(t, f.users, "gone", nil)
	dora := seedUser(t, f.users, "dora", nil)

	bobToken, err := f.codec.Issue(bob.ID, model.RoleUser)
	require.NoError(t, err)
	goneToken, err := f.codec.Issue(gone.ID, model.RoleUser)
	require.NoError(t, err)
	doraToken, err := f.codec.Issue(dora.ID, model.RoleUser)
	require.NoError(t, err)

	principal, err := f.svc.ResolvePrincipal(ctx, bobToken)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, principal.UserID)
	assert.Equal(t, []string{"ROLE_USER"}, principal.Authorities)

	bob.Role = model.RoleAdmin
	require.NoError(t, f.users.Update(ctx, bob))
	principal, err = f.svc.ResolvePrincipal(ctx, bobToken)
	require.NoError(t, err)
	assert.True(t, principal.IsAdmin(), "role is read from the store")

	require.NoError(t, f.users.Delete(ctx, gone.ID))
	_, err = f.svc.ResolvePrincipal(ctx, goneToken)
	require.ErrorIs(t, err, model.ErrInvalidToken)

	dora.Enabled = false
	require.NoError(t, f.users.Update(ctx, dora))
	_, err = f.svc.ResolvePrincipal(ctx, doraToken)
	require.ErrorIs(t, err, model.ErrAccountDisabled)

	_, err = f.svc.ResolvePrincipal(ctx, "not-a-token")
	require.ErrorIs(t, err, model.ErrInvalidToken)

	byName, err := f.codec.Issue("bob", model.RoleUser)
	require.NoError(t, err)
	_, err = f.svc.ResolvePrincipal(ctx, byName)
	require.ErrorIs(t, err, model.ErrInvalidToken, "a username subject does not resolve")
}

func TestAuthServiceTokenSurvivesRename(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, true)
	ctx := context.Background()
	alice := seedUser(t, f.users, "alice", nil)

	resp, err := f.svc.Login(ctx, "alice", testPassword, model.AuditActor{})
	require.NoError(t, err)

	alice.Username = "alice-old"
	require.NoError(t, f.users.Update(ctx, alice))
	impostor := seedUser(t, f.users, "alice", func(u *model.User) {
		u.Email = "new-alice@example.com"
		u.Role = model.RoleAdmin
	})

	principal, err := f.svc.ResolvePrincipal(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, principal.UserID)
	assert.NotEqual(t, impostor.ID, principal.UserID)
	assert.False(t, principal.IsAdmin())
}
