package service

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/repository"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/service/mocks"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

type sentMail struct {
	to      string
	subject string
	body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(_ context.Context, to string, subject string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// lastToken extracts the raw token from the link in the most recent message.
func (m *recordingMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	require.NotEmpty(t, m.sent, "no mail was sent")
	body := m.sent[len(m.sent)-1].body
	_, rest, ok := strings.Cut(body, "token=")
	require.True(t, ok, "mail body has no token link")
	encoded, _, _ := strings.Cut(rest, "\n")
	raw, err := url.QueryUnescape(encoded)
	require.NoError(t, err)
	return raw
}

type accountFixture struct {
	users  *repository.MemoryUserRepository
	tokens *repository.MemoryActionTokenRepository
	mailer *recordingMailer
	svc    *AccountService
}

func newAccountFixture(t *testing.T, requireVerification bool) *accountFixture {
	t.Helper()

	f := &accountFixture{
		users:  repository.NewMemoryUserRepository(),
		tokens: repository.NewMemoryActionTokenRepository(),
		mailer: &recordingMailer{},
	}
	f.svc = NewAccountService(f.users, f.tokens, f.mailer, nil, nil, discardLogger(), AccountConfig{
		BcryptCost:               bcrypt.MinCost,
		RequireEmailVerification: requireVerification,
		FrontendURL:              "http://shop.test",
	})
	return f
}

func validRegistration() model.RegisterRequest {
	return model.RegisterRequest{
		Username: "alice",
		Password: "Passw0rdX",
		Email:    "alice@example.com",
		Phone:    "0900000000",
		Address:  "12 Ride Lane",
	}
}

func requireBadRequest(t *testing.T, err error, message string) {
	t.Helper()

	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr), "expected an API error, got %v", err)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	if message != "" {
		assert.Equal(t, message, apiErr.Message)
	}
}

func TestAccountServiceRegisterValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*model.RegisterRequest)
		message string
	}{
		{name: "missing username", mutate: func(r *model.RegisterRequest) { r.Username = "  " }, message: "Username is required"},
		{name: "missing email", mutate: func(r *model.RegisterRequest) { r.Email = "" }, message: "Email is required"},
		{name: "malformed email", mutate: func(r *model.RegisterRequest) { r.Email = "alice.example.com" }, message: "Invalid email format"},
		{name: "short password", mutate: func(r *model.RegisterRequest) { r.Password = "Ab1" }},
		{name: "long password", mutate: func(r *model.RegisterRequest) { r.Password = "Abcdefghijk12" }},
		{name: "password without digit", mutate: func(r *model.RegisterRequest) { r.Password = "Password" }},
		{name: "password without upper", mutate: func(r *model.RegisterRequest) { r.Password = "passw0rd" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newAccountFixture(t, true)
			req := validRegistration()
			tc.mutate(&req)

			_, err := f.svc.Register(context.Background(), req, model.AuditActor{})
			requireBadRequest(t, err, tc.message)
			assert.Zero(t, f.mailer.count())
		})
	}
}

func TestAccountServiceRegisterRejectsTakenIdentity(t *testing.T) {
	t.Parallel()

	f := newAccountFixture(t, true)
	seedUser(t, f.users, "alice", func(u *model.User) { u.Email = "first@example.com" })
	seedUser(t, f.users, "other", func(u *model.User) { u.Email = "ALICE@example.com" })

	_, err := f.svc.Register(context.Background(), validRegistration(), model.AuditActor{})
	requireBadRequest(t, err, "Username already exists")

	req := validRegistration()
	req.Username = "alice2"
	_, err = f.svc.Register(context.Background(), req, model.AuditActor{})
	requireBadRequest(t, err, "Email already exists")
}

func TestAccountServiceRegisterAndVerify(t *testing.T) {
	t.Parallel()

	f := newAccountFixture(t, true)
	ctx := context.Background()

	resp, err := f.svc.Register(ctx, validRegistration(), model.AuditActor{})
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "verify")

	created, err := f.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, created.Enabled)
	assert.False(t, created.EmailVerified)
	assert.Equal(t, model.RoleUser, created.Role)
	assert.Equal(t, "12 Ride Lane", created.Address)

	require.Equal(t, 1, f.mailer.count())
	assert.Equal(t, "alice@example.com", f.mailer.sent[0].to)
	assert.Contains(t, f.mailer.sent[0].body, "http://shop.test/verify-email?token=")

	raw := f.mailer.lastToken(t)
	_, err = f.tokens.Find(ctx, raw)
	require.ErrorIs(t, err, model.ErrTokenNotFound, "only the hash is stored")

	_, err = f.svc.VerifyEmail(ctx, raw, model.AuditActor{})
	require.NoError(t, err)

	verified, err := f.users.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, verified.Enabled)
	assert.True(t, verified.EmailVerified)

	_, err = f.svc.VerifyEmail(ctx, raw, model.AuditActor{})
	requireBadRequest(t, err, "Invalid verification token")
}

func TestAccountServiceRegisterWithoutVerification(t *testing.T) {
	t.Parallel()

	f := newAccountFixture(t, false)

	resp, err := f.svc.Register(context.Background(), validRegistration(), model.AuditActor{})
	require.NoError(t, err)
	assert.Equal(t, "Registration successful", resp.Message)
	assert.Zero(t, f.mailer.count())

	created, err := f.users.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, created.Enabled)
}

func TestAccountServiceRegisterRollsBackWhenMailFails(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mailer := mocks.NewMockMailer(ctrl)
	mailer.EXPECT().
		Send(gomock.Any(), "alice@example.com", gomock.Any(), gomock.Any()).
		Return(errors.New("smtp: connection refused"))

	users := repository.NewMemoryUserRepository()
	tokens := repository.NewMemoryActionTokenRepository()
	svc := NewAccountService(users, tokens, mailer, nil, nil, discardLogger(), AccountConfig{
		BcryptCost:               bcrypt.MinCost,
		RequireEmailVerification: true,
	})

	_, err := svc.Register(context.Background(), validRegistration(), model.AuditActor{})
	require.ErrorIs(t, err, model.ErrMailDelivery)

	exists, err := users.ExistsByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	removed, err := tokens.CleanExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestAccountServiceVerifyExpiredToken(t *testing.T) {
	t.Parallel()

	f := newAccountFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegistration(), model.AuditActor{})
	require.NoError(t, err)
	raw := f.mailer.lastToken(t)

	f.svc.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }

	_, err = f.svc.VerifyEmail(ctx, raw, model.AuditActor{})
	requireBadRequest(t, err, "Verification token has expired")

	_, err = f.tokens.Find(ctx, hashToken(raw))
	require.ErrorIs(t, err, model.ErrTokenNotFound, "expired tokens are deleted on use")
}

func TestAccountServicePasswordReset(t *testing.T) {
	t.Parallel()

	f := newAccountFixture(t, true)
	ctx := context.Background()
	bob := seedUser(t, f.users, "bob", nil)

	resp, err := f.svc.RequestPasswordReset(ctx, "nobody@example.com", model.AuditActor{})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Zero(t, f.mailer.count(), "unknown emails get the same answer and no mail")

	unknownMessage := resp.Message

	resp, err = f.svc.RequestPasswordReset(ctx, bob.Email, model.AuditActor{})
	require.NoError(t, err)
	assert.Equal(t, unknownMessage, resp.Message)
	first := f.mailer.lastToken(t)

	_, err = f.svc.RequestPasswordReset(ctx, bob.Email, model.AuditActor{})
	require.NoError(t, err)
	second := f.mailer.lastToken(t)

	_, err = f.svc.ConfirmPasswordReset(ctx, first, "NewPassw0rd", model.AuditActor{})
	requireBadRequest(t, err, "Invalid or expired reset token")

	_, err = f.svc.ConfirmPasswordReset(ctx, second, "weak", model.AuditActor{})
	requireBadRequest(t, err, "")

	done, err := f.svc.ConfirmPasswordReset(ctx, second, "NewPassw0rd", model.AuditActor{})
	require.NoError(t, err)
	assert.True(t, done.Success)

	updated, err := f.users.FindByID(ctx, bob.ID)
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte("NewPassw0rd")))

	_, err = f.svc.ConfirmPasswordReset(ctx, second, "NewPassw0rd", model.AuditActor{})
	requireBadRequest(t, err, "Invalid or expired reset token")
}

func TestAccountServiceResetTokenIsNotAVerificationToken(t *testing.T) {
	t.Parallel()

	f := newAccountFixture(t, true)
	ctx := context.Background()
	bob := seedUser(t, f.users, "bob", func(u *model.User) { u.EmailVerified = false })

	_, err := f.svc.RequestPasswordReset(ctx, bob.Email, model.AuditActor{})
	require.NoError(t, err)

	_, err = f.svc.VerifyEmail(ctx, f.mailer.lastToken(t), model.AuditActor{})
	requireBadRequest(t, err, "Invalid verification token")
}

func TestAccountServiceResetMailFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mailer := mocks.NewMockMailer(ctrl)
	mailer.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("timeout"))

	users := repository.NewMemoryUserRepository()
	bob := seedUser(t, users, "bob", nil)
	svc := NewAccountService(users, repository.NewMemoryActionTokenRepository(), mailer, nil, nil, discardLogger(), AccountConfig{BcryptCost: bcrypt.MinCost})

	_, err := svc.RequestPasswordReset(context.Background(), bob.Email, model.AuditActor{})
	require.ErrorIs(t, err, model.ErrMailDelivery)
}

func TestAccountServiceCleanExpiredTokens(t *testing.T) {
	t.Parallel()

	f := newAccountFixture(t, true)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, f.tokens.Save(ctx, model.ActionToken{TokenHash: "old", Kind: model.ActionVerifyEmail, UserID: "u", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, f.tokens.Save(ctx, model.ActionToken{TokenHash: "new", Kind: model.ActionVerifyEmail, UserID: "u", ExpiresAt: now.Add(time.Hour)}))

	removed, err := f.svc.CleanExpiredTokens(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}
