package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/event"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/google"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/metrics"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/token"
)

const loginSuccessMessage = "Login successful"

type AuthConfig struct {
	BcryptCost               int
	RequireEmailVerification bool
}

// AuthService resolves identities: password login, Google login and the
// per-request principal behind a bearer token.
type AuthService struct {
	users     UserStore
	codec     *token.Codec
	google    IdentityVerifier
	bus       event.Bus
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       AuthConfig
	dummyHash []byte
}

func NewAuthService(users UserStore, codec *token.Codec, verifier IdentityVerifier, bus event.Bus, m *metrics.Metrics, logger *slog.Logger, cfg AuthConfig) (*AuthService, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &AuthService{
		users:     users,
		codec:     codec,
		google:    verifier,
		bus:       bus,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		dummyHash: dummy,
	}, nil
}

// Login checks a username and password. Exactly one bcrypt comparison runs
// whether or not the user exists.
func (s *AuthService) Login(ctx context.Context, username string, password string, actor model.AuditActor) (model.LoginResponse, error) {
	username = strings.TrimSpace(username)

	user, err := s.users.FindByUsername(ctx, username)
	found := err == nil
	if err != nil && !errors.Is(err, model.ErrUserNotFound) {
		s.metrics.Login("password", metrics.OutcomeError)
		return model.LoginResponse{}, fmt.Errorf("load user: %w", err)
	}

	hash := s.dummyHash
	if found {
		hash = []byte(user.PasswordHash)
	}
	mismatch := bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil

	actor.Username = username
	switch {
	case !found:
		s.loginFailed(actor, "unknown_user", metrics.OutcomeInvalid)
		return model.LoginResponse{}, model.ErrInvalidCredentials
	case mismatch:
		actor.UserID = user.ID
		s.loginFailed(actor, "wrong_password", metrics.OutcomeInvalid)
		return model.LoginResponse{}, model.ErrInvalidCredentials
	case s.cfg.RequireEmailVerification && !user.EmailVerified:
		actor.UserID = user.ID
		s.loginFailed(actor, "email_not_verified", metrics.OutcomeNotVerified)
		return model.LoginResponse{}, model.ErrEmailNotVerified
	case !user.Enabled:
		actor.UserID = user.ID
		s.loginFailed(actor, "account_disabled", metrics.OutcomeDisabled)
		return model.LoginResponse{}, model.ErrAccountDisabled
	}

	signed, err := s.codec.Issue(user.ID, user.Role)
	if err != nil {
		s.metrics.Login("password", metrics.OutcomeError)
		return model.LoginResponse{}, fmt.Errorf("issue token: %w", err)
	}

	s.metrics.Login("password", metrics.OutcomeSuccess)
	s.metrics.TokenIssued()
	actor.UserID = user.ID
	actor.Role = string(user.Role)
	publish(s.bus, actorEvent(event.TypeLoginSucceeded, actor))

	return model.LoginResponse{Message: loginSuccessMessage, Token: signed, Role: user.Role}, nil
}

func (s *AuthService) loginFailed(actor model.AuditActor, reason string, outcome string) {
	s.logger.Info("login rejected", "username", actor.Username, "reason", reason, "ip", actor.IP)
	s.metrics.Login("password", outcome)

	e := actorEvent(event.TypeLoginFailed, actor)
	e.Error = reason
	publish(s.bus, e)
}

// GoogleLogin verifies a Google ID token and signs in the matching account,
// creating it on first use.
func (s *AuthService) GoogleLogin(ctx context.Context, credential string, actor model.AuditActor) (model.TokenResponse, error) {
	if s.google == nil {
		return model.TokenResponse{}, fmt.Errorf("%w: %w", model.ErrExternalTokenInvalid, google.ErrNotConfigured)
	}

	identity, err := s.google.Verify(ctx, credential)
	if err != nil {
		s.logger.Info("google credential rejected", "error", err, "ip", actor.IP)
		s.metrics.Login("google", metrics.OutcomeExternalRejected)
		e := actorEvent(event.TypeGoogleLoginFailed, actor)
		e.Error = err.Error()
		publish(s.bus, e)
		return model.TokenResponse{}, err
	}

	user, err := s.resolveGoogleUser(ctx, identity, actor)
	if err != nil {
		s.metrics.Login("google", metrics.OutcomeError)
		return model.TokenResponse{}, err
	}

	actor.UserID = user.ID
	actor.Username = user.Username
	actor.Role = string(user.Role)

	if !user.Enabled {
		s.metrics.Login("google", metrics.OutcomeDisabled)
		e := actorEvent(event.TypeGoogleLoginFailed, actor)
		e.Error = "account_disabled"
		publish(s.bus, e)
		return model.TokenResponse{}, model.ErrAccountDisabled
	}

	signed, err := s.codec.Issue(user.ID, user.Role)
	if err != nil {
		s.metrics.Login("google", metrics.OutcomeError)
		return model.TokenResponse{}, fmt.Errorf("issue token: %w", err)
	}

	s.metrics.Login("google", metrics.OutcomeSuccess)
	s.metrics.TokenIssued()
	publish(s.bus, actorEvent(event.TypeGoogleLoginSucceeded, actor))

	return model.TokenResponse{Token: signed}, nil
}

// resolveGoogleUser looks the identity up by email, then by a username equal
// to the email, and creates the account when neither exists. A concurrent
// create for the same email surfaces as a duplicate and is resolved by
// looking the winner up again.
func (s *AuthService) resolveGoogleUser(ctx context.Context, identity model.ExternalIdentity, actor model.AuditActor) (model.User, error) {
	user, found, err := s.findGoogleUser(ctx, identity.Email)
	if err != nil || found {
		return user, err
	}

	hash, err := hashPassword(uuid.NewString(), s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, err
	}

	now := time.Now().UTC()
	user = model.User{
		ID:            uuid.NewString(),
		Username:      identity.Email,
		Email:         identity.Email,
		PasswordHash:  hash,
		Role:          model.RoleUser,
		Enabled:       true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.users.Create(ctx, user)
	if errors.Is(err, model.ErrDuplicateUser) {
		existing, found, findErr := s.findGoogleUser(ctx, identity.Email)
		if findErr != nil {
			return model.User{}, findErr
		}
		if !found {
			return model.User{}, fmt.Errorf("resolve google user %q: %w", identity.Email, err)
		}
		return existing, nil
	}
	if err != nil {
		return model.User{}, fmt.Errorf("create google user: %w", err)
	}

	s.logger.Info("created account from google sign-in", "username", user.Username)
	s.metrics.UserCreated("google")
	actor.UserID = user.ID
	actor.Username = user.Username
	actor.Role = string(user.Role)
	e := actorEvent(event.TypeGoogleUserCreated, actor)
	e.Resource = user.ID
	publish(s.bus, e)

	return user, nil
}

// findGoogleUser only matches accounts whose email has been confirmed, so an
// address typed into a profile cannot claim someone else's Google identity.
// A username equal to the email matches only when the account carries no
// other email.
func (s *AuthService) findGoogleUser(ctx context.Context, email string) (model.User, bool, error) {
	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil && user.EmailVerified:
		return user, true, nil
	case err == nil:
		s.logger.Warn("google email held by unverified account", "user_id", user.ID)
	case !errors.Is(err, model.ErrUserNotFound):
		return model.User{}, false, fmt.Errorf("find user by email: %w", err)
	}

	user, err = s.users.FindByUsername(ctx, email)
	if err == nil {
		if user.EmailVerified && (user.Email == "" || strings.EqualFold(user.Email, email)) {
			return user, true, nil
		}
		return model.User{}, false, nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return model.User{}, false, fmt.Errorf("find user by username: %w", err)
	}

	return model.User{}, false, nil
}

// ResolvePrincipal turns a bearer token into the principal for this request.
// The subject is the immutable user id and the role comes from the store,
// not from the token.
func (s *AuthService) ResolvePrincipal(ctx context.Context, raw string) (model.Principal, error) {
	claims, err := s.codec.Parse(raw)
	if err != nil {
		return model.Principal{}, err
	}
	if err := uuid.Validate(claims.Subject); err != nil {
		return model.Principal{}, fmt.Errorf("%w: subject is not a user id", model.ErrInvalidToken)
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.Principal{}, fmt.Errorf("%w: subject %q no longer exists", model.ErrInvalidToken, claims.Subject)
	}
	if err != nil {
		return model.Principal{}, fmt.Errorf("load principal: %w", err)
	}

	if !user.Enabled {
		return model.Principal{}, fmt.Errorf("%w: subject %q", model.ErrAccountDisabled, claims.Subject)
	}

	return model.NewPrincipal(user), nil
}
