package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/event"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/mail"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/metrics"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

const (
	registeredVerifyMessage = "Registration successful. Please check your email to verify your account."
	registeredMessage       = "Registration successful"
	verifiedMessage         = "Email verified successfully. You can now log in."
	resetRequestedMessage   = "If an account exists for that email, a password reset link has been sent."
	resetCompletedMessage   = "Password has been reset successfully."
)

type AccountConfig struct {
	BcryptCost               int
	RequireEmailVerification bool
	VerificationTokenTTL     time.Duration
	ResetTokenTTL            time.Duration
	FrontendURL              string
}

// AccountService covers self-service account lifecycle: registration, email
// verification and password reset.
type AccountService struct {
	users   UserStore
	tokens  ActionTokenStore
	mailer  Mailer
	bus     event.Bus
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     AccountConfig
	now     func() time.Time
}

func NewAccountService(users UserStore, tokens ActionTokenStore, mailer Mailer, bus event.Bus, m *metrics.Metrics, logger *slog.Logger, cfg AccountConfig) *AccountService {
	if cfg.VerificationTokenTTL <= 0 {
		cfg.VerificationTokenTTL = 24 * time.Hour
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		users:   users,
		tokens:  tokens,
		mailer:  mailer,
		bus:     bus,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *AccountService) Register(ctx context.Context, req model.RegisterRequest, actor model.AuditActor) (model.MessageResponse, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)

	if username == "" {
		return model.MessageResponse{}, apierror.BadRequest("Username is required", "username")
	}
	if email == "" {
		return model.MessageResponse{}, apierror.BadRequest("Email is required", "email")
	}
	if !validEmail(email) {
		return model.MessageResponse{}, apierror.BadRequest("Invalid email format", "email")
	}
	if err := validatePassword(req.Password); err != nil {
		return model.MessageResponse{}, err
	}

	taken, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return model.MessageResponse{}, err
	}
	if taken {
		return model.MessageResponse{}, apierror.BadRequest("Username already exists", "username")
	}
	taken, err = s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return model.MessageResponse{}, err
	}
	if taken {
		return model.MessageResponse{}, apierror.BadRequest("Email already exists", "email")
	}

	hash, err := hashPassword(req.Password, s.cfg.BcryptCost)
	if err != nil {
		return model.MessageResponse{}, err
	}

	now := s.now()
	active := !s.cfg.RequireEmailVerification
	user := model.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		Role:          model.RoleUser,
		Enabled:       active,
		EmailVerified: active,
		Phone:         strings.TrimSpace(req.Phone),
		Address:       strings.TrimSpace(req.Address),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrDuplicateUser) {
			return model.MessageResponse{}, apierror.BadRequest("Username or email already exists", "")
		}
		return model.MessageResponse{}, err
	}

	if s.cfg.RequireEmailVerification {
		if err := s.SendVerification(ctx, user); err != nil {
			if delErr := s.users.Delete(ctx, user.ID); delErr != nil && !errors.Is(delErr, model.ErrUserNotFound) {
				s.logger.Error("rollback registration failed", "user_id", user.ID, "error", delErr)
			}
			return model.MessageResponse{}, err
		}
	}

	s.metrics.UserCreated("register")
	actor.UserID = user.ID
	actor.Username = user.Username
	actor.Role = string(user.Role)
	e := actorEvent(event.TypeUserRegistered, actor)
	e.Resource = user.ID
	publish(s.bus, e)

	if s.cfg.RequireEmailVerification {
		return model.MessageResponse{Message: registeredVerifyMessage}, nil
	}
	return model.MessageResponse{Message: registeredMessage}, nil
}

// SendVerification stores a verification token and mails it to user.Email.
// When delivery fails the token is removed again and model.ErrMailDelivery is
// returned.
func (s *AccountService) SendVerification(ctx context.Context, user model.User) error {
	raw, hash := newRawToken()
	now := s.now()
	tok := model.ActionToken{
		TokenHash: hash,
		Kind:      model.ActionVerifyEmail,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.cfg.VerificationTokenTTL),
		CreatedAt: now,
	}
	if err := s.tokens.Save(ctx, tok); err != nil {
		return err
	}

	subject, body := mail.VerificationMessage(s.cfg.FrontendURL, raw)
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		s.logger.Error("verification email failed", "user_id", user.ID, "error", err)
		_ = s.tokens.Delete(ctx, hash)
		return fmt.Errorf("%w: %w", model.ErrMailDelivery, err)
	}

	s.metrics.ActionTokenIssued(string(model.ActionVerifyEmail))
	return nil
}

func (s *AccountService) VerifyEmail(ctx context.Context, rawToken string, actor model.AuditActor) (model.MessageResponse, error) {
	tok, err := s.consumableToken(ctx, rawToken, model.ActionVerifyEmail, "Invalid verification token", "Verification token has expired")
	if err != nil {
		return model.MessageResponse{}, err
	}

	user, err := s.users.FindByID(ctx, tok.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		_ = s.tokens.Delete(ctx, tok.TokenHash)
		return model.MessageResponse{}, apierror.BadRequest("Invalid verification token", "")
	}
	if err != nil {
		return model.MessageResponse{}, err
	}

	user.EmailVerified = true
	user.Enabled = true
	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		return model.MessageResponse{}, err
	}
	if err := s.tokens.Delete(ctx, tok.TokenHash); err != nil {
		s.logger.Warn("delete used verification token", "error", err)
	}

	actor.UserID = user.ID
	actor.Username = user.Username
	actor.Role = string(user.Role)
	publish(s.bus, actorEvent(event.TypeEmailVerified, actor))

	return model.MessageResponse{Message: verifiedMessage}, nil
}

// RequestPasswordReset answers the same way whether or not the email is
// registered.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string, actor model.AuditActor) (model.ResetResponse, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return model.ResetResponse{}, apierror.BadRequest("Email is required", "email")
	}

	ok := model.ResetResponse{Success: true, Message: resetRequestedMessage}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		s.logger.Info("password reset requested for unknown email", "ip", actor.IP)
		e := actorEvent(event.TypePasswordResetRequested, actor)
		e.Error = "unknown_email"
		publish(s.bus, e)
		return ok, nil
	}
	if err != nil {
		return model.ResetResponse{}, err
	}

	if err := s.tokens.DeleteForUser(ctx, user.ID, model.ActionPasswordReset); err != nil {
		return model.ResetResponse{}, err
	}

	raw, hash := newRawToken()
	now := s.now()
	if err := s.tokens.Save(ctx, model.ActionToken{
		TokenHash: hash,
		Kind:      model.ActionPasswordReset,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.cfg.ResetTokenTTL),
		CreatedAt: now,
	}); err != nil {
		return model.ResetResponse{}, err
	}

	subject, body := mail.PasswordResetMessage(s.cfg.FrontendURL, raw)
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		s.logger.Error("password reset email failed", "user_id", user.ID, "error", err)
		_ = s.tokens.Delete(ctx, hash)
		return model.ResetResponse{}, fmt.Errorf("%w: %w", model.ErrMailDelivery, err)
	}

	s.metrics.ActionTokenIssued(string(model.ActionPasswordReset))
	actor.UserID = user.ID
	actor.Username = user.Username
	publish(s.bus, actorEvent(event.TypePasswordResetRequested, actor))

	return ok, nil
}

func (s *AccountService) ConfirmPasswordReset(ctx context.Context, rawToken string, password string, actor model.AuditActor) (model.ResetResponse, error) {
	if strings.TrimSpace(password) == "" {
		return model.ResetResponse{}, apierror.BadRequest("Password is required", "password")
	}

	tok, err := s.consumableToken(ctx, rawToken, model.ActionPasswordReset, "Invalid or expired reset token", "Invalid or expired reset token")
	if err != nil {
		return model.ResetResponse{}, err
	}

	if err := validatePassword(password); err != nil {
		return model.ResetResponse{}, err
	}

	hash, err := hashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return model.ResetResponse{}, err
	}

	if err := s.users.UpdatePassword(ctx, tok.UserID, hash); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.ResetResponse{}, apierror.BadRequest("Invalid or expired reset token", "")
		}
		return model.ResetResponse{}, err
	}
	if err := s.tokens.DeleteForUser(ctx, tok.UserID, model.ActionPasswordReset); err != nil {
		s.logger.Warn("delete used reset tokens", "error", err)
	}

	actor.UserID = tok.UserID
	publish(s.bus, actorEvent(event.TypePasswordResetCompleted, actor))

	return model.ResetResponse{Success: true, Message: resetCompletedMessage}, nil
}

// consumableToken loads an emailed token of the given kind. Expired tokens
// are deleted and rejected.
func (s *AccountService) consumableToken(ctx context.Context, raw string, kind model.ActionKind, invalidMsg string, expiredMsg string) (model.ActionToken, error) {
	if strings.TrimSpace(raw) == "" {
		return model.ActionToken{}, apierror.BadRequest("Token is required", "token")
	}

	tok, err := s.tokens.Find(ctx, hashToken(raw))
	if errors.Is(err, model.ErrTokenNotFound) {
		return model.ActionToken{}, apierror.BadRequest(invalidMsg, "")
	}
	if err != nil {
		return model.ActionToken{}, err
	}
	if tok.Kind != kind {
		return model.ActionToken{}, apierror.BadRequest(invalidMsg, "")
	}

	if !s.now().Before(tok.ExpiresAt) {
		if err := s.tokens.Delete(ctx, tok.TokenHash); err != nil {
			s.logger.Warn("delete expired token", "error", err)
		}
		return model.ActionToken{}, apierror.BadRequest(expiredMsg, "")
	}

	return tok, nil
}

// CleanExpiredTokens removes emailed tokens past their expiry.
func (s *AccountService) CleanExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokens.CleanExpired(ctx)
}
