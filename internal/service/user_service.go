package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/event"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

// VerificationSender mails a verification link to the user's current email.
type VerificationSender interface {
	SendVerification(ctx context.Context, user model.User) error
}

// UserService serves the acting user's profile and admin account management.
type UserService struct {
	users      UserStore
	verifier   VerificationSender
	bus        event.Bus
	bcryptCost int
}

// NewUserService wires the service. verifier may be nil, in which case a
// changed email is marked unverified without sending mail.
func NewUserService(users UserStore, verifier VerificationSender, bus event.Bus, bcryptCost int) *UserService {
	return &UserService{users: users, verifier: verifier, bus: bus, bcryptCost: bcryptCost}
}

func (s *UserService) Profile(ctx context.Context, userID string) (model.User, error) {
	return s.users.FindByID(ctx, userID)
}

// UpdateProfile applies the non-nil fields of update to the acting user.
// A changed email loses its verified flag until the new address is confirmed.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	previous := user

	emailChanged := false
	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		if email == "" || !validEmail(email) {
			return apierror.BadRequest("Invalid email format", "email")
		}
		if !strings.EqualFold(email, user.Email) {
			emailChanged = true
			user.EmailVerified = false
		}
		user.Email = email
	}
	if update.Phone != nil {
		user.Phone = strings.TrimSpace(*update.Phone)
	}
	if update.Address != nil {
		user.Address = strings.TrimSpace(*update.Address)
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, model.ErrDuplicateUser) {
			return apierror.BadRequest("Email already exists", "email")
		}
		return err
	}

	if emailChanged && s.verifier != nil {
		if err := s.verifier.SendVerification(ctx, user); err != nil {
			if restoreErr := s.users.Update(ctx, previous); restoreErr != nil {
				return errors.Join(err, restoreErr)
			}
			return err
		}
	}
	return nil
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) Create(ctx context.Context, req model.AdminUserRequest, actor model.AuditActor) (model.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return model.User{}, apierror.BadRequest("Username is required", "username")
	}
	if strings.TrimSpace(req.Password) == "" {
		return model.User{}, apierror.BadRequest("Password is required", "password")
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !validEmail(email) {
		return model.User{}, apierror.BadRequest("Invalid email format", "email")
	}

	hash, err := hashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return model.User{}, err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		Role:          model.ParseRole(req.Role),
		Enabled:       boolOr(req.Enabled, true),
		EmailVerified: boolOr(req.EmailVerified, true),
		Phone:         strings.TrimSpace(req.Phone),
		Address:       strings.TrimSpace(req.Address),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrDuplicateUser) {
			return model.User{}, apierror.BadRequest("Username or email already exists", "")
		}
		return model.User{}, err
	}

	s.changed(actor, user.ID, "created")
	return user, nil
}

// Update replaces the editable fields. A blank password keeps the stored hash.
func (s *UserService) Update(ctx context.Context, id string, req model.AdminUserRequest, actor model.AuditActor) (model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}

	if username := strings.TrimSpace(req.Username); username != "" {
		user.Username = username
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !validEmail(email) {
		return model.User{}, apierror.BadRequest("Invalid email format", "email")
	}
	user.Email = email
	if strings.TrimSpace(req.Role) != "" {
		user.Role = model.ParseRole(req.Role)
	}
	user.Enabled = boolOr(req.Enabled, user.Enabled)
	user.EmailVerified = boolOr(req.EmailVerified, user.EmailVerified)
	user.Phone = strings.TrimSpace(req.Phone)
	user.Address = strings.TrimSpace(req.Address)
	user.UpdatedAt = time.Now().UTC()

	if strings.TrimSpace(req.Password) != "" {
		hash, err := hashPassword(req.Password, s.bcryptCost)
		if err != nil {
			return model.User{}, err
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, model.ErrDuplicateUser) {
			return model.User{}, apierror.BadRequest("Username or email already exists", "")
		}
		return model.User{}, err
	}

	s.changed(actor, user.ID, "updated")
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, id string, actor model.AuditActor) error {
	if id == actor.UserID {
		return apierror.BadRequest("You cannot delete your own account", "")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(actor, id, "deleted")
	return nil
}

func (s *UserService) changed(actor model.AuditActor, userID string, what string) {
	e := actorEvent(event.TypeUserChanged, actor)
	e.Resource = userID
	e.Payload = map[string]string{"change": what}
	publish(s.bus, e)
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
