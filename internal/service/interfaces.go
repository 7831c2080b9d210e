package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
)

// UserStore is the credential store. Username and non-empty email are unique
// case-insensitively; Create and Update report collisions as
// model.ErrDuplicateUser.
type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.User) error
	Update(ctx context.Context, u model.User) error
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.User, error)
}

type ActionTokenStore interface {
	Save(ctx context.Context, t model.ActionToken) error
	Find(ctx context.Context, tokenHash string) (model.ActionToken, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteForUser(ctx context.Context, userID string, kind model.ActionKind) error
	CleanExpired(ctx context.Context) (int64, error)
}

type BikeStore interface {
	List(ctx context.Context) ([]model.Bike, error)
	FindByID(ctx context.Context, id int64) (model.Bike, error)
	Create(ctx context.Context, b model.Bike) (model.Bike, error)
	Update(ctx context.Context, b model.Bike) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

type CartStore interface {
	Items(ctx context.Context, userID string) ([]model.CartItem, error)
	Put(ctx context.Context, userID string, bikeID int64, quantity int, addedAt time.Time) error
	Remove(ctx context.Context, userID string, bikeID int64) error
}

// OrderStore.Place must persist the order and empty the owner's cart atomically.
type OrderStore interface {
	Place(ctx context.Context, o model.Order) (model.Order, error)
	ListByUser(ctx context.Context, userID string) ([]model.Order, error)
	ListAll(ctx context.Context) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	Delete(ctx context.Context, id int64) error
}

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

type Mailer interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

// IdentityVerifier checks a third-party ID token and returns the identity it
// asserts. Any failure is reported as model.ErrExternalTokenInvalid.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (model.ExternalIdentity, error)
}
