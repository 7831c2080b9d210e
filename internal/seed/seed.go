// Package seed loads the starter catalog and the bootstrap admin account.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/service"
)

//go:embed bikes.yaml
var bikesYAML []byte

type Admin struct {
	Username   string
	Password   string
	Email      string
	BcryptCost int
}

// Catalog parses the embedded starter bikes.
func Catalog() ([]model.Bike, error) {
	var bikes []model.Bike
	if err := yaml.Unmarshal(bikesYAML, &bikes); err != nil {
		return nil, fmt.Errorf("parse bikes.yaml: %w", err)
	}
	return bikes, nil
}

// Bikes fills an empty catalog and reports how many bikes were added.
func Bikes(ctx context.Context, store service.BikeStore) (int, error) {
	count, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count bikes: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	bikes, err := Catalog()
	if err != nil {
		return 0, err
	}

	for _, b := range bikes {
		if _, err := store.Create(ctx, b); err != nil {
			return 0, fmt.Errorf("create bike %q: %w", b.Name, err)
		}
	}
	return len(bikes), nil
}

// AdminUser creates the admin account unless the username is already taken.
// It reports whether a user was created.
func AdminUser(ctx context.Context, store service.UserStore, admin Admin) (bool, error) {
	username := strings.TrimSpace(admin.Username)
	if username == "" || admin.Password == "" {
		return false, nil
	}

	exists, err := store.ExistsByUsername(ctx, username)
	if err != nil {
		return false, fmt.Errorf("check admin user: %w", err)
	}
	if exists {
		return false, nil
	}

	cost := admin.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), cost)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now().UTC()
	err = store.Create(ctx, model.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         strings.TrimSpace(admin.Email),
		PasswordHash:  string(hash),
		Role:          model.RoleAdmin,
		Enabled:       true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return false, fmt.Errorf("create admin user: %w", err)
	}
	return true, nil
}

// Run seeds both the catalog and the admin account.
func Run(ctx context.Context, bikes service.BikeStore, users service.UserStore, admin Admin, logger *slog.Logger) error {
	added, err := Bikes(ctx, bikes)
	if err != nil {
		return err
	}
	if added > 0 {
		logger.Info("seeded bike catalog", "bikes", added)
	}

	created, err := AdminUser(ctx, users, admin)
	if err != nil {
		return err
	}
	if created {
		logger.Info("created admin user", "username", admin.Username)
	}
	return nil
}
