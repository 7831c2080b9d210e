package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/config"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/repository"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/seed"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/service"
)

type healthChecker interface {
	Health(ctx context.Context) error
}

// stores bundles the persistence the services run on. health is nil for
// the in-memory backend.
type stores struct {
	users  service.UserStore
	tokens service.ActionTokenStore
	bikes  service.BikeStore
	cart   service.CartStore
	orders service.OrderStore
	audit  service.AuditStore
	health healthChecker
	close  func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.StoreBackend == config.StoreMemory {
		return openMemoryStores(ctx, cfg, logger)
	}

	db, err := Migrate(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	pool := db.Pool
	return &stores{
		users:  repository.NewUserRepository(pool),
		tokens: repository.NewActionTokenRepository(pool),
		bikes:  repository.NewBikeRepository(pool),
		cart:   repository.NewCartRepository(pool),
		orders: repository.NewOrderRepository(pool),
		audit:  repository.NewAuditRepository(pool),
		health: db,
		close:  db.Close,
	}, nil
}

// openMemoryStores keeps everything in process memory. Data is lost on exit.
func openMemoryStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	logger.Warn("using in-memory storage, data is lost on restart")

	users := repository.NewMemoryUserRepository()
	bikes := repository.NewMemoryBikeRepository()
	cart := repository.NewMemoryCartRepository(bikes)

	err := seed.Run(ctx, bikes, users, adminSeed(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to seed in-memory storage: %w", err)
	}

	return &stores{
		users:  users,
		tokens: repository.NewMemoryActionTokenRepository(),
		bikes:  bikes,
		cart:   cart,
		orders: repository.NewMemoryOrderRepository(cart),
		audit:  repository.NewMemoryAuditRepository(),
		close:  func() {},
	}, nil
}

func adminSeed(cfg *config.Config) seed.Admin {
	return seed.Admin{
		Username:   cfg.AdminUsername,
		Password:   cfg.AdminPassword,
		Email:      cfg.AdminEmail,
		BcryptCost: cfg.BcryptCost,
	}
}
