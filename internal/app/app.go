package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/config"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/database"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/event"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/google"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/handler"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/mail"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/metrics"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/middleware"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/policy"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/repository"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/router"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/seed"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/service"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/storage"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/token"
)

const (
	shutdownTimeout      = 10 * time.Second
	tokenCleanupInterval = time.Hour
)

type App struct {
	server   *http.Server
	close    func()
	audit    func(ctx context.Context)
	accounts *service.AccountService
	logger   *slog.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(cfg.UploadRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload storage: %w", err)
	}
	logger.Info("upload storage ready", "root", store.RootAbs())

	keys, err := token.NewKeySet(cfg.JWTSigningKeys, cfg.JWTActiveKeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}
	codec := token.NewCodec(keys, cfg.JWTTTL)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	userRepo, tokenRepo, bikeRepo := st.users, st.tokens, st.bikes
	cartRepo, orderRepo, auditRepo := st.cart, st.orders, st.audit

	m := metrics.New()
	bus := event.NewBus(logger)

	var verifier service.IdentityVerifier
	if v := google.NewVerifier(google.Config{
		ClientIDs:  cfg.GoogleClientIDs,
		JWKSURL:    cfg.GoogleJWKSURL,
		CacheTTL:   cfg.GoogleJWKSCacheTTL,
		MinRefresh: cfg.GoogleJWKSMinRefresh,
	}); v.Configured() {
		verifier = v
	} else {
		logger.Warn("GOOGLE_CLIENT_IDS is empty, google sign-in is disabled")
	}

	var mailer service.Mailer = mail.NewLogMailer(logger)
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	} else {
		logger.Warn("SMTP_HOST is empty, outgoing mail is only logged")
	}

	authService, err := service.NewAuthService(userRepo, codec, verifier, bus, m, logger, service.AuthConfig{
		BcryptCost:               cfg.BcryptCost,
		RequireEmailVerification: cfg.RequireEmailVerification,
	})
	if err != nil {
		st.close()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}
	accountService := service.NewAccountService(userRepo, tokenRepo, mailer, bus, m, logger, service.AccountConfig{
		BcryptCost:               cfg.BcryptCost,
		RequireEmailVerification: cfg.RequireEmailVerification,
		VerificationTokenTTL:     cfg.VerificationTokenTTL,
		ResetTokenTTL:            cfg.ResetTokenTTL,
		FrontendURL:              cfg.FrontendURL,
	})
	auditService := service.NewAuditService(auditRepo, logger)
	imageService := service.NewImageService(store, cfg.AllowedMIMETypes, cfg.ThumbnailSize, logger)

	appRouter := router.New(cfg, logger, m, policy.Default(), middleware.NewAuthMiddleware(authService, logger), router.Handlers{
		Auth:   handler.NewAuthHandler(authService, accountService),
		User:   handler.NewUserHandler(service.NewUserService(userRepo, accountService, bus, cfg.BcryptCost)),
		Bike:   handler.NewBikeHandler(service.NewCatalogService(bikeRepo)),
		Cart:   handler.NewCartHandler(service.NewCartService(cartRepo, bikeRepo)),
		Order:  handler.NewOrderHandler(service.NewOrderService(orderRepo, cartRepo, userRepo, bus)),
		Audit:  handler.NewAuditHandler(auditService),
		Upload: handler.NewUploadHandler(imageService, cfg.MaxUploadSize),
		Health: handler.NewHealthHandler(st.health, logger),
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:   server,
		close:    st.close,
		audit:    auditService.Listen(bus),
		accounts: accountService,
		logger:   logger,
	}, nil
}

// Migrate connects to PostgreSQL, ensures the schema and seeds the catalog
// and the admin account. The caller owns the returned connection.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	logger.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	err = seed.Run(ctx, repository.NewBikeRepository(db.Pool), repository.NewUserRepository(db.Pool), adminSeed(cfg), logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}

	logger.Info("database ready")
	return db, nil
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.audit(ctx)
		return nil
	})

	g.Go(func() error {
		a.cleanTokens(ctx)
		return nil
	})

	g.Go(func() error {
		a.logger.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		a.logger.Info("server stopped")
		return nil
	})

	return g.Wait()
}

func (a *App) cleanTokens(ctx context.Context) {
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.accounts.CleanExpiredTokens(ctx)
			if err != nil {
				a.logger.Error("expired token cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				a.logger.Info("removed expired tokens", "count", removed)
			}
		}
	}
}
