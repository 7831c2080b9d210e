package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/config"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/handler"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/metrics"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/middleware"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/policy"
)

// Handlers groups the endpoint handlers mounted by New.
type Handlers struct {
	Auth   *handler.AuthHandler
	User   *handler.UserHandler
	Bike   *handler.BikeHandler
	Cart   *handler.CartHandler
	Order  *handler.OrderHandler
	Audit  *handler.AuditHandler
	Upload *handler.UploadHandler
	Health *handler.HealthHandler
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	m *metrics.Metrics,
	table *policy.Table,
	authMiddleware *middleware.AuthMiddleware,
	h Handlers,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.NewClientIPResolver(cfg.TrustedProxies).Handler)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger, m))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)
	r.Use(authMiddleware.Authenticate)
	r.Use(middleware.Authorize(table, m))

	r.Get("/health", h.Health.Check)
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get(handler.UploadsPattern, h.Upload.Serve)

	r.With(middleware.Timeout(cfg.UploadTimeout)).Post("/api/upload", h.Upload.Upload)

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Post("/api/auth", h.Auth.Login)
		api.Post("/api/auth/google", h.Auth.Google)
		api.Post("/api/auth/register", h.Auth.Register)
		api.Post("/register", h.Auth.Register)
		api.Post("/verify-email", h.Auth.VerifyEmail)
		api.Post("/api/password-reset/request", h.Auth.RequestPasswordReset)
		api.Post("/api/password-reset/confirm", h.Auth.ConfirmPasswordReset)

		api.Get("/user/profile", h.User.Profile)
		api.Put("/user/profile", h.User.UpdateProfile)

		api.Route("/api/bikes", func(bikes chi.Router) {
			bikes.Get("/all", h.Bike.List)
			bikes.Post("/", h.Bike.Create)
			bikes.Get("/{id}", h.Bike.Get)
			bikes.Put("/{id}", h.Bike.Update)
			bikes.Delete("/{id}", h.Bike.Delete)
		})

		api.Route("/api/cart", func(cart chi.Router) {
			cart.Get("/", h.Cart.View)
			cart.Post("/add", h.Cart.Add)
			cart.Post("/remove", h.Cart.Remove)
		})

		api.Get("/api/orders", h.Order.ListMine)
		api.Post("/api/orders/place", h.Order.Place)

		api.Route("/api/admin", func(admin chi.Router) {
			admin.Get("/users", h.User.List)
			admin.Post("/users", h.User.Create)
			admin.Put("/users/{id}", h.User.Update)
			admin.Delete("/users/{id}", h.User.Delete)

			admin.Get("/orders", h.Order.ListAll)
			admin.Delete("/orders/{id}", h.Order.Delete)
			admin.Put("/orders/{id}/status", h.Order.UpdateStatus)

			admin.Get("/audit", h.Audit.List)
		})
	})

	return r
}
