package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/restaurant-api/internal/api/http/handlers"
	"github.com/spec-kit/restaurant-api/internal/auth"
	"github.com/spec-kit/restaurant-api/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Users     *handlers.UsersHandler
	Gate      *auth.Gate
	Metrics   *observability.Metrics
	LoginRate fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	loginRate := cfg.LoginRate
	if loginRate == nil {
		loginRate = func(c *fiber.Ctx) error { return c.Next() }
	}

	users := app.Group("/api/users")
	users.Post("/register", loginRate, cfg.Users.Register)
	users.Post("/login", loginRate, cfg.Users.Login)
	users.Post("/refresh", cfg.Users.Refresh)
	users.Post("/logout", cfg.Users.Logout)
	users.Get("/me", cfg.Gate.Protect(), cfg.Users.Me)
	users.Get("/whoami", cfg.Gate.OptionalAuth(), cfg.Users.WhoAmI)

	protect, admin := cfg.Gate.Protect(), auth.Admin()
	users.Get("/", protect, admin, cfg.Users.List)
	users.Post("/", protect, admin, cfg.Users.Create)
	users.Get("/:id", protect, admin, cfg.Users.Get)
	users.Put("/:id", protect, admin, cfg.Users.Update)
	users.Delete("/:id", protect, admin, cfg.Users.Delete)
}
