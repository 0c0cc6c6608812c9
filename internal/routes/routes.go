package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/apps"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	plugins []apps.Plugin,
) {
	api := app.Group("/api")

	// General API rate limiter: 120 req/min per IP. A live stream is one
	// request, counted when it connects.
	api.Use(limiter.New(limiter.Config{
		Max:               120,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	api.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health (no tenant required)
	api.Get("/health", healthHandler.Check)

	// Auth: public, stricter limit of 10 req/min per IP
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)

	api.Post("/auth/logout", middleware.JWTProtected(cfg), authHandler.Logout)
	api.Delete("/auth/account", middleware.JWTProtected(cfg), authHandler.DeleteAccount)

	// Plugin routes: anonymous callers may read and file reports, so auth
	// is optional here and enforced per route.
	public := api.Group("/p", middleware.OptionalAuth(cfg))

	// Municipality staff
	staff := api.Group("/staff", middleware.JWTProtected(cfg), middleware.GovernmentRequired(db, cfg))

	for _, p := range plugins {
		p.RegisterRoutes(public, db, cfg)
		if sp, ok := p.(apps.StaffPlugin); ok {
			sp.RegisterStaffRoutes(staff, db, cfg)
		}
	}
}
