package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/spf13/cobra"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/database"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/logging"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/routes"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/services"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/tenant"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(config.Load())
		},
	}
}

func serve(cfg *config.Config) error {
	logging.Setup(cfg.IsProduction())

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}

	// App registry
	registry, err := tenant.LoadFromFile(cfg.AppsConfigPath)
	if err != nil {
		return err
	}
	appIDs := make([]string, 0, registry.Len())
	for _, app := range registry.All() {
		appIDs = append(appIDs, app.AppID)
	}
	slog.Info("app registry loaded", "apps", appIDs)

	// Live streams hang off base; cancelling it ends them on shutdown.
	base, stopStreams := context.WithCancel(context.Background())
	defer stopStreams()

	broker, err := newBroker(base, cfg)
	if err != nil {
		return err
	}
	defer broker.Close()

	plugins := newPlugins(base, cfg, broker)
	db, err := connect(cfg, plugins)
	if err != nil {
		return err
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(db, 5*time.Second)
	slog.SetDefault(slog.New(logging.NewContextHandler(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logging.Level(cfg.IsProduction())}),
		pgLogHandler,
	))))

	cleanupDone := make(chan struct{})
	logging.StartCleanup(db, cfg.LogRetentionDays, cleanupDone)

	authService := services.NewAuthService(db, cfg)
	authHandler := handlers.NewAuthHandler(authService)
	healthHandler := handlers.NewHealthHandler(registry, cfg.LiveBackend, database.Ping)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Env,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    int(cfg.MediaMaxBytes) + 1024*1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		return c.Next()
	})
	app.Use(middleware.TenantMiddleware(registry, "/api/health", cfg.MediaBaseURL+"/"))

	app.Static(cfg.MediaBaseURL, cfg.MediaDir, fiber.Static{MaxAge: 86400})
	routes.Setup(app, cfg, db, authHandler, healthHandler, plugins)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port, "live_backend", cfg.LiveBackend)
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-listenErr:
		slog.Error("server failed to start", "error", err)
	case <-quit:
	}
	slog.Info("shutting down server...")

	stopStreams()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(cleanupDone)
	pgLogHandler.Stop()

	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.ErrorContext(c.UserContext(), "unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		if hub := sentryfiber.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
