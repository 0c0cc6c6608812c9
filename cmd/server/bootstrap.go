package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/apps"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/apps/citizenreports"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/database"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/live"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/media"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// connect opens the database and runs shared plus plugin migrations.
func connect(cfg *config.Config, plugins []apps.Plugin) (*gorm.DB, error) {
	if cfg.DBDriver != "sqlite" && cfg.DBPassword == "" {
		return nil, errors.New("DB_PASSWORD environment variable is required")
	}
	if err := database.Connect(cfg); err != nil {
		return nil, err
	}
	if err := database.MigrateShared(database.DB); err != nil {
		return nil, fmt.Errorf("shared migration failed: %w", err)
	}
	for _, p := range plugins {
		if models := p.Models(); len(models) > 0 {
			if err := database.MigrateModels(database.DB, models); err != nil {
				return nil, fmt.Errorf("plugin %s migration failed: %w", p.ID(), err)
			}
			slog.Info("plugin migrated", "plugin", p.ID(), "models", len(models))
		}
	}
	return database.DB, nil
}

// newBroker picks the live update backend. Redis lets several API
// instances share one stream per report.
func newBroker(ctx context.Context, cfg *config.Config) (live.Broker, error) {
	switch cfg.LiveBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		return live.NewRedisBroker(client, cfg.LiveRetention, slog.Default()), nil
	case "memory", "":
		return live.NewHub(cfg.LiveRetention), nil
	}
	return nil, fmt.Errorf("unsupported LIVE_BACKEND %q", cfg.LiveBackend)
}

func newPlugins(base context.Context, cfg *config.Config, broker live.Broker) []apps.Plugin {
	store := media.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL, cfg.MediaMaxBytes)
	return []apps.Plugin{
		citizenreports.New(base, broker, store),
	}
}
