// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"
	"log/slog"

	redisv9 "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"apple_detector/internal/platform/cache"
	"apple_detector/internal/platform/config"
	"apple_detector/internal/platform/db"
	infraredis "apple_detector/internal/platform/redis"
)

// NewDatabase opens the configured database and applies migrations when enabled.
func NewDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gdb, err := db.Open(db.Config{
		Driver:       cfg.Driver,
		Path:         cfg.Path,
		URL:          cfg.URL,
		User:         cfg.User,
		Password:     cfg.Password,
		Name:         cfg.Name,
		Host:         cfg.Host,
		Port:         cfg.Port,
		InstanceName: cfg.InstanceName,
		Timeout:      cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		if err := db.Migrate(gdb); err != nil {
			return nil, err
		}
	}
	return gdb, nil
}

// NewRedis connects to Redis when it is configured.
// It returns nil when Redis is disabled or unreachable; callers fall back to
// in-process implementations.
func NewRedis(ctx context.Context, cfg config.RedisConfig) *redisv9.Client {
	if !cfg.Enabled() {
		slog.Info("Redis is not configured; using in-process cache and cookie sessions")
		return nil
	}
	rdb, err := infraredis.NewRedisClient(ctx, infraredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		slog.Warn("Redis unavailable; using in-process cache and cookie sessions", "error", err)
		return nil
	}
	return rdb
}

// NewCacheStore returns a Redis-backed store if Redis is available.
// Otherwise, it falls back to an in-process store.
func NewCacheStore(rdb *redisv9.Client, cfg config.CacheConfig) cache.Store {
	if rdb != nil {
		return cache.NewRedisStore(rdb)
	}
	return cache.NewMemoryStore(cfg.TTL, 2*cfg.TTL)
}
