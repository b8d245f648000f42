package main

import (
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/a-ariff/canvas-student-mcp-server/internal/config"
	"github.com/a-ariff/canvas-student-mcp-server/storage"
	"github.com/a-ariff/canvas-student-mcp-server/storage/memory"
	"github.com/a-ariff/canvas-student-mcp-server/storage/redis"
	"github.com/a-ariff/canvas-student-mcp-server/storage/valkey"
)

// openStore connects the configured backend. The returned func releases it.
func openStore(cfg config.StoreConfig, logger *slog.Logger) (storage.KV, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		store := memory.NewWithLogger(logger)
		return store, store.Stop, nil

	case config.BackendValkey:
		store, err := valkey.New(valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
			TLS:       tlsConfig(cfg.Valkey.TLS),
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to valkey: %w", err)
		}
		return store, store.Close, nil

	case config.BackendRedis:
		store, err := redis.New(redis.Config{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TLS:       tlsConfig(cfg.Redis.TLS),
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func tlsConfig(enabled bool) *tls.Config {
	if !enabled {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}
