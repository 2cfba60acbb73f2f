package store

import (
	"context"
	"fmt"
	"log/slog"

	"coinbot/internal/config"
	"coinbot/internal/db"
	"coinbot/internal/economy"
)

// Backend is a ProfileStore that owns a resource to release on shutdown.
type Backend interface {
	economy.ProfileStore
	Close() error
}

func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "", "file":
		s, err := NewFile(cfg.Path, WithFileLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.MaxConns)
		if err != nil {
			return nil, ioErr("connect postgres", err)
		}
		s, err := NewPostgres(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
