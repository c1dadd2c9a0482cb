// Package backend opens the store backend selected by configuration
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tutorhub/config"
	infraredis "tutorhub/infrastructure/redis"
	"tutorhub/pkg/logger"
	"tutorhub/store"
	"tutorhub/store/filestore"
	"tutorhub/store/memstore"
	"tutorhub/store/pgstore"
	"tutorhub/store/redisstore"

	"github.com/redis/go-redis/v9"
)

// Handles is an opened backend plus the clients it runs on. DB and Redis
// are nil unless that backend was selected.
type Handles struct {
	Backend store.Backend
	DB      *sql.DB
	Redis   *redis.Client
}

// Watcher returns the backend as a store.Watcher when it can report
// writes made by other contexts
func (h *Handles) Watcher() (store.Watcher, bool) {
	w, ok := h.Backend.(store.Watcher)
	return w, ok
}

func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Handles, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return &Handles{Backend: memstore.New()}, nil

	case config.BackendFile:
		h, err := filestore.Open(cfg.Store.FilePath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open store file: %w", err)
		}
		return &Handles{Backend: h}, nil

	case config.BackendRedis:
		client, err := infraredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		h := redisstore.New(client, redisstore.Options{
			Prefix:  cfg.Store.KeyPrefix,
			Channel: cfg.Redis.Channel,
			Logger:  log,
		})
		return &Handles{Backend: h, Redis: client}, nil

	case config.BackendPostgres:
		h, err := pgstore.Open(ctx, pgstore.Options{
			ConnString: cfg.Database.ConnectionString,
			Channel:    cfg.Database.Channel,
			Logger:     log,
		})
		if err != nil {
			return nil, err
		}
		return &Handles{Backend: h, DB: h.DB()}, nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// Close closes the backend and then the Redis client it borrowed
func (h *Handles) Close() error {
	var errs []error
	if err := h.Backend.Close(); err != nil {
		errs = append(errs, err)
	}
	if h.Redis != nil {
		if err := h.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
