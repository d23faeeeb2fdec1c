package server

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
	"github.com/GriffinCanCode/TabSessions/backend/internal/kv/redisstore"
	"github.com/GriffinCanCode/TabSessions/backend/internal/kv/sqlstore"
)

// backend is the shared persistent store every tab of the origin sees.
type backend struct {
	store kv.Store
	feed  kv.Feed
	close func() error
}

func openBackend(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*backend, error) {
	onError := func(err error) {
		logger.Warn("Change feed error", zap.String("backend", cfg.Backend), zap.Error(err))
	}

	switch cfg.Backend {
	case config.BackendMemory, "":
		return &backend{
			store: kv.NewMemory(kv.WithQuota(cfg.QuotaChars)),
			feed:  kv.NewMemoryFeed(),
			close: func() error { return nil },
		}, nil

	case config.BackendRedis:
		client, err := redisstore.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return &backend{
			store: redisstore.New(client, cfg.RedisPrefix),
			feed:  redisstore.NewFeed(client, cfg.RedisPrefix, onError),
			close: client.Close,
		}, nil

	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to reach postgres: %w", err)
		}
		version, err := sqlstore.Migrate(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Store schema ready", zap.Uint("version", version))
		return &backend{
			store: sqlstore.New(db),
			feed:  sqlstore.NewFeed(db, cfg.DatabaseURL, sqlstore.DefaultChannel, onError),
			close: db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
