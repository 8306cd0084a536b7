package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/portal-api/config"
	"github.com/target/portal-api/internal/adapters/memory"
	"github.com/target/portal-api/internal/adapters/postgres"
	redisadapter "github.com/target/portal-api/internal/adapters/redis"
	apperrors "github.com/target/portal-api/internal/errors"
	"github.com/target/portal-api/internal/ports"
)

// StoreConfig contains configuration for the session store.
type StoreConfig struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// SessionStore is the selected store plus the connections it owns.
type SessionStore struct {
	Store ports.SessionStore
	DB    *sql.DB
	Redis redis.UniversalClient
}

// Close releases the connections behind the store.
func (s *SessionStore) Close() error {
	var errs []error
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// BuildSessionStore connects the backend selected by SESSION_STORE.
func BuildSessionStore(ctx context.Context, cfg StoreConfig) (*SessionStore, error) {
	if cfg.Config == nil {
		return nil, errors.New("store config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	dbCfg := DatabaseConfig{DBConfig: appCfg.Postgres, RedisConfig: appCfg.Redis, Logger: logger}

	switch appCfg.Session.Store {
	case config.SessionStoreMemory:
		if appCfg.IsProduction() {
			return nil, apperrors.Configuration("SESSION_STORE=memory is not allowed in production")
		}
		logger.WarnContext(ctx, "using in-memory session store; sessions are lost on restart")
		return &SessionStore{Store: memory.NewSessionStore(memory.Config{})}, nil

	case config.SessionStoreRedis:
		client, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return &SessionStore{
			Store: redisadapter.NewSessionStoreWithPrefix(client, appCfg.Session.KeyPrefix),
			Redis: client,
		}, nil

	case config.SessionStorePostgres:
		db, err := ConnectDB(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		if appCfg.Postgres.RunMigrationsOnStart {
			if migErr := RunMigrations(ctx, db, logger); migErr != nil {
				return nil, errors.Join(migErr, db.Close())
			}
		} else {
			logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		}
		return &SessionStore{Store: postgres.NewSessionStore(db), DB: db}, nil

	default:
		return nil, apperrors.Configurationf("unsupported SESSION_STORE %q", appCfg.Session.Store)
	}
}
