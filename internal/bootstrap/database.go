package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	// Register the pgx database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/target/portal-api/config"
	"github.com/target/portal-api/internal/migrate"
)

// connectTimeout bounds the startup ping of Postgres and Redis.
const connectTimeout = 5 * time.Second

// DatabaseConfig carries the connection settings for the session store backends.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// ConnectDB opens the Postgres pool used by the postgres session store and the admin CLI.
func ConnectDB(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", postgresDSN(cfg.DBConfig))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBConfig.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DBConfig.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConfig.ConnMaxLifetime)

	if err := pingOrClose(ctx, db.PingContext, db.Close); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "database connected",
			"host", cfg.DBConfig.Host,
			"port", cfg.DBConfig.Port,
			"database", cfg.DBConfig.Name)
	}
	return db, nil
}

func postgresDSN(cfg config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectRedis connects to Redis in direct, sentinel, or cluster mode.
//
//nolint:ireturn // the concrete client depends on the configured mode.
func ConnectRedis(ctx context.Context, cfg DatabaseConfig) (redis.UniversalClient, error) {
	target, err := resolveRedisTarget(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	client := target.newClient()
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := pingOrClose(ctx, ping, client.Close); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "redis connected", "mode", string(target.mode), "addr", target.describe())
	}
	return client, nil
}

type redisMode string

const (
	redisModeDirect   redisMode = "direct"
	redisModeSentinel redisMode = "sentinel"
	redisModeCluster  redisMode = "cluster"
)

type redisTarget struct {
	mode redisMode
	opts redis.UniversalOptions
}

// resolveRedisTarget turns REDIS_* settings into client options. Cluster mode falls back
// to REDIS_URI when no cluster nodes are listed; a redis:// or rediss:// URI may carry
// credentials and TLS, which override REDIS_PASSWORD.
func resolveRedisTarget(cfg config.RedisConfig) (redisTarget, error) {
	switch {
	case cfg.UseCluster:
		t := redisTarget{mode: redisModeCluster, opts: redis.UniversalOptions{
			Addrs:    normalizeAddrs(cfg.ClusterNodes),
			Password: cfg.Password,
		}}
		if len(t.opts.Addrs) == 0 {
			if err := applyRedisURI(&t.opts, cfg.URI); err != nil {
				return redisTarget{}, fmt.Errorf("parse redis cluster url: %w", err)
			}
		}
		if len(t.opts.Addrs) == 0 {
			return redisTarget{}, errors.New("redis cluster configuration requires at least one address")
		}
		return t, nil

	case cfg.UseSentinel:
		sentinels := normalizeAddrs(cfg.SentinelNodes)
		if len(sentinels) == 0 {
			return redisTarget{}, errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		if strings.TrimSpace(cfg.SentinelMasterName) == "" {
			return redisTarget{}, errors.New("redis sentinel configuration requires a master name")
		}
		return redisTarget{mode: redisModeSentinel, opts: redis.UniversalOptions{
			Addrs:            sentinels,
			MasterName:       cfg.SentinelMasterName,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
			DB:               cfg.DB,
		}}, nil

	default:
		t := redisTarget{mode: redisModeDirect, opts: redis.UniversalOptions{
			Password: cfg.Password,
			DB:       cfg.DB,
		}}
		if err := applyRedisURI(&t.opts, cfg.URI); err != nil {
			return redisTarget{}, fmt.Errorf("parse redis url: %w", err)
		}
		if len(t.opts.Addrs) == 0 {
			return redisTarget{}, errors.New("redis direct configuration requires a URI")
		}
		return t, nil
	}
}

// applyRedisURI sets the address from uri, which is either host:port or a redis URL.
// An empty uri leaves opts untouched.
func applyRedisURI(opts *redis.UniversalOptions, uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil
	}
	if !isRedisURL(uri) {
		opts.Addrs = []string{uri}
		return nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return err
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	opts.DB = parsed.DB
	opts.TLSConfig = parsed.TLSConfig
	return nil
}

//nolint:ireturn // see ConnectRedis.
func (t redisTarget) newClient() redis.UniversalClient {
	switch t.mode {
	case redisModeCluster:
		return redis.NewClusterClient(t.opts.Cluster())
	case redisModeSentinel:
		return redis.NewFailoverClient(t.opts.Failover())
	default:
		return redis.NewClient(t.opts.Simple())
	}
}

// describe names the target for logs; it never includes credentials.
func (t redisTarget) describe() string {
	if t.mode == redisModeSentinel {
		return t.opts.MasterName + "@" + strings.Join(t.opts.Addrs, ",")
	}
	return strings.Join(t.opts.Addrs, ",")
}

func normalizeAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}

// pingOrClose pings within connectTimeout and closes the handle when the ping fails.
func pingOrClose(ctx context.Context, ping func(context.Context) error, closeFn func() error) error {
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	err := ping(pingCtx)
	if err == nil {
		return nil
	}
	if closeErr := closeFn(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close connection: %w", closeErr))
	}
	return err
}

// RunMigrations applies the embedded session-table migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}
