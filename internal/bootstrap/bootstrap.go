// Package bootstrap turns a loaded config.Config into the runtime pieces
// shared by the API and the worker: logger, tracing, store, locks and the
// progression engine.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/learnhub/progression-engine/config"
	"github.com/learnhub/progression-engine/internal/application/command"
	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/infrastructure/observability"
	"github.com/learnhub/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/learnhub/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/learnhub/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/learnhub/progression-engine/internal/infrastructure/persistence/sqlite"
	"github.com/learnhub/progression-engine/pkg/circuitbreaker"
	"github.com/learnhub/progression-engine/pkg/logger"
	"github.com/learnhub/progression-engine/pkg/timeutil"
)

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    cfg.Observability.LogFormat,
		AddCaller: !cfg.IsProduction(),
	}).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// InitTracing installs the global tracer provider. The returned function
// flushes pending spans.
func InitTracing(ctx context.Context, cfg *config.Config, log *logger.Logger, service string) func(context.Context) error {
	return observability.InitTracing(ctx, log, observability.TracingConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: service,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Headers:     observability.ParseHeaders(cfg.Observability.TracingHeaders),
		Insecure:    cfg.Observability.TracingInsecure,
		SampleRatio: cfg.Observability.TracingSampleRatio,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Pinger checks connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is the opened repository plus what is needed to check and close it.
type Store struct {
	progression.Repository
	Pinger

	Driver string
	close  func()
}

// Close releases the underlying connections.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore opens the repository selected by Database.Driver.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Store, error) {
	log = log.With(logger.Component("store"), logger.String("driver", cfg.Database.Driver))

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.Database.URL
		if cfg.Database.MaxConns > 0 {
			pgCfg.MaxConns = cfg.Database.MaxConns
		}
		if cfg.Database.MinConns > 0 {
			pgCfg.MinConns = cfg.Database.MinConns
		}
		if cfg.Database.ConnMaxLifetime > 0 {
			pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		}
		if cfg.Database.ConnMaxIdleTime > 0 {
			pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
		}

		conn, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := conn.Migrate(ctx); err != nil {
				conn.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			log.Info("migrations applied")
		}
		repo := postgres.NewProgressionRepository(conn)
		log.Info("store opened")
		return &Store{Repository: repo, Pinger: repo, Driver: config.DriverPostgres, close: conn.Close}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		repo := sqlite.NewProgressionRepository(db)
		log.Info("store opened", logger.String("path", cfg.Database.SQLitePath))
		return &Store{Repository: repo, Pinger: repo, Driver: config.DriverSQLite, close: func() { _ = db.Close() }}, nil

	case config.DriverMemory:
		store := memory.NewStore()
		log.Warn("using in-memory store; data is lost on restart")
		return &Store{Repository: store, Pinger: store, Driver: config.DriverMemory}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOCKS
// ══════════════════════════════════════════════════════════════════════════════

// Locks is the per-user lock chain. Redis is nil when disabled.
type Locks struct {
	Locker command.Locker
	Redis  *redis.Client
}

// Close releases the Redis connection, if any.
func (l *Locks) Close() {
	if l.Redis != nil {
		_ = l.Redis.Close()
	}
}

// OpenLocks always serializes same-user writes inside the process. With
// Redis enabled it adds a distributed lock so replicas serialize too.
func OpenLocks(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Locks, error) {
	local := command.NewKeyedMutex()
	if !cfg.Redis.Enabled {
		return &Locks{Locker: local}, nil
	}

	rcfg := redis.DefaultConfig()
	rcfg.Addr = cfg.Redis.Addr()
	rcfg.Password = cfg.Redis.Password
	rcfg.DB = cfg.Redis.DB
	if cfg.Redis.PoolSize > 0 {
		rcfg.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.MinIdleConns > 0 {
		rcfg.MinIdleConns = cfg.Redis.MinIdleConns
	}
	if cfg.Redis.DialTimeout > 0 {
		rcfg.DialTimeout = cfg.Redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout > 0 {
		rcfg.ReadTimeout = cfg.Redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout > 0 {
		rcfg.WriteTimeout = cfg.Redis.WriteTimeout
	}
	if cfg.Redis.KeyPrefix != "" {
		rcfg.KeyPrefix = cfg.Redis.KeyPrefix
	}

	client, err := redis.NewClient(ctx, rcfg)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	lcfg := redis.DefaultLockerConfig()
	if cfg.Redis.LockTTL > 0 {
		lcfg.TTL = cfg.Redis.LockTTL
	}
	lcfg.Breaker = circuitbreaker.LockBreaker(redis.IsLockStoreFailure, func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	log.Info("distributed user locks enabled", logger.String("addr", rcfg.Addr))

	return &Locks{
		Locker: command.ChainLocker{local, redis.NewLocker(client, lcfg)},
		Redis:  client,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// NewEngine builds the engine with the default rule table and badge catalog,
// the configured streak policy, and a calendar in App.Location.
func NewEngine(cfg *config.Config) *progression.Engine {
	return progression.NewEngine(nil, nil,
		progression.StreakPolicy(cfg.Engine.StreakPolicy),
		timeutil.NewCalendar(cfg.App.Location))
}

// RecordActionConfig maps the engine settings onto the command handler.
func RecordActionConfig(cfg *config.Config) command.RecordActionConfig {
	return command.RecordActionConfig{
		MaxAttempts: cfg.Engine.MaxAttempts,
		LockTimeout: cfg.Engine.LockTimeout,
	}
}
