// Package main - точка входа HTTP API движка прогрессии.
//
// API принимает действия пользователей, начисляет очки, выдаёт значки,
// ведёт серии активности и отдаёт профили и лидерборд.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/learnhub/progression-engine/config"
	"github.com/learnhub/progression-engine/internal/application/command"
	"github.com/learnhub/progression-engine/internal/application/query"
	"github.com/learnhub/progression-engine/internal/bootstrap"
	httpserver "github.com/learnhub/progression-engine/internal/interface/http"
	"github.com/learnhub/progression-engine/internal/interface/http/handlers"
	"github.com/learnhub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting progression API",
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("streak_policy", cfg.Engine.StreakPolicy),
	)

	shutdownTracing := bootstrap.InitTracing(ctx, cfg, log, cfg.App.Name+"-api")
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracer shutdown failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ И БЛОКИРОВКИ
	// ─────────────────────────────────────────────────────────────────────────
	store, err := bootstrap.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing store...")
		store.Close()
	}()

	locks, err := bootstrap.OpenLocks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer locks.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. КОМАНДЫ И ЗАПРОСЫ
	// ─────────────────────────────────────────────────────────────────────────
	engine := bootstrap.NewEngine(cfg)
	catalog := engine.Badges()

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewDatabaseCheck(store))
	if locks.Redis != nil {
		health.AddCheck("redis", handlers.NewCacheCheck(locks.Redis))
	}

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.Version = cfg.App.Version
	httpCfg.EnableCORS = cfg.HTTP.EnableCORS
	if len(cfg.HTTP.AllowedOrigins) > 0 {
		httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	}
	if cfg.HTTP.ReadTimeout > 0 {
		httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	}
	if cfg.HTTP.WriteTimeout > 0 {
		httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	}
	if cfg.HTTP.IdleTimeout > 0 {
		httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	}

	server := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		RegisterUser:    command.NewRegisterUserHandler(store, log),
		RecordAction:    command.NewRecordActionHandler(store, engine, locks.Locker, log, bootstrap.RecordActionConfig(cfg)),
		GetProfile:      query.NewGetProfileHandler(store, catalog),
		GetLeaderboard:  query.NewGetLeaderboardHandler(store),
		GetAchievements: query.NewGetAchievementsHandler(store, catalog),
		GetActivity:     query.NewGetActivityHandler(store),
		HealthChecker:   health,
		Logger:          log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		sctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}
