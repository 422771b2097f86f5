// Package main - точка входа для фоновых процессов (Worker) движка прогрессии.
//
// Worker отвечает за периодические задачи:
// - Сверка опыта пользователей с суммами журнала начислений
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/learnhub/progression-engine/config"
	"github.com/learnhub/progression-engine/internal/bootstrap"
	"github.com/learnhub/progression-engine/internal/infrastructure/scheduler"
	"github.com/learnhub/progression-engine/internal/infrastructure/scheduler/jobs"
	"github.com/learnhub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
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

	log := bootstrap.NewLogger(cfg).With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, nothing to do")
		return nil
	}

	shutdownTracing := bootstrap.InitTracing(ctx, cfg, log, cfg.App.Name+"-worker")
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracer shutdown failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	store, err := bootstrap.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing store...")
		store.Close()
	}()

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:     log,
		Timezone:   cfg.App.Location,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})

	audit := jobs.NewAuditLedgerJob(store, log, jobs.DefaultAuditLedgerConfig())
	schedule, err := auditSchedule(cfg)
	if err != nil {
		return err
	}
	if err := sched.Register(audit, schedule); err != nil {
		return fmt.Errorf("register %s: %w", audit.Name(), err)
	}

	sched.OnJobComplete(func(res scheduler.JobResult) {
		if n, ok := res.Metadata["drifting"].(int); ok && n > 0 {
			log.Warn("ledger audit found drifting users",
				logger.Int("drifting", n),
				logger.Any("users_checked", res.Metadata["users_checked"]),
			)
		}
	})

	// Первая сверка сразу при старте, не дожидаясь расписания.
	// Ошибку уже залогировал планировщик.
	_, _ = sched.RunNow(ctx, audit.Name())

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	log.Info("worker is running",
		logger.String("audit_schedule", schedule.String()),
		logger.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal, stopping scheduler...")

	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop failed", logger.Err(err))
	}

	log.Info("shutdown completed successfully")
	return nil
}

// auditSchedule prefers the cron expression and falls back to the interval.
func auditSchedule(cfg *config.Config) (scheduler.Schedule, error) {
	if cfg.Scheduler.AuditCron == "" {
		return scheduler.NewIntervalSchedule(cfg.Scheduler.AuditInterval), nil
	}
	s, err := scheduler.NewCronSchedule(cfg.Scheduler.AuditCron, cfg.App.Location)
	if err != nil {
		return nil, fmt.Errorf("audit schedule: %w", err)
	}
	return s, nil
}
