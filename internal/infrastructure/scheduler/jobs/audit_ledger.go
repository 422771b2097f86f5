// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/infrastructure/scheduler"
	"github.com/learnhub/progression-engine/pkg/logger"
)

var tracer = otel.Tracer("github.com/learnhub/progression-engine/internal/infrastructure/scheduler/jobs")

// ErrLedgerDrift is returned by AuditLedgerJob when FailOnDrift is set and
// at least one user's experience differs from their ledger sum.
var ErrLedgerDrift = errors.New("experience does not match ledger")

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT LEDGER JOB
// ══════════════════════════════════════════════════════════════════════════════

// LedgerTotaler is the slice of the repository the audit needs.
type LedgerTotaler interface {
	LedgerTotals(ctx context.Context) ([]progression.LedgerTotal, error)
}

// AuditLedgerJob compares every user's experience with the sum of the
// points on their ledger entries. Since both are written in the same commit
// they must always agree; a mismatch means something wrote around the
// engine.
type AuditLedgerJob struct {
	repo   LedgerTotaler
	logger *logger.Logger
	config AuditLedgerConfig

	lastStats atomic.Pointer[AuditStats]
}

// AuditLedgerConfig contains configuration for the audit job.
type AuditLedgerConfig struct {
	// MaxLogged caps how many drifting users are logged individually.
	MaxLogged int

	// FailOnDrift makes the run fail when drift is found, so the scheduler
	// counts it as a failure.
	FailOnDrift bool
}

// DefaultAuditLedgerConfig returns sensible defaults.
func DefaultAuditLedgerConfig() AuditLedgerConfig {
	return AuditLedgerConfig{
		MaxLogged:   50,
		FailOnDrift: false,
	}
}

// AuditStats contains statistics from one audit run.
type AuditStats struct {
	StartedAt    time.Time
	Duration     time.Duration
	UsersChecked int
	Drifting     int
	TotalPoints  int64
	TotalEntries int64
	DriftingIDs  []string
}

// NewAuditLedgerJob creates a new audit job.
func NewAuditLedgerJob(repo LedgerTotaler, log *logger.Logger, config AuditLedgerConfig) *AuditLedgerJob {
	if log == nil {
		log = logger.Nop()
	}
	if config.MaxLogged <= 0 {
		config.MaxLogged = DefaultAuditLedgerConfig().MaxLogged
	}
	return &AuditLedgerJob{
		repo:   repo,
		logger: log.With(logger.Component("audit_ledger")),
		config: config,
	}
}

// Name returns the job name.
func (j *AuditLedgerJob) Name() string {
	return "audit_ledger"
}

// Description returns a human-readable description.
func (j *AuditLedgerJob) Description() string {
	return "Checks that each user's experience equals the sum of their ledger points"
}

// Run executes the audit.
func (j *AuditLedgerJob) Run(ctx context.Context) (scheduler.Report, error) {
	ctx, span := tracer.Start(ctx, "AuditLedger")
	defer span.End()

	startedAt := time.Now()
	totals, err := j.repo.LedgerTotals(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load ledger totals: %w", err)
	}

	stats := &AuditStats{StartedAt: startedAt, UsersChecked: len(totals)}
	for _, t := range totals {
		stats.TotalPoints += t.LedgerPoints
		stats.TotalEntries += t.Entries
		if t.Consistent() {
			continue
		}

		stats.Drifting++
		stats.DriftingIDs = append(stats.DriftingIDs, t.UserID)
		if stats.Drifting <= j.config.MaxLogged {
			j.logger.Warn("ledger drift",
				logger.UserID(t.UserID),
				logger.Int64("experience", t.Experience),
				logger.Int64("ledger_points", t.LedgerPoints),
				logger.Int64("delta", t.Experience-t.LedgerPoints),
			)
		}
	}
	stats.Duration = time.Since(startedAt)
	j.lastStats.Store(stats)

	span.SetAttributes(
		attribute.Int("audit.users", stats.UsersChecked),
		attribute.Int("audit.drifting", stats.Drifting),
	)

	report := scheduler.Report{
		"users_checked": stats.UsersChecked,
		"drifting":      stats.Drifting,
		"total_points":  stats.TotalPoints,
		"total_entries": stats.TotalEntries,
	}

	if stats.Drifting > j.config.MaxLogged {
		j.logger.Warn("ledger drift list truncated", logger.Int("not_logged", stats.Drifting-j.config.MaxLogged))
	}
	if stats.Drifting > 0 && j.config.FailOnDrift {
		err := fmt.Errorf("%w: %d of %d users", ErrLedgerDrift, stats.Drifting, stats.UsersChecked)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	return report, nil
}

// LastStats returns the stats of the most recent completed run, or nil.
func (j *AuditLedgerJob) LastStats() *AuditStats {
	return j.lastStats.Load()
}
