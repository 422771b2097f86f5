package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/learnhub/progression-engine/pkg/logger"
)

type staticTotals struct {
	totals []progression.LedgerTotal
	err    error
}

func (s staticTotals) LedgerTotals(context.Context) ([]progression.LedgerTotal, error) {
	return s.totals, s.err
}

func TestAuditLedger_ConsistentStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	u, err := progression.NewUser("alice", "Alice", "", now)
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(ctx, u))

	u, err = store.GetUser(ctx, "alice")
	require.NoError(t, err)
	expected := u.Version
	u.Experience += 50
	entry := progression.NewLedgerEntry("alice", progression.ActionPostCreated, 50, "Created a post",
		progression.References{}, nil, "", now)
	require.NoError(t, store.Commit(ctx, progression.Commit{User: u, ExpectedVersion: expected, Entry: entry}))

	job := NewAuditLedgerJob(store, logger.Nop(), DefaultAuditLedgerConfig())
	report, err := job.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report["users_checked"])
	assert.Equal(t, 0, report["drifting"])
	assert.Equal(t, int64(50), report["total_points"])
	assert.Equal(t, int64(1), report["total_entries"])
	require.NotNil(t, job.LastStats())
	assert.Empty(t, job.LastStats().DriftingIDs)
}

func TestAuditLedger_ReportsDrift(t *testing.T) {
	repo := staticTotals{totals: []progression.LedgerTotal{
		{UserID: "a", Experience: 100, LedgerPoints: 100, Entries: 2},
		{UserID: "b", Experience: 60, LedgerPoints: 50, Entries: 1},
		{UserID: "c", Experience: 0, LedgerPoints: 5, Entries: 1},
	}}

	job := NewAuditLedgerJob(repo, logger.Nop(), AuditLedgerConfig{MaxLogged: 1})
	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report["users_checked"])
	assert.Equal(t, 2, report["drifting"])
	assert.Equal(t, []string{"b", "c"}, job.LastStats().DriftingIDs)

	strict := NewAuditLedgerJob(repo, logger.Nop(), AuditLedgerConfig{FailOnDrift: true})
	report, err = strict.Run(context.Background())
	assert.ErrorIs(t, err, ErrLedgerDrift)
	assert.Equal(t, 2, report["drifting"])
}

func TestAuditLedger_StoreError(t *testing.T) {
	boom := errors.New("connection reset")
	job := NewAuditLedgerJob(staticTotals{err: boom}, nil, AuditLedgerConfig{})

	report, err := job.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, report)
	assert.Nil(t, job.LastStats())
}
