package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/infrastructure/persistence/repotest"
)

var testTime = time.Date(2024, 6, 3, 9, 0, 0, 123456789, time.UTC)

func TestProgressionRepositoryContract(t *testing.T) {
	suite.Run(t, &repotest.RepositorySuite{
		Factory: func() progression.Repository {
			db, err := Open(context.Background(), ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			return NewProgressionRepository(db)
		},
	})
}

func TestOpen_FileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "progression.db")

	db, err := Open(ctx, path)
	require.NoError(t, err)
	repo := NewProgressionRepository(db)

	u, err := progression.NewUser("alice", "Alice", "", testTime)
	require.NoError(t, err)
	require.NoError(t, repo.CreateUser(ctx, u))
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	got, err := NewProgressionRepository(db).GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.True(t, got.CreatedAt.Equal(testTime))
	assert.NoError(t, db.Ping(ctx))
}
