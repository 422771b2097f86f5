package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/progression-engine/config"
	"github.com/learnhub/progression-engine/internal/application/command"
	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/pkg/logger"
)

func testConfig(driver string) *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:     "progression-engine",
			Timezone: "UTC",
			Location: time.UTC,
		},
		Database: config.DatabaseConfig{
			Driver:     driver,
			SQLitePath: ":memory:",
		},
		Engine: config.EngineConfig{
			StreakPolicy: "consecutive",
			MaxAttempts:  3,
			LockTimeout:  time.Second,
		},
	}
}

func TestOpenStore_Memory(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, testConfig(config.DriverMemory), logger.Nop())
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, config.DriverMemory, store.Driver)
	assert.NoError(t, store.Ping(ctx))
}

func TestOpenStore_SQLite(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, testConfig(config.DriverSQLite), logger.Nop())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(ctx))

	user, err := progression.NewUser("u-1", "Ada", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(ctx, user))

	got, err := store.GetUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.DisplayName)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), testConfig("mongo"), logger.Nop())
	assert.ErrorContains(t, err, `unknown database driver "mongo"`)
}

func TestOpenLocks_LocalOnly(t *testing.T) {
	locks, err := OpenLocks(context.Background(), testConfig(config.DriverMemory), logger.Nop())
	require.NoError(t, err)
	defer locks.Close()

	assert.Nil(t, locks.Redis)
	assert.IsType(t, &command.KeyedMutex{}, locks.Locker)
}

func TestNewEngine(t *testing.T) {
	cfg := testConfig(config.DriverMemory)
	cfg.Engine.StreakPolicy = "lenient"
	almaty, err := time.LoadLocation("Asia/Almaty")
	require.NoError(t, err)
	cfg.App.Location = almaty

	engine := NewEngine(cfg)
	assert.Equal(t, progression.StreakLenient, engine.Policy())
	assert.Equal(t, almaty, engine.Calendar().Location())
	assert.NotNil(t, engine.Badges())

	rc := RecordActionConfig(cfg)
	assert.Equal(t, 3, rc.MaxAttempts)
	assert.Equal(t, time.Second, rc.LockTimeout)
}
