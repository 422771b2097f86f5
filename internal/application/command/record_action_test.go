package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/domain/shared"
	"github.com/learnhub/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/learnhub/progression-engine/pkg/logger"
	"github.com/learnhub/progression-engine/pkg/timeutil"
)

type RecordActionSuite struct {
	suite.Suite

	ctx     context.Context
	store   *memory.Store
	now     time.Time
	engine  *progression.Engine
	handler *RecordActionHandler
}

func TestRecordActionSuite(t *testing.T) {
	suite.Run(t, new(RecordActionSuite))
}

func (s *RecordActionSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.now = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	cal := timeutil.NewCalendar(time.UTC).WithClock(func() time.Time { return s.now })
	s.engine = progression.NewEngine(progression.DefaultRuleTable(), progression.DefaultBadgeCatalog(),
		progression.StreakConsecutive, cal)
	s.handler = NewRecordActionHandler(s.store, s.engine, NewKeyedMutex(), logger.Nop(), DefaultRecordActionConfig())

	s.createUser("alice")
}

func (s *RecordActionSuite) createUser(id string) {
	u, err := progression.NewUser(id, id, "", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateUser(s.ctx, u))
}

func (s *RecordActionSuite) record(action progression.ActionType) *RecordActionResult {
	res, err := s.handler.Handle(s.ctx, RecordActionCommand{UserID: "alice", ActionType: action})
	s.Require().NoError(err)
	return res
}

func (s *RecordActionSuite) TestPostCreatedTwiceLevelsUp() {
	res := s.record(progression.ActionPostCreated)
	s.Equal(50, res.PointsAwarded)
	s.Equal(1, res.NewLevel)
	s.False(res.LevelUp)
	s.Equal(int64(50), res.ExperienceToNextLevel)
	s.Require().Len(res.NewBadges, 1)
	s.Equal("first_post", res.NewBadges[0].Name)

	res = s.record(progression.ActionPostCreated)
	s.Equal(int64(100), res.Experience)
	s.Equal(2, res.NewLevel)
	s.True(res.LevelUp)
	s.Empty(res.NewBadges)

	u, err := s.store.GetUser(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(2), u.Statistics.Get(progression.StatPostsCreated))
	s.Equal(int64(2), u.Version)
	s.True(u.HasBadge("first_post"))
}

func (s *RecordActionSuite) TestLedgerEntryUsesDefaultDescription() {
	s.record(progression.ActionAIUsed)

	_, err := s.handler.Handle(s.ctx, RecordActionCommand{
		UserID:      "alice",
		ActionType:  progression.ActionCommentAdded,
		Description: "Commented on 'Intro to Go'",
		References:  progression.References{PostID: "p-1", CommentID: "c-9"},
		Metadata:    map[string]any{"source": "web"},
	})
	s.Require().NoError(err)

	entries, err := s.store.RecentEntries(s.ctx, "alice", 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)

	s.Equal(progression.ActionCommentAdded, entries[0].ActionType)
	s.Equal("Commented on 'Intro to Go'", entries[0].Description)
	s.Equal("p-1", entries[0].References.PostID)
	s.Equal("web", entries[0].Metadata["source"])

	s.Equal("Used the AI assistant", entries[1].Description)
	s.Equal(5, entries[1].PointsAwarded)
}

func (s *RecordActionSuite) TestInvalidActionTypeWritesNothing() {
	s.store.SetCommitHook(func(progression.Commit) error {
		s.Fail("commit must not be reached")
		return nil
	})

	_, err := s.handler.Handle(s.ctx, RecordActionCommand{UserID: "alice", ActionType: "post-deleted"})
	s.Require().Error(err)
	s.True(errors.Is(err, shared.ErrInvalidActionType))

	u, err := s.store.GetUser(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(0), u.Experience)
	s.Equal(int64(0), u.Version)

	entries, _ := s.store.RecentEntries(s.ctx, "alice", 10)
	s.Empty(entries)
}

func (s *RecordActionSuite) TestMissingUserWritesNothing() {
	_, err := s.handler.Handle(s.ctx, RecordActionCommand{UserID: "ghost", ActionType: progression.ActionPostLiked})
	s.Require().Error(err)
	s.True(errors.Is(err, shared.ErrUserNotFound))
	s.True(shared.IsNotFound(err))

	totals, err := s.store.LedgerTotals(s.ctx)
	s.Require().NoError(err)
	for _, t := range totals {
		s.Zero(t.Entries)
	}
}

func (s *RecordActionSuite) TestValidation() {
	_, err := s.handler.Handle(s.ctx, RecordActionCommand{ActionType: progression.ActionPostLiked})
	s.True(errors.Is(err, shared.ErrValidation))
}

func (s *RecordActionSuite) TestStreakAcrossDays() {
	s.record(progression.ActionDailyLogin)
	s.now = s.now.Add(3 * time.Hour)
	res := s.record(progression.ActionPostLiked)
	s.Equal(1, res.Streak.Current, "same-day activity must not extend the streak")

	s.now = s.now.AddDate(0, 0, 1)
	res = s.record(progression.ActionPostLiked)
	s.Equal(2, res.Streak.Current)

	s.now = s.now.AddDate(0, 0, 3)
	res = s.record(progression.ActionPostLiked)
	s.Equal(1, res.Streak.Current)
	s.Equal(2, res.Streak.Longest)
}

func (s *RecordActionSuite) TestLedgerSumInvariant() {
	var expected int64
	for i, action := range progression.AllActionTypes() {
		s.now = s.now.Add(time.Duration(i) * 7 * time.Hour)
		res := s.record(action)
		expected += int64(res.PointsAwarded)
		s.Equal(progression.LevelFromExperience(res.Experience), res.NewLevel)
	}

	totals, err := s.store.LedgerTotals(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(totals, 1)
	s.Equal(expected, totals[0].Experience)
	s.True(totals[0].Consistent())
	s.Equal(int64(len(progression.AllActionTypes())), totals[0].Entries)
}

func (s *RecordActionSuite) TestIdempotencyKeyReplays() {
	cmd := RecordActionCommand{UserID: "alice", ActionType: progression.ActionHelpfulAnswer, IdempotencyKey: "answer-77"}

	first, err := s.handler.Handle(s.ctx, cmd)
	s.Require().NoError(err)
	s.False(first.Replayed)

	second, err := s.handler.Handle(s.ctx, cmd)
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.EntryID, second.EntryID)
	s.Equal(25, second.PointsAwarded)
	s.Equal(int64(25), second.Experience)

	u, _ := s.store.GetUser(s.ctx, "alice")
	s.Equal(int64(25), u.Experience)
	s.Equal(int64(1), u.Statistics.Get(progression.StatHelpfulAnswers))
}

func (s *RecordActionSuite) TestConflictRetriedThenSucceeds() {
	failures := 2
	s.store.SetCommitHook(func(progression.Commit) error {
		if failures > 0 {
			failures--
			return shared.ErrVersionMismatch
		}
		return nil
	})

	res := s.record(progression.ActionCommentAdded)
	s.Equal(int64(10), res.Experience)
	s.Zero(failures)
}

func (s *RecordActionSuite) TestConflictExhaustionSurfacesPersistenceConflict() {
	s.store.SetCommitHook(func(progression.Commit) error { return shared.ErrVersionMismatch })

	_, err := s.handler.Handle(s.ctx, RecordActionCommand{UserID: "alice", ActionType: progression.ActionPostLiked})
	s.Require().Error(err)
	s.True(errors.Is(err, shared.ErrPersistenceConflict))

	out := s.handler.Reward(s.ctx, RecordActionCommand{UserID: "alice", ActionType: progression.ActionPostLiked})
	s.False(out.Granted)
	s.Equal(ReasonPersistenceConflict, out.Reason)
}

func (s *RecordActionSuite) TestStorageFailureIsFatalForCall() {
	s.store.SetCommitHook(func(progression.Commit) error { return errors.New("disk full") })

	_, err := s.handler.Handle(s.ctx, RecordActionCommand{UserID: "alice", ActionType: progression.ActionPostLiked})
	s.Require().Error(err)
	s.True(errors.Is(err, shared.ErrPersistenceFailure))

	u, _ := s.store.GetUser(s.ctx, "alice")
	s.Equal(int64(0), u.Experience)
}

func (s *RecordActionSuite) TestRewardSoftFailures() {
	out := s.handler.Reward(s.ctx, RecordActionCommand{UserID: "ghost", ActionType: progression.ActionFollowUser})
	s.False(out.Granted)
	s.Equal(ReasonUserNotFound, out.Reason)
	s.Nil(out.Result)

	out = s.handler.Reward(s.ctx, RecordActionCommand{UserID: "alice", ActionType: "dance"})
	s.False(out.Granted)
	s.Equal(ReasonInvalidActionType, out.Reason)

	out = s.handler.Reward(s.ctx, RecordActionCommand{UserID: "alice", ActionType: progression.ActionFollowUser})
	s.True(out.Granted)
	s.Equal(5, out.Result.PointsAwarded)
}

func (s *RecordActionSuite) TestConcurrentSameUserLosesNoUpdates() {
	const n = 40

	g, ctx := errgroup.WithContext(s.ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := s.handler.Handle(ctx, RecordActionCommand{UserID: "alice", ActionType: progression.ActionCommentAdded})
			return err
		})
	}
	s.Require().NoError(g.Wait())

	u, err := s.store.GetUser(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(n*10), u.Experience)
	s.Equal(int64(n), u.Statistics.Get(progression.StatCommentsAdded))
	s.Equal(int64(n), u.Version)
	s.Equal(1, u.Streak.Current)
}

func TestRecordAction_OptimisticOnlyKeepsLedgerSum(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	u, err := progression.NewUser("bob", "Bob", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(ctx, u))

	handler := NewRecordActionHandler(store, progression.NewEngine(nil, nil, "", nil), NoopLocker{}, logger.Nop(),
		RecordActionConfig{MaxAttempts: 3})

	var (
		mu        sync.Mutex
		successes int
		conflicts int
		wg        sync.WaitGroup
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := handler.Handle(ctx, RecordActionCommand{UserID: "bob", ActionType: progression.ActionPostLiked})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, shared.ErrPersistenceConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 30, successes+conflicts)
	assert.Equal(t, int64(successes*2), got.Experience)

	totals, err := store.LedgerTotals(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.True(t, totals[0].Consistent())
	assert.Equal(t, int64(successes), totals[0].Entries)
}

type downLocker struct{}

func (downLocker) Lock(context.Context, string) (func(), error) {
	return nil, shared.WrapError("redis", "Lock", shared.ErrServiceUnavailable, "lock store unavailable", errors.New("circuit breaker is open"))
}

func TestRecordAction_LockStoreUnavailable(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	u, err := progression.NewUser("carol", "Carol", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(ctx, u))

	handler := NewRecordActionHandler(store, progression.NewEngine(nil, nil, "", nil), downLocker{}, logger.Nop(),
		DefaultRecordActionConfig())

	_, err = handler.Handle(ctx, RecordActionCommand{UserID: "carol", ActionType: progression.ActionPostCreated})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.NotErrorIs(t, err, shared.ErrConflict)

	got, err := store.GetUser(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Experience)
}
