package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/domain/shared"
	"github.com/learnhub/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/learnhub/progression-engine/pkg/timeutil"
)

var testNow = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	store  *memory.Store
	engine *progression.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		ctx:   context.Background(),
		store: memory.NewStore(),
		engine: progression.NewEngine(nil, nil, progression.StreakConsecutive,
			timeutil.NewCalendar(time.UTC)),
	}
}

func (f *fixture) user(t *testing.T, id string) {
	t.Helper()
	u, err := progression.NewUser(id, "Name "+id, "", testNow)
	require.NoError(t, err)
	require.NoError(t, f.store.CreateUser(f.ctx, u))
}

// apply records an action directly through the engine and the store.
func (f *fixture) apply(t *testing.T, id string, action progression.ActionType, at time.Time) {
	t.Helper()
	u, err := f.store.GetUser(f.ctx, id)
	require.NoError(t, err)

	expected := u.Version
	out, err := f.engine.Apply(&u.State, action, at)
	require.NoError(t, err)

	entry := progression.NewLedgerEntry(id, action, out.PointsAwarded,
		f.engine.Rules().DefaultDescription(action), progression.References{PostID: "p-1"}, nil, "", at)
	require.NoError(t, f.store.Commit(f.ctx, progression.Commit{User: u, ExpectedVersion: expected, Entry: entry}))
}

func (f *fixture) applyN(t *testing.T, id string, action progression.ActionType, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.apply(t, id, action, testNow)
	}
}

func TestGetLeaderboard_OrderAndRanks(t *testing.T) {
	f := newFixture(t)
	f.user(t, "low")
	f.user(t, "high")
	f.user(t, "mid")

	f.applyN(t, "high", progression.ActionPostCreated, 6) // 300
	f.applyN(t, "mid", progression.ActionPostCreated, 4)  // 200
	f.applyN(t, "low", progression.ActionPostCreated, 2)  // 100

	res, err := NewGetLeaderboardHandler(f.store).Handle(f.ctx, GetLeaderboardQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)

	assert.Equal(t, "high", res.Entries[0].UserID)
	assert.Equal(t, "mid", res.Entries[1].UserID)
	assert.Equal(t, "low", res.Entries[2].UserID)
	for i, e := range res.Entries {
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, 4, res.Entries[0].Level)
	assert.Equal(t, int64(6), res.Entries[0].Statistics["postsCreated"])
	assert.Equal(t, int64(0), res.Entries[0].Statistics["helpfulAnswers"])
}

func TestGetLeaderboard_TieBrokenByCreationOrder(t *testing.T) {
	f := newFixture(t)
	f.user(t, "first")
	f.user(t, "second")
	f.applyN(t, "second", progression.ActionCommentAdded, 2)
	f.applyN(t, "first", progression.ActionCommentAdded, 2)

	res, err := NewGetLeaderboardHandler(f.store).Handle(f.ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "first", res.Entries[0].UserID)
	assert.Equal(t, "second", res.Entries[1].UserID)
	assert.Equal(t, 2, res.Entries[1].Rank)
}

func TestGetLeaderboardQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		want    int
		wantErr bool
	}{
		{"default", 0, 10, false},
		{"kept", 25, 25, false},
		{"capped", 500, 100, false},
		{"negative", -1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := GetLeaderboardQuery{Limit: tt.limit}
			err := q.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, shared.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Limit)
		})
	}
}

func TestGetLeaderboard_Empty(t *testing.T) {
	f := newFixture(t)
	res, err := NewGetLeaderboardHandler(f.store).Handle(f.ctx, GetLeaderboardQuery{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
}

func TestGetProfile(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice")
	f.applyN(t, "alice", progression.ActionPostCreated, 3)
	f.apply(t, "alice", progression.ActionAIUsed, testNow)

	h := NewGetProfileHandler(f.store, f.engine.Badges())
	p, err := h.Handle(f.ctx, GetProfileQuery{UserID: "alice", RecentLimit: 2})
	require.NoError(t, err)

	assert.Equal(t, "Name alice", p.DisplayName)
	assert.Equal(t, int64(155), p.Experience)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, int64(45), p.ExperienceToNextLevel)
	assert.Equal(t, int64(1), p.Statistics["aiInteractions"])
	assert.Equal(t, 1, p.Streak.Current)

	require.Len(t, p.Badges, 1)
	assert.Equal(t, "first_post", p.Badges[0].Name)
	assert.NotEmpty(t, p.Badges[0].Title)

	require.Len(t, p.RecentEntries, 2)
	assert.Equal(t, "ai-used", p.RecentEntries[0].ActionType)
	assert.Equal(t, "p-1", p.RecentEntries[0].RelatedPostID)

	_, err = h.Handle(f.ctx, GetProfileQuery{UserID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	_, err = h.Handle(f.ctx, GetProfileQuery{})
	assert.True(t, shared.IsValidation(err))
}

func TestGetAchievements(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice")
	f.apply(t, "alice", progression.ActionPostCreated, testNow)
	f.applyN(t, "alice", progression.ActionHelpfulAnswer, 4)

	res, err := NewGetAchievementsHandler(f.store, nil).Handle(f.ctx, GetAchievementsQuery{UserID: "alice"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.TotalEarned)
	assert.Equal(t, 6, res.TotalPossible)
	require.Len(t, res.Achievements, 6)

	byName := make(map[string]AchievementDTO)
	for _, a := range res.Achievements {
		byName[a.Name] = a
	}

	fp := byName["first_post"]
	assert.True(t, fp.Earned)
	assert.NotNil(t, fp.EarnedAt)
	assert.Equal(t, 100, fp.Percent)

	mentor := byName["helpful_mentor"]
	assert.False(t, mentor.Earned)
	assert.Equal(t, int64(4), mentor.Progress)
	assert.Equal(t, int64(10), mentor.Required)
	assert.Equal(t, 40, mentor.Percent)

	_, err = NewGetAchievementsHandler(f.store, nil).Handle(f.ctx, GetAchievementsQuery{UserID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}

func TestGetActivity(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice")
	f.apply(t, "alice", progression.ActionPostCreated, testNow)
	f.apply(t, "alice", progression.ActionCommentAdded, testNow.Add(time.Minute))
	f.apply(t, "alice", progression.ActionFollowUser, testNow.Add(2*time.Minute))

	h := NewGetActivityHandler(f.store)
	res, err := h.Handle(f.ctx, GetActivityQuery{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "follow-user", res.Entries[0].ActionType)
	assert.Equal(t, "post-created", res.Entries[2].ActionType)
	assert.Equal(t, int64(50+10+5), res.Points)

	res, err = h.Handle(f.ctx, GetActivityQuery{UserID: "alice", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)

	_, err = h.Handle(f.ctx, GetActivityQuery{UserID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}
