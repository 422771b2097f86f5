package progression

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/progression-engine/internal/domain/shared"
	"github.com/learnhub/progression-engine/pkg/timeutil"
)

var day0 = time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

func newTestEngine(policy StreakPolicy) *Engine {
	return NewEngine(DefaultRuleTable(), DefaultBadgeCatalog(), policy, timeutil.NewCalendar(time.UTC))
}

func TestLevelFromExperience(t *testing.T) {
	cases := []struct {
		xp    int64
		level int
		next  int64
	}{
		{0, 1, 100},
		{50, 1, 50},
		{99, 1, 1},
		{100, 2, 100},
		{250, 3, 50},
		{10_000, 101, 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, LevelFromExperience(tc.xp), "xp=%d", tc.xp)
		assert.Equal(t, tc.next, ExperienceToNextLevel(tc.xp), "xp=%d", tc.xp)
	}
}

func TestEngine_PostCreatedScenario(t *testing.T) {
	e := newTestEngine(StreakConsecutive)
	state := NewState()

	out, err := e.Apply(&state, ActionPostCreated, day0)
	require.NoError(t, err)
	assert.Equal(t, 50, out.PointsAwarded)
	assert.Equal(t, 1, out.NewLevel)
	assert.False(t, out.LevelUp())
	assert.Equal(t, int64(50), state.Experience)
	assert.Equal(t, int64(1), state.Statistics.Get(StatPostsCreated))
	require.Len(t, out.NewBadges, 1)
	assert.Equal(t, "first_post", out.NewBadges[0].Name)

	out, err = e.Apply(&state, ActionPostCreated, day0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(100), state.Experience)
	assert.Equal(t, 2, out.NewLevel)
	assert.True(t, out.LevelUp())
	assert.Empty(t, out.NewBadges, "first_post must not be awarded twice")
}

func TestEngine_TenCommentsDoNotEarnCommentKing(t *testing.T) {
	e := newTestEngine(StreakConsecutive)
	state := NewState()

	for i := 0; i < 10; i++ {
		_, err := e.Apply(&state, ActionCommentAdded, day0)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(10), state.Statistics.Get(StatCommentsAdded))
	assert.Equal(t, int64(0), state.Statistics.Get(StatHelpfulAnswers))
	assert.Equal(t, int64(100), state.Experience)
	assert.False(t, state.HasBadge("comment_king"))
}

func TestEngine_InvalidActionLeavesStateUntouched(t *testing.T) {
	e := newTestEngine(StreakConsecutive)
	state := NewState()
	state.Experience = 42

	_, err := e.Apply(&state, ActionType("post-deleted"), day0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidActionType))
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, int64(42), state.Experience)
	assert.Nil(t, state.Streak.LastActivityDate)
}

func TestEngine_ZeroPointActions(t *testing.T) {
	e := newTestEngine(StreakConsecutive)
	state := NewState()

	out, err := e.Apply(&state, ActionUnfollowUser, day0)
	require.NoError(t, err)
	assert.Equal(t, 0, out.PointsAwarded)
	assert.Equal(t, int64(0), state.Experience)
	assert.Empty(t, out.Statistic)
	// Still counts as activity for the day.
	assert.Equal(t, 1, state.Streak.Current)
}

func TestEngine_InvariantsHoldOverSequence(t *testing.T) {
	e := newTestEngine(StreakConsecutive)
	state := NewState()
	rules := DefaultRuleTable()

	actions := AllActionTypes()
	var expected int64
	now := day0
	for i := 0; i < 500; i++ {
		action := actions[i%len(actions)]
		if i%7 == 0 {
			now = now.Add(24 * time.Hour)
		}
		if i%50 == 0 {
			now = now.Add(72 * time.Hour)
		}
		badgesBefore := len(state.Badges)

		_, err := e.Apply(&state, action, now)
		require.NoError(t, err)

		pts, _ := rules.PointsFor(action)
		expected += int64(pts)

		assert.Equal(t, expected, state.Experience)
		assert.Equal(t, LevelFromExperience(state.Experience), state.Level())
		assert.GreaterOrEqual(t, state.Streak.Longest, state.Streak.Current)
		assert.GreaterOrEqual(t, len(state.Badges), badgesBefore)
	}

	seen := map[string]bool{}
	for _, b := range state.Badges {
		assert.False(t, seen[b.Name], "duplicate badge %s", b.Name)
		seen[b.Name] = true
	}
}

func TestEngine_StreakMasterSurvivesReset(t *testing.T) {
	e := newTestEngine(StreakConsecutive)
	state := NewState()

	for d := 0; d < 7; d++ {
		_, err := e.Apply(&state, ActionDailyLogin, day0.AddDate(0, 0, d))
		require.NoError(t, err)
	}
	require.True(t, state.HasBadge("streak_master"))

	_, err := e.Apply(&state, ActionDailyLogin, day0.AddDate(0, 0, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, state.Streak.Current)
	assert.Equal(t, 7, state.Streak.Longest)
	assert.True(t, state.HasBadge("streak_master"))
}
