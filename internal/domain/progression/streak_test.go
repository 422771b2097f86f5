package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/progression-engine/pkg/timeutil"
)

func TestStreak_SameDayIsIdempotent(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	var s Streak

	s, changed := s.Advance(StreakConsecutive, cal, day0)
	require.True(t, changed)
	s, changed = s.Advance(StreakConsecutive, cal, day0.Add(5*time.Hour))

	assert.False(t, changed)
	assert.Equal(t, 1, s.Current)
	assert.Equal(t, 1, s.Longest)
}

func TestStreak_Policies(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)

	cases := []struct {
		name    string
		policy  StreakPolicy
		days    []int
		current int
		longest int
	}{
		{"consecutive days", StreakConsecutive, []int{0, 1, 2}, 3, 3},
		{"consecutive resets after gap", StreakConsecutive, []int{0, 1, 2, 5}, 1, 3},
		{"consecutive rebuilds after reset", StreakConsecutive, []int{0, 3, 4, 5, 6}, 4, 4},
		{"lenient never resets", StreakLenient, []int{0, 1, 2, 5}, 4, 4},
		{"lenient counts days with activity", StreakLenient, []int{0, 10, 30}, 3, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s Streak
			for _, d := range tc.days {
				s, _ = s.Advance(tc.policy, cal, day0.AddDate(0, 0, d))
				assert.GreaterOrEqual(t, s.Longest, s.Current)
			}
			assert.Equal(t, tc.current, s.Current)
			assert.Equal(t, tc.longest, s.Longest)
			require.NotNil(t, s.LastActivityDate)
			assert.Equal(t, cal.StartOfDay(day0.AddDate(0, 0, tc.days[len(tc.days)-1])), *s.LastActivityDate)
		})
	}
}

func TestStreak_DayBoundaryFollowsCalendar(t *testing.T) {
	istanbul := timeutil.NewCalendar(time.FixedZone("TRT", 3*60*60))

	// Two hours apart in UTC but on consecutive local days.
	first := time.Date(2024, 4, 1, 20, 0, 0, 0, time.UTC)  // 23:00 local, Apr 1
	second := time.Date(2024, 4, 1, 22, 0, 0, 0, time.UTC) // 01:00 local, Apr 2

	var s Streak
	s, _ = s.Advance(StreakConsecutive, istanbul, first)
	s, changed := s.Advance(StreakConsecutive, istanbul, second)

	assert.True(t, changed)
	assert.Equal(t, 2, s.Current)
}

func TestStreak_IsBroken(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	var s Streak
	s, _ = s.Advance(StreakConsecutive, cal, day0)

	assert.False(t, s.IsBroken(StreakConsecutive, cal, day0.AddDate(0, 0, 1)))
	assert.True(t, s.IsBroken(StreakConsecutive, cal, day0.AddDate(0, 0, 2)))
	assert.False(t, s.IsBroken(StreakLenient, cal, day0.AddDate(0, 0, 2)))
}

func TestParseStreakPolicy(t *testing.T) {
	p, err := ParseStreakPolicy("")
	require.NoError(t, err)
	assert.Equal(t, StreakConsecutive, p)

	p, err = ParseStreakPolicy("lenient")
	require.NoError(t, err)
	assert.Equal(t, StreakLenient, p)

	_, err = ParseStreakPolicy("weekly")
	assert.Error(t, err)
}
