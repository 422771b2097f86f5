package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendar_DaysBetween(t *testing.T) {
	cal := NewCalendar(time.FixedZone("UTC+3", 3*60*60))

	// 22:30 UTC on the 1st is already the 2nd at UTC+3.
	late := time.Date(2024, 3, 1, 22, 30, 0, 0, time.UTC)
	morning := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, cal.DaysBetween(late, morning))
	assert.True(t, cal.IsSameDay(late, morning))
	assert.Equal(t, 1, cal.DaysBetween(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), morning))
	assert.Equal(t, -1, cal.DaysBetween(morning, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestCalendar_DaysBetweenAcrossDST(t *testing.T) {
	cal, err := LoadCalendar("Europe/Berlin")
	require.NoError(t, err)

	before := time.Date(2024, 3, 30, 12, 0, 0, 0, cal.Location())
	after := time.Date(2024, 3, 31, 12, 0, 0, 0, cal.Location())

	assert.Equal(t, 1, cal.DaysBetween(before, after))
}

func TestCalendar_TodayUsesClock(t *testing.T) {
	pinned := time.Date(2024, 5, 10, 23, 59, 0, 0, time.UTC)
	cal := NewCalendar(time.UTC).WithClock(func() time.Time { return pinned })

	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), cal.Today())
	assert.Equal(t, "2024-05-10", cal.Format(cal.Now()))
}

func TestLoadCalendar_Invalid(t *testing.T) {
	_, err := LoadCalendar("Not/AZone")
	assert.Error(t, err)
}

func TestCalendar_AnchorKeepsStoredDate(t *testing.T) {
	cal := NewCalendar(time.FixedZone("UTC-5", -5*3600))

	// A DATE column read back as midnight UTC must not slide to the previous day.
	stored := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	anchored := cal.Anchor(stored)

	assert.Equal(t, "2024-06-03", cal.Format(anchored))
	assert.Equal(t, 0, cal.DaysBetween(anchored, time.Date(2024, 6, 3, 20, 0, 0, 0, cal.Location())))

	start := cal.StartOfDay(time.Date(2024, 6, 3, 20, 0, 0, 0, cal.Location()))
	assert.True(t, cal.Anchor(start).Equal(start))
}
