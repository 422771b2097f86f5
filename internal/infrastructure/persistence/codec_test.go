package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/progression-engine/internal/domain/progression"
)

func TestBadgesKeepOrderAndTime(t *testing.T) {
	at := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	in := []progression.EarnedBadge{
		{Name: "first_post", EarnedAt: at},
		{Name: "streak_master", EarnedAt: at.Add(time.Hour)},
	}

	raw, err := EncodeBadges(in)
	require.NoError(t, err)
	out, err := DecodeBadges(raw)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "first_post", out[0].Name)
	assert.True(t, out[1].EarnedAt.Equal(at.Add(time.Hour)))
}

func TestEmptyColumns(t *testing.T) {
	stats, err := DecodeStatistics(nil)
	require.NoError(t, err)
	assert.NotNil(t, stats)

	raw, err := EncodeStatistics(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))

	raw, err = EncodeMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))

	_, err = DecodeStatistics([]byte("not json"))
	assert.Error(t, err)

	assert.Nil(t, NullString(""))
	assert.Equal(t, "k", NullString("k"))
}
