// Package persistence holds helpers shared by the SQL stores: JSON column
// encoding for statistics, badges and ledger metadata.
package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/learnhub/progression-engine/internal/domain/progression"
)

type badgeRow struct {
	Name     string    `json:"name"`
	EarnedAt time.Time `json:"earned_at"`
}

// EncodeStatistics marshals counters to a JSON object.
func EncodeStatistics(s progression.Statistics) ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode statistics: %w", err)
	}
	return b, nil
}

// DecodeStatistics is the inverse of EncodeStatistics. Empty input yields
// an empty, non-nil map.
func DecodeStatistics(raw []byte) (progression.Statistics, error) {
	out := make(progression.Statistics)
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode statistics: %w", err)
	}
	return out, nil
}

// EncodeBadges marshals earned badges to a JSON array.
func EncodeBadges(badges []progression.EarnedBadge) ([]byte, error) {
	rows := make([]badgeRow, 0, len(badges))
	for _, b := range badges {
		rows = append(rows, badgeRow{Name: b.Name, EarnedAt: b.EarnedAt.UTC()})
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode badges: %w", err)
	}
	return b, nil
}

// DecodeBadges is the inverse of EncodeBadges.
func DecodeBadges(raw []byte) ([]progression.EarnedBadge, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []badgeRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode badges: %w", err)
	}
	out := make([]progression.EarnedBadge, 0, len(rows))
	for _, r := range rows {
		out = append(out, progression.EarnedBadge{Name: r.Name, EarnedAt: r.EarnedAt})
	}
	return out, nil
}

// EncodeMetadata marshals free-form entry metadata. Nil becomes "{}".
func EncodeMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

// DecodeMetadata is the inverse of EncodeMetadata.
func DecodeMetadata(raw []byte) (map[string]any, error) {
	out := make(map[string]any)
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return out, nil
}

// NullString maps "" to nil so optional columns stay NULL.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
