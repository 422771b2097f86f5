// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"time"

	"github.com/learnhub/progression-engine/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// SHARED DTOs
// ══════════════════════════════════════════════════════════════════════════════

// StreakDTO - серия дней активности.
type StreakDTO struct {
	Current          int        `json:"current"`
	Longest          int        `json:"longest"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
}

// EarnedBadgeDTO - заработанный значок с описанием из каталога.
type EarnedBadgeDTO struct {
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	EarnedAt    time.Time `json:"earned_at"`
}

// LedgerEntryDTO - запись журнала начислений.
type LedgerEntryDTO struct {
	ID               string         `json:"id"`
	ActionType       string         `json:"action_type"`
	PointsAwarded    int            `json:"points_awarded"`
	Description      string         `json:"description"`
	RelatedPostID    string         `json:"related_post_id,omitempty"`
	RelatedCommentID string         `json:"related_comment_id,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

func streakDTO(s progression.Streak) StreakDTO {
	return StreakDTO{
		Current:          s.Current,
		Longest:          s.Longest,
		LastActivityDate: s.LastActivityDate,
	}
}

// statisticsDTO отдаёт все известные счётчики, включая нулевые,
// чтобы форма ответа не зависела от активности пользователя.
func statisticsDTO(s progression.Statistics) map[string]int64 {
	out := map[string]int64{
		string(progression.StatPostsCreated):   0,
		string(progression.StatCommentsAdded):  0,
		string(progression.StatPostsLiked):     0,
		string(progression.StatCommentsLiked):  0,
		string(progression.StatAIInteractions): 0,
		string(progression.StatHelpfulAnswers): 0,
	}
	for k, v := range s {
		out[string(k)] = v
	}
	return out
}

func earnedBadgesDTO(catalog *progression.BadgeCatalog, earned []progression.EarnedBadge) []EarnedBadgeDTO {
	out := make([]EarnedBadgeDTO, 0, len(earned))
	for _, b := range earned {
		dto := EarnedBadgeDTO{Name: b.Name, EarnedAt: b.EarnedAt}
		// Значок мог быть удалён из каталога - показываем хотя бы имя.
		if def, ok := catalog.Lookup(b.Name); ok {
			dto.Title = def.Title
			dto.Description = def.Description
			dto.Icon = def.Icon
		}
		out = append(out, dto)
	}
	return out
}

func ledgerEntriesDTO(entries []*progression.LedgerEntry) []LedgerEntryDTO {
	out := make([]LedgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryDTO{
			ID:               e.ID.String(),
			ActionType:       e.ActionType.String(),
			PointsAwarded:    e.PointsAwarded,
			Description:      e.Description,
			RelatedPostID:    e.References.PostID,
			RelatedCommentID: e.References.CommentID,
			Metadata:         e.Metadata,
			CreatedAt:        e.CreatedAt,
		})
	}
	return out
}
