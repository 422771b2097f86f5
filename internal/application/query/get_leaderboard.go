package query

import (
	"context"
	"time"

	"github.com/learnhub/progression-engine/internal/application/validation"
	"github.com/learnhub/progression-engine/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Получает топ-N пользователей по опыту. Ничьи разрешаются порядком
// создания, поэтому результат детерминирован для одних и тех же данных.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса лидерборда.
type GetLeaderboardQuery struct {
	// Limit - количество записей (по умолчанию 10, максимум 100).
	Limit int `validate:"gte=0"`
}

// Validate проверяет корректность параметров запроса.
func (q *GetLeaderboardQuery) Validate() error {
	if err := validation.Struct("GetLeaderboard", q); err != nil {
		return err
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Limit == 0 {
		q.Limit = 10
	}
	return nil
}

// LeaderboardEntryDTO - запись лидерборда.
type LeaderboardEntryDTO struct {
	// Rank - позиция в рейтинге (начиная с 1, без пропусков).
	Rank int `json:"rank"`

	UserID      string           `json:"user_id"`
	DisplayName string           `json:"display_name"`
	AvatarRef   string           `json:"avatar_ref,omitempty"`
	Level       int              `json:"level"`
	Experience  int64            `json:"experience"`
	Statistics  map[string]int64 `json:"statistics"`
	Streak      StreakDTO        `json:"streak"`
}

// GetLeaderboardResult содержит результат запроса лидерборда.
type GetLeaderboardResult struct {
	Entries     []LeaderboardEntryDTO `json:"entries"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// GetLeaderboardHandler обрабатывает запросы на получение лидерборда.
type GetLeaderboardHandler struct {
	users progression.UserReader
}

// NewGetLeaderboardHandler создаёт новый обработчик запроса лидерборда.
func NewGetLeaderboardHandler(users progression.UserReader) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{users: users}
}

// Handle выполняет запрос. Кэша нет: данные читаются из хранилища.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	users, err := h.users.Leaderboard(ctx, q.Limit)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntryDTO, 0, len(users))
	for i, u := range users {
		entries = append(entries, LeaderboardEntryDTO{
			Rank:        i + 1,
			UserID:      u.ID,
			DisplayName: u.DisplayName,
			AvatarRef:   u.AvatarRef,
			Level:       u.Level(),
			Experience:  u.Experience,
			Statistics:  statisticsDTO(u.Statistics),
			Streak:      streakDTO(u.Streak),
		})
	}

	return &GetLeaderboardResult{
		Entries:     entries,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
