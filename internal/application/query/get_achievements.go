package query

import (
	"context"
	"time"

	"github.com/learnhub/progression-engine/internal/application/validation"
	"github.com/learnhub/progression-engine/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS QUERY
// Все значки каталога с прогрессом пользователя по каждому.
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementsQuery содержит параметры запроса.
type GetAchievementsQuery struct {
	UserID string `validate:"required,max=128"`
}

// Validate проверяет параметры.
func (q GetAchievementsQuery) Validate() error {
	return validation.Struct("GetAchievements", q)
}

// AchievementDTO - значок и прогресс по нему.
type AchievementDTO struct {
	Name        string     `json:"name"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Progress    int64      `json:"progress"`
	Required    int64      `json:"required"`
	Percent     int        `json:"percent"`
	Earned      bool       `json:"earned"`
	EarnedAt    *time.Time `json:"earned_at,omitempty"`
}

// GetAchievementsResult - результат запроса.
type GetAchievementsResult struct {
	UserID        string           `json:"user_id"`
	Achievements  []AchievementDTO `json:"achievements"`
	TotalEarned   int              `json:"total_earned"`
	TotalPossible int              `json:"total_possible"`
}

// GetAchievementsHandler обрабатывает запрос.
type GetAchievementsHandler struct {
	users   progression.UserReader
	catalog *progression.BadgeCatalog
}

// NewGetAchievementsHandler создаёт обработчик.
func NewGetAchievementsHandler(users progression.UserReader, catalog *progression.BadgeCatalog) *GetAchievementsHandler {
	if catalog == nil {
		catalog = progression.DefaultBadgeCatalog()
	}
	return &GetAchievementsHandler{users: users, catalog: catalog}
}

// Handle выполняет запрос.
func (h *GetAchievementsHandler) Handle(ctx context.Context, q GetAchievementsQuery) (*GetAchievementsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	user, err := h.users.GetUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	progress := h.catalog.Progress(user.Statistics, user.Streak, user.Badges)
	result := &GetAchievementsResult{
		UserID:        user.ID,
		Achievements:  make([]AchievementDTO, 0, len(progress)),
		TotalPossible: h.catalog.Len(),
	}

	for _, p := range progress {
		percent := 100
		if p.Required > 0 {
			percent = int(p.Progress * 100 / p.Required)
		}
		if p.Earned {
			result.TotalEarned++
		}
		result.Achievements = append(result.Achievements, AchievementDTO{
			Name:        p.Badge.Name,
			Title:       p.Badge.Title,
			Description: p.Badge.Description,
			Icon:        p.Badge.Icon,
			Progress:    p.Progress,
			Required:    p.Required,
			Percent:     percent,
			Earned:      p.Earned,
			EarnedAt:    p.EarnedAt,
		})
	}

	return result, nil
}
