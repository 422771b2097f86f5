package query

import (
	"context"

	"github.com/learnhub/progression-engine/internal/application/validation"
	"github.com/learnhub/progression-engine/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE QUERY
// Профиль прогрессии пользователя: опыт, уровень, статистика, серия,
// значки и последние записи журнала.
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileQuery содержит параметры запроса профиля.
type GetProfileQuery struct {
	// UserID - пользователь.
	UserID string `validate:"required,max=128"`

	// RecentLimit - сколько последних записей журнала вернуть (по умолчанию 10, максимум 50).
	RecentLimit int `validate:"gte=0"`
}

// Validate проверяет параметры и подставляет значения по умолчанию.
func (q *GetProfileQuery) Validate() error {
	if err := validation.Struct("GetProfile", q); err != nil {
		return err
	}
	if q.RecentLimit == 0 {
		q.RecentLimit = 10
	}
	if q.RecentLimit > 50 {
		q.RecentLimit = 50
	}
	return nil
}

// ProfileDTO - профиль прогрессии.
type ProfileDTO struct {
	UserID                string           `json:"user_id"`
	DisplayName           string           `json:"display_name"`
	AvatarRef             string           `json:"avatar_ref,omitempty"`
	Experience            int64            `json:"experience"`
	Level                 int              `json:"level"`
	ExperienceToNextLevel int64            `json:"experience_to_next_level"`
	Statistics            map[string]int64 `json:"statistics"`
	Streak                StreakDTO        `json:"streak"`
	Badges                []EarnedBadgeDTO `json:"badges"`
	RecentEntries         []LedgerEntryDTO `json:"recent_entries"`
}

// ProfileReader - то, что нужно запросу от хранилища.
type ProfileReader interface {
	progression.UserReader
	progression.LedgerReader
}

// GetProfileHandler обрабатывает запрос профиля.
type GetProfileHandler struct {
	repo    ProfileReader
	catalog *progression.BadgeCatalog
}

// NewGetProfileHandler создаёт обработчик.
func NewGetProfileHandler(repo ProfileReader, catalog *progression.BadgeCatalog) *GetProfileHandler {
	if catalog == nil {
		catalog = progression.DefaultBadgeCatalog()
	}
	return &GetProfileHandler{repo: repo, catalog: catalog}
}

// Handle возвращает профиль или shared.ErrUserNotFound.
func (h *GetProfileHandler) Handle(ctx context.Context, q GetProfileQuery) (*ProfileDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	user, err := h.repo.GetUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	entries, err := h.repo.RecentEntries(ctx, q.UserID, q.RecentLimit)
	if err != nil {
		return nil, err
	}

	return &ProfileDTO{
		UserID:                user.ID,
		DisplayName:           user.DisplayName,
		AvatarRef:             user.AvatarRef,
		Experience:            user.Experience,
		Level:                 user.Level(),
		ExperienceToNextLevel: user.ExperienceToNextLevel(),
		Statistics:            statisticsDTO(user.Statistics),
		Streak:                streakDTO(user.Streak),
		Badges:                earnedBadgesDTO(h.catalog, user.Badges),
		RecentEntries:         ledgerEntriesDTO(entries),
	}, nil
}
