package query

import (
	"context"

	"github.com/learnhub/progression-engine/internal/application/validation"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACTIVITY QUERY
// Лента начислений пользователя, новые записи первыми.
// ══════════════════════════════════════════════════════════════════════════════

// GetActivityQuery содержит параметры запроса ленты.
type GetActivityQuery struct {
	UserID string `validate:"required,max=128"`

	// Limit - количество записей (по умолчанию 20, максимум 100).
	Limit int `validate:"gte=0"`
}

// Validate проверяет параметры и подставляет значения по умолчанию.
func (q *GetActivityQuery) Validate() error {
	if err := validation.Struct("GetActivity", q); err != nil {
		return err
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}

// GetActivityResult - результат запроса.
type GetActivityResult struct {
	UserID  string           `json:"user_id"`
	Entries []LedgerEntryDTO `json:"entries"`
	Points  int64            `json:"points"`
}

// GetActivityHandler обрабатывает запрос ленты.
type GetActivityHandler struct {
	repo ProfileReader
}

// NewGetActivityHandler создаёт обработчик.
func NewGetActivityHandler(repo ProfileReader) *GetActivityHandler {
	return &GetActivityHandler{repo: repo}
}

// Handle выполняет запрос. Для неизвестного пользователя - ErrUserNotFound,
// а не пустая лента.
func (h *GetActivityHandler) Handle(ctx context.Context, q GetActivityQuery) (*GetActivityResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if _, err := h.repo.GetUser(ctx, q.UserID); err != nil {
		return nil, err
	}

	entries, err := h.repo.RecentEntries(ctx, q.UserID, q.Limit)
	if err != nil {
		return nil, err
	}

	// Points - сумма только по возвращённой странице.
	var points int64
	for _, e := range entries {
		points += int64(e.PointsAwarded)
	}

	return &GetActivityResult{
		UserID:  q.UserID,
		Entries: ledgerEntriesDTO(entries),
		Points:  points,
	}, nil
}
