package progression

import (
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// References - необязательные ссылки на контент, вызвавший действие.
// Движок не проверяет их существование: они нужны только для аудита.
type References struct {
	PostID    string
	CommentID string
}

// IsZero сообщает, что ссылок нет.
func (r References) IsZero() bool {
	return r.PostID == "" && r.CommentID == ""
}

// LedgerEntry - неизменяемая запись журнала начислений.
// Создаётся движком на каждое записанное действие, не изменяется и не удаляется.
// Удаление связанного поста или комментария не меняет прошлые записи.
type LedgerEntry struct {
	// ID - уникальный идентификатор записи.
	ID uuid.UUID

	// UserID - кому начислено.
	UserID string

	// ActionType - тип действия.
	ActionType ActionType

	// PointsAwarded - начисленные очки (может быть 0).
	PointsAwarded int

	// Description - описание действия.
	Description string

	// References - ссылки на пост/комментарий.
	References References

	// Metadata - произвольные данные от вызывающей стороны.
	Metadata map[string]any

	// IdempotencyKey - ключ повторной доставки (пусто - без дедупликации).
	IdempotencyKey string

	// CreatedAt - время записи.
	CreatedAt time.Time
}

// NewLedgerEntry создаёт запись журнала.
func NewLedgerEntry(userID string, action ActionType, points int, description string, refs References, metadata map[string]any, idempotencyKey string, now time.Time) *LedgerEntry {
	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return &LedgerEntry{
		ID:             uuid.New(),
		UserID:         userID,
		ActionType:     action,
		PointsAwarded:  points,
		Description:    description,
		References:     refs,
		Metadata:       md,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now.UTC(),
	}
}

// LedgerTotal - сверка опыта пользователя с суммой его журнала.
type LedgerTotal struct {
	UserID       string
	Experience   int64
	LedgerPoints int64
	Entries      int64
}

// Consistent сообщает, совпадает ли опыт с суммой журнала.
func (t LedgerTotal) Consistent() bool {
	return t.Experience == t.LedgerPoints
}
