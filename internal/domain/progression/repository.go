package progression

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Commit - атомарная запись одного действия: новое состояние пользователя
// и запись журнала. Либо сохраняется всё, либо ничего.
type Commit struct {
	// User - пользователь с уже применённым действием.
	User *User

	// ExpectedVersion - версия, прочитанная перед применением действия.
	// Если в хранилище другая версия - ErrVersionMismatch.
	ExpectedVersion int64

	// Entry - запись журнала.
	Entry *LedgerEntry
}

// UserReader - чтение пользователей.
type UserReader interface {
	// GetUser возвращает пользователя или ErrUserNotFound.
	GetUser(ctx context.Context, id string) (*User, error)

	// Leaderboard возвращает топ пользователей по опыту (убывание),
	// ничьи - по порядку создания.
	Leaderboard(ctx context.Context, limit int) ([]*User, error)
}

// LedgerReader - чтение журнала.
type LedgerReader interface {
	// RecentEntries возвращает последние записи пользователя (новые первыми).
	RecentEntries(ctx context.Context, userID string, limit int) ([]*LedgerEntry, error)

	// FindEntryByIdempotencyKey ищет запись по ключу; nil, если нет.
	FindEntryByIdempotencyKey(ctx context.Context, userID, key string) (*LedgerEntry, error)

	// LedgerTotals сверяет опыт всех пользователей с суммами журнала.
	LedgerTotals(ctx context.Context) ([]LedgerTotal, error)
}

// Repository - полное хранилище прогрессии.
type Repository interface {
	UserReader
	LedgerReader

	// CreateUser сохраняет нового пользователя и назначает ему Seq.
	// Повторный ID - ErrUserAlreadyExists.
	CreateUser(ctx context.Context, user *User) error

	// Commit атомарно сохраняет состояние и запись журнала.
	// При успехе увеличивает c.User.Version.
	//
	// Ошибки: ErrUserNotFound, ErrVersionMismatch, ErrDuplicateAction.
	Commit(ctx context.Context, c Commit) error
}
