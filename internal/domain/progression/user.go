package progression

import (
	"strings"
	"time"

	"github.com/learnhub/progression-engine/internal/domain/shared"
)

// User - пользователь с встроенным состоянием прогрессии.
// Прогрессия не живёт отдельно от пользователя: создаётся вместе с ним
// и удаляется только вместе с ним.
type User struct {
	// ID - внешний идентификатор пользователя.
	ID string

	// DisplayName - отображаемое имя для рейтинга.
	DisplayName string

	// AvatarRef - ссылка на аватар (может быть пустой).
	AvatarRef string

	// CreatedAt - время создания.
	CreatedAt time.Time

	// Seq - порядковый номер создания; разрешает ничьи в рейтинге.
	// Назначается хранилищем.
	Seq int64

	// State - прогрессия.
	State
}

// NewUser создаёт пользователя с нулевой прогрессией.
func NewUser(id, displayName, avatarRef string, now time.Time) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, shared.NewDomainError("progression", "NewUser", shared.ErrInvalidID, "user id is required")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = id
	}
	return &User{
		ID:          id,
		DisplayName: displayName,
		AvatarRef:   strings.TrimSpace(avatarRef),
		CreatedAt:   now.UTC(),
		State:       NewState(),
	}, nil
}

// Clone возвращает глубокую копию пользователя.
func (u *User) Clone() *User {
	out := *u
	out.State = u.State.Clone()
	return &out
}
