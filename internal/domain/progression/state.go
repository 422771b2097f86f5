package progression

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVELS
// ══════════════════════════════════════════════════════════════════════════════

// XPPerLevel - размер одного уровня в очках опыта.
const XPPerLevel = 100

// LevelFromExperience вычисляет уровень по опыту: floor(xp / XPPerLevel) + 1.
// Уровень нигде не хранится, он всегда выводится из опыта.
func LevelFromExperience(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	return int(xp/XPPerLevel) + 1
}

// ExperienceToNextLevel возвращает, сколько опыта осталось до следующего уровня.
func ExperienceToNextLevel(xp int64) int64 {
	if xp < 0 {
		xp = 0
	}
	return XPPerLevel - xp%XPPerLevel
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

// EarnedBadge - заработанный значок. Значки не отзываются.
type EarnedBadge struct {
	Name     string
	EarnedAt time.Time
}

// State - состояние прогрессии пользователя.
// Меняется только через Engine.Apply.
type State struct {
	// Experience - суммарный опыт, никогда не уменьшается.
	Experience int64

	// Statistics - счётчики действий.
	Statistics Statistics

	// Streak - серия дней активности.
	Streak Streak

	// Badges - заработанные значки (имя встречается не более одного раза).
	Badges []EarnedBadge

	// Version - версия для оптимистической блокировки.
	Version int64
}

// NewState создаёт нулевое состояние.
func NewState() State {
	return State{
		Statistics: Statistics{},
		Badges:     []EarnedBadge{},
	}
}

// Level возвращает уровень, выведенный из опыта.
func (s State) Level() int {
	return LevelFromExperience(s.Experience)
}

// ExperienceToNextLevel возвращает остаток опыта до следующего уровня.
func (s State) ExperienceToNextLevel() int64 {
	return ExperienceToNextLevel(s.Experience)
}

// HasBadge проверяет, заработан ли значок.
func (s State) HasBadge(name string) bool {
	for _, b := range s.Badges {
		if b.Name == name {
			return true
		}
	}
	return false
}

// Clone возвращает глубокую копию состояния.
func (s State) Clone() State {
	out := s
	out.Statistics = s.Statistics.Clone()
	out.Badges = make([]EarnedBadge, len(s.Badges))
	copy(out.Badges, s.Badges)
	if s.Streak.LastActivityDate != nil {
		d := *s.Streak.LastActivityDate
		out.Streak.LastActivityDate = &d
	}
	return out
}
