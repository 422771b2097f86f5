package progression

import (
	"fmt"
	"time"

	"github.com/learnhub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// ══════════════════════════════════════════════════════════════════════════════

// Streak - серия дней с хотя бы одним действием.
// Инвариант: Longest >= Current >= 0.
type Streak struct {
	// Current - текущая серия.
	Current int

	// Longest - лучшая серия за всё время.
	Longest int

	// LastActivityDate - начало дня последней активности (nil - активности не было).
	LastActivityDate *time.Time
}

// StreakPolicy определяет, что происходит с серией после пропущенного дня.
type StreakPolicy string

const (
	// StreakConsecutive - серия считает только дни подряд:
	// пропуск хотя бы одного дня начинает серию заново с 1.
	StreakConsecutive StreakPolicy = "consecutive"

	// StreakLenient - любой новый день с активностью увеличивает серию,
	// сброса нет. Совместимо со старым поведением платформы.
	StreakLenient StreakPolicy = "lenient"
)

// ParseStreakPolicy разбирает политику из конфигурации.
func ParseStreakPolicy(s string) (StreakPolicy, error) {
	switch p := StreakPolicy(s); p {
	case StreakConsecutive, StreakLenient:
		return p, nil
	case "":
		return StreakConsecutive, nil
	default:
		return "", fmt.Errorf("unknown streak policy %q", s)
	}
}

// Advance применяет активность в момент now и возвращает новую серию.
// Второй результат сообщает, изменилась ли серия (false для того же дня).
func (s Streak) Advance(policy StreakPolicy, cal *timeutil.Calendar, now time.Time) (Streak, bool) {
	today := cal.StartOfDay(now)
	next := s

	switch {
	case s.LastActivityDate == nil:
		next.Current = 1
	default:
		gap := cal.DaysBetween(cal.Anchor(*s.LastActivityDate), today)
		if gap <= 0 {
			// Тот же день (или часы отстают) - серия не меняется.
			return s, false
		}
		if gap == 1 || policy == StreakLenient {
			next.Current = s.Current + 1
		} else {
			next.Current = 1
		}
	}

	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	next.LastActivityDate = &today
	return next, true
}

// IsBroken проверяет, будет ли серия сброшена при следующей активности в now.
// При политике StreakLenient серия не ломается никогда.
func (s Streak) IsBroken(policy StreakPolicy, cal *timeutil.Calendar, now time.Time) bool {
	if policy == StreakLenient || s.LastActivityDate == nil {
		return false
	}
	return cal.DaysBetween(cal.Anchor(*s.LastActivityDate), now) > 1
}
