package progression

import (
	"time"

	"github.com/learnhub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE (доменный сервис)
// ══════════════════════════════════════════════════════════════════════════════

// Outcome - что изменило одно действие.
type Outcome struct {
	// PointsAwarded - начисленные очки.
	PointsAwarded int

	// OldLevel - уровень до действия.
	OldLevel int

	// NewLevel - уровень после действия.
	NewLevel int

	// Statistic - увеличенный счётчик (пусто, если нет).
	Statistic Statistic

	// StreakAdvanced - серия изменилась (первое действие за день).
	StreakAdvanced bool

	// NewBadges - значки, заработанные этим действием.
	NewBadges []BadgeDefinition
}

// LevelUp сообщает о повышении уровня.
func (o Outcome) LevelUp() bool {
	return o.NewLevel > o.OldLevel
}

// Engine применяет действия к состоянию прогрессии.
// Чистая логика без ввода-вывода: загрузка, блокировки и сохранение
// находятся в прикладном слое.
type Engine struct {
	rules    *RuleTable
	badges   *BadgeCatalog
	policy   StreakPolicy
	calendar *timeutil.Calendar
}

// NewEngine создаёт движок. Таблицы передаются снаружи и не меняются.
func NewEngine(rules *RuleTable, badges *BadgeCatalog, policy StreakPolicy, calendar *timeutil.Calendar) *Engine {
	if rules == nil {
		rules = DefaultRuleTable()
	}
	if badges == nil {
		badges = DefaultBadgeCatalog()
	}
	if policy == "" {
		policy = StreakConsecutive
	}
	if calendar == nil {
		calendar = timeutil.NewCalendar(time.UTC)
	}
	return &Engine{rules: rules, badges: badges, policy: policy, calendar: calendar}
}

// Rules возвращает таблицу правил.
func (e *Engine) Rules() *RuleTable { return e.rules }

// Badges возвращает каталог значков.
func (e *Engine) Badges() *BadgeCatalog { return e.badges }

// Policy возвращает политику серии.
func (e *Engine) Policy() StreakPolicy { return e.policy }

// Calendar возвращает календарь движка.
func (e *Engine) Calendar() *timeutil.Calendar { return e.calendar }

// Apply применяет действие к состоянию на момент now.
// При ошибке (неизвестный тип) состояние не меняется.
func (e *Engine) Apply(state *State, action ActionType, now time.Time) (Outcome, error) {
	rule, err := e.rules.Rule(action)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		PointsAwarded: rule.Points,
		OldLevel:      state.Level(),
	}

	state.Experience += int64(rule.Points)
	out.NewLevel = state.Level()

	if stat, ok := e.rules.StatisticFor(action); ok {
		if state.Statistics == nil {
			state.Statistics = Statistics{}
		}
		state.Statistics[stat]++
		out.Statistic = stat
	}

	state.Streak, out.StreakAdvanced = state.Streak.Advance(e.policy, e.calendar, now)

	out.NewBadges = e.badges.Evaluate(state.Statistics, state.Streak, state.Badges)
	for _, b := range out.NewBadges {
		state.Badges = append(state.Badges, EarnedBadge{Name: b.Name, EarnedAt: now.UTC()})
	}

	return out, nil
}
