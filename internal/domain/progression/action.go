// Package progression содержит доменную модель прогрессии пользователя:
// типы действий и таблицу правил, каталог значков, состояние прогрессии
// (опыт, уровень, статистика, серия дней) и журнал начислений.
package progression

import (
	"fmt"
	"sort"

	"github.com/learnhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTION TYPES
// ══════════════════════════════════════════════════════════════════════════════

// ActionType - тип действия пользователя, за которое начисляются очки.
// Множество типов закрыто: всё, что не перечислено ниже, отклоняется.
type ActionType string

const (
	ActionPostCreated         ActionType = "post-created"
	ActionCommentAdded        ActionType = "comment-added"
	ActionPostLiked           ActionType = "post-liked"
	ActionCommentLiked        ActionType = "comment-liked"
	ActionAIUsed              ActionType = "ai-used"
	ActionHelpfulAnswer       ActionType = "helpful-answer"
	ActionFollowUser          ActionType = "follow-user"
	ActionUnfollowUser        ActionType = "unfollow-user"
	ActionDailyLogin          ActionType = "daily-login"
	ActionStreakMilestone     ActionType = "streak-milestone"
	ActionLearningProgress    ActionType = "learning-progress"
	ActionAssessmentCompleted ActionType = "assessment-completed"
)

// AllActionTypes возвращает полное перечисление типов действий.
func AllActionTypes() []ActionType {
	return []ActionType{
		ActionPostCreated,
		ActionCommentAdded,
		ActionPostLiked,
		ActionCommentLiked,
		ActionAIUsed,
		ActionHelpfulAnswer,
		ActionFollowUser,
		ActionUnfollowUser,
		ActionDailyLogin,
		ActionStreakMilestone,
		ActionLearningProgress,
		ActionAssessmentCompleted,
	}
}

// IsValid проверяет, входит ли тип в перечисление.
func (t ActionType) IsValid() bool {
	for _, known := range AllActionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// String возвращает строковое представление.
func (t ActionType) String() string {
	return string(t)
}

// ParseActionType разбирает строку в ActionType.
func ParseActionType(s string) (ActionType, error) {
	t := ActionType(s)
	if !t.IsValid() {
		return "", shared.WrapError("progression", "ParseActionType", shared.ErrInvalidActionType,
			fmt.Sprintf("unknown action type %q", s), nil)
	}
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// Statistic - имя счётчика в статистике профиля.
type Statistic string

const (
	StatPostsCreated   Statistic = "postsCreated"
	StatCommentsAdded  Statistic = "commentsAdded"
	StatPostsLiked     Statistic = "postsLiked"
	StatCommentsLiked  Statistic = "commentsLiked"
	StatAIInteractions Statistic = "aiInteractions"
	StatHelpfulAnswers Statistic = "helpfulAnswers"
)

// Statistics - набор неотрицательных счётчиков по действиям.
// Отсутствующий ключ эквивалентен нулю.
type Statistics map[Statistic]int64

// Get возвращает значение счётчика.
func (s Statistics) Get(name Statistic) int64 {
	if s == nil {
		return 0
	}
	return s[name]
}

// Clone возвращает независимую копию.
func (s Statistics) Clone() Statistics {
	out := make(Statistics, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// RULE TABLE
// ══════════════════════════════════════════════════════════════════════════════

// Rule - правило начисления для одного типа действия.
type Rule struct {
	// Points - сколько очков даёт действие (>= 0).
	Points int

	// Statistic - какой счётчик увеличивается (пусто - никакой).
	Statistic Statistic

	// Description - описание по умолчанию для записи в журнале.
	Description string
}

// RuleTable - неизменяемая таблица правил. Строится один раз при старте
// процесса и передаётся в движок; во время работы не меняется.
type RuleTable struct {
	rules map[ActionType]Rule
}

// NewRuleTable создаёт таблицу из набора правил.
// Каждый тип из перечисления должен иметь правило, очки не могут быть отрицательными.
func NewRuleTable(rules map[ActionType]Rule) (*RuleTable, error) {
	copied := make(map[ActionType]Rule, len(rules))
	for t, r := range rules {
		if !t.IsValid() {
			return nil, fmt.Errorf("rule table: unknown action type %q", t)
		}
		if r.Points < 0 {
			return nil, fmt.Errorf("rule table: %s: %w", t, shared.ErrNegativeValue)
		}
		copied[t] = r
	}
	for _, t := range AllActionTypes() {
		if _, ok := copied[t]; !ok {
			return nil, fmt.Errorf("rule table: missing rule for %q", t)
		}
	}
	return &RuleTable{rules: copied}, nil
}

// DefaultRuleTable возвращает стандартную таблицу очков платформы.
func DefaultRuleTable() *RuleTable {
	rt, err := NewRuleTable(map[ActionType]Rule{
		ActionPostCreated:         {Points: 50, Statistic: StatPostsCreated, Description: "Created a post"},
		ActionCommentAdded:        {Points: 10, Statistic: StatCommentsAdded, Description: "Added a comment"},
		ActionPostLiked:           {Points: 2, Statistic: StatPostsLiked, Description: "Liked a post"},
		ActionCommentLiked:        {Points: 1, Statistic: StatCommentsLiked, Description: "Liked a comment"},
		ActionAIUsed:              {Points: 5, Statistic: StatAIInteractions, Description: "Used the AI assistant"},
		ActionHelpfulAnswer:       {Points: 25, Statistic: StatHelpfulAnswers, Description: "Gave a helpful answer"},
		ActionFollowUser:          {Points: 5, Description: "Followed a user"},
		ActionUnfollowUser:        {Points: 0, Description: "Unfollowed a user"},
		ActionDailyLogin:          {Points: 10, Description: "Daily login"},
		ActionStreakMilestone:     {Points: 0, Description: "Reached a streak milestone"},
		ActionLearningProgress:    {Points: 15, Description: "Made learning progress"},
		ActionAssessmentCompleted: {Points: 30, Description: "Completed an assessment"},
	})
	if err != nil {
		panic(err)
	}
	return rt
}

// Rule возвращает правило для типа или ErrInvalidActionType.
func (rt *RuleTable) Rule(t ActionType) (Rule, error) {
	r, ok := rt.rules[t]
	if !ok {
		return Rule{}, shared.WrapError("progression", "ResolveRule", shared.ErrInvalidActionType,
			fmt.Sprintf("unknown action type %q", t), nil)
	}
	return r, nil
}

// PointsFor возвращает количество очков за действие.
func (rt *RuleTable) PointsFor(t ActionType) (int, error) {
	r, err := rt.Rule(t)
	if err != nil {
		return 0, err
	}
	return r.Points, nil
}

// StatisticFor возвращает счётчик, который увеличивает действие, если он есть.
func (rt *RuleTable) StatisticFor(t ActionType) (Statistic, bool) {
	r, ok := rt.rules[t]
	if !ok || r.Statistic == "" {
		return "", false
	}
	return r.Statistic, true
}

// DefaultDescription возвращает описание по умолчанию.
func (rt *RuleTable) DefaultDescription(t ActionType) string {
	return rt.rules[t].Description
}

// Types возвращает типы действий таблицы в стабильном порядке.
func (rt *RuleTable) Types() []ActionType {
	types := make([]ActionType, 0, len(rt.rules))
	for t := range rt.rules {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
