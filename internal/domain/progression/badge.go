package progression

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Metric - чистая функция, вычисляющая значение, по которому выдаётся значок.
// Метрика обязана быть неубывающей при росте статистики и серии,
// иначе значок мог бы "пропасть" - а значки не отзываются.
type Metric func(stats Statistics, streak Streak) int64

// BadgeDefinition описывает значок.
type BadgeDefinition struct {
	// Name - уникальный ключ значка (first_post, streak_master...).
	Name string

	// Title - отображаемое название.
	Title string

	// Description - описание условия.
	Description string

	// Icon - эмодзи или ссылка на иконку.
	Icon string

	// Metric - вычисляет текущее значение метрики.
	Metric Metric

	// Required - порог, с которого значок считается заработанным.
	Required int64
}

// Earned проверяет условие значка.
func (d BadgeDefinition) Earned(stats Statistics, streak Streak) bool {
	return d.Metric(stats, streak) >= d.Required
}

// BadgeProgress - прогресс пользователя по одному значку.
type BadgeProgress struct {
	Badge    BadgeDefinition
	Progress int64
	Required int64
	Earned   bool
	EarnedAt *time.Time
}

// BadgeCatalog - неизменяемый список значков.
type BadgeCatalog struct {
	badges []BadgeDefinition
	index  map[string]int
}

// NewBadgeCatalog создаёт каталог. Имена значков должны быть уникальными.
func NewBadgeCatalog(badges ...BadgeDefinition) (*BadgeCatalog, error) {
	c := &BadgeCatalog{
		badges: make([]BadgeDefinition, 0, len(badges)),
		index:  make(map[string]int, len(badges)),
	}
	for _, b := range badges {
		if b.Name == "" {
			return nil, fmt.Errorf("badge catalog: empty badge name")
		}
		if b.Metric == nil {
			return nil, fmt.Errorf("badge catalog: %s: metric is required", b.Name)
		}
		if _, dup := c.index[b.Name]; dup {
			return nil, fmt.Errorf("badge catalog: duplicate badge %q", b.Name)
		}
		c.index[b.Name] = len(c.badges)
		c.badges = append(c.badges, b)
	}
	return c, nil
}

// statMetric строит метрику из суммы счётчиков.
func statMetric(names ...Statistic) Metric {
	return func(stats Statistics, _ Streak) int64 {
		var total int64
		for _, n := range names {
			total += stats.Get(n)
		}
		return total
	}
}

// longestStreakMetric использует лучшую серию: текущая может сброситься,
// лучшая - нет.
func longestStreakMetric(_ Statistics, streak Streak) int64 {
	return int64(streak.Longest)
}

// DefaultBadgeCatalog возвращает стандартный набор значков платформы.
func DefaultBadgeCatalog() *BadgeCatalog {
	c, err := NewBadgeCatalog(
		BadgeDefinition{
			Name: "first_post", Title: "First Step", Icon: "🎯",
			Description: "Created your first post",
			Metric:      statMetric(StatPostsCreated), Required: 1,
		},
		BadgeDefinition{
			Name: "helpful_mentor", Title: "Helpful Mentor", Icon: "🤝",
			Description: "Gave 10 helpful answers",
			Metric:      statMetric(StatHelpfulAnswers), Required: 10,
		},
		BadgeDefinition{
			Name: "ai_explorer", Title: "AI Explorer", Icon: "🤖",
			Description: "Interacted with the AI assistant 50 times",
			Metric:      statMetric(StatAIInteractions), Required: 50,
		},
		BadgeDefinition{
			Name: "streak_master", Title: "Streak Master", Icon: "🔥",
			Description: "Active 7 days in a row",
			Metric:      longestStreakMetric, Required: 7,
		},
		BadgeDefinition{
			Name: "comment_king", Title: "Comment King", Icon: "💬",
			Description: "Added 100 comments",
			Metric:      statMetric(StatCommentsAdded), Required: 100,
		},
		BadgeDefinition{
			Name: "like_collector", Title: "Like Collector", Icon: "❤️",
			Description: "Collected 1000 likes",
			Metric:      statMetric(StatPostsLiked, StatCommentsLiked), Required: 1000,
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// All возвращает копию списка значков в порядке объявления.
func (c *BadgeCatalog) All() []BadgeDefinition {
	out := make([]BadgeDefinition, len(c.badges))
	copy(out, c.badges)
	return out
}

// Len возвращает количество значков.
func (c *BadgeCatalog) Len() int {
	return len(c.badges)
}

// Lookup ищет значок по имени.
func (c *BadgeCatalog) Lookup(name string) (BadgeDefinition, bool) {
	i, ok := c.index[name]
	if !ok {
		return BadgeDefinition{}, false
	}
	return c.badges[i], true
}

// Evaluate возвращает значки, условие которых выполнено, но которых ещё нет
// среди заработанных.
func (c *BadgeCatalog) Evaluate(stats Statistics, streak Streak, earned []EarnedBadge) []BadgeDefinition {
	have := make(map[string]struct{}, len(earned))
	for _, b := range earned {
		have[b.Name] = struct{}{}
	}

	var fresh []BadgeDefinition
	for _, b := range c.badges {
		if _, ok := have[b.Name]; ok {
			continue
		}
		if b.Earned(stats, streak) {
			fresh = append(fresh, b)
		}
	}
	return fresh
}

// Progress возвращает прогресс по каждому значку каталога.
// Прогресс ограничен порогом, чтобы "150/100" не показывалось.
func (c *BadgeCatalog) Progress(stats Statistics, streak Streak, earned []EarnedBadge) []BadgeProgress {
	when := make(map[string]time.Time, len(earned))
	for _, b := range earned {
		when[b.Name] = b.EarnedAt
	}

	out := make([]BadgeProgress, 0, len(c.badges))
	for _, b := range c.badges {
		value := b.Metric(stats, streak)
		if value > b.Required {
			value = b.Required
		}
		p := BadgeProgress{
			Badge:    b,
			Progress: value,
			Required: b.Required,
		}
		if at, ok := when[b.Name]; ok {
			at := at
			p.Earned = true
			p.EarnedAt = &at
			p.Progress = b.Required
		}
		out = append(out, p)
	}
	return out
}
