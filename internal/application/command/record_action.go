// Package command содержит операции записи (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/learnhub/progression-engine/internal/application/validation"
	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/domain/shared"
	"github.com/learnhub/progression-engine/pkg/logger"
	"github.com/learnhub/progression-engine/pkg/retry"
)

var tracer = otel.Tracer("github.com/learnhub/progression-engine/internal/application/command")

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTION COMMAND
// Превращает одно действие пользователя в очки, статистику, серию и значки
// и добавляет запись журнала в том же коммите.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActionCommand содержит данные для записи действия.
type RecordActionCommand struct {
	// UserID - пользователь, совершивший действие.
	UserID string `validate:"required,max=128"`

	// ActionType - тип действия из таблицы правил.
	ActionType progression.ActionType

	// Description - текст записи журнала (по умолчанию текст правила).
	Description string `validate:"max=500"`

	// References - ссылки на контент-источник. Существование не проверяется.
	References progression.References

	// Metadata сохраняется в записи журнала как есть.
	Metadata map[string]any

	// IdempotencyKey - ключ идемпотентности для повторных доставок одного действия.
	IdempotencyKey string `validate:"omitempty,max=128"`
}

// Validate проверяет структуру команды. Тип действия сверяет с таблицей
// правил обработчик, чтобы вернуть ErrInvalidActionType.
func (c RecordActionCommand) Validate() error {
	return validation.Struct("RecordAction", c)
}

// RecordActionResult - итог записи действия.
type RecordActionResult struct {
	// EntryID - записанная (или повторно возвращённая) запись журнала.
	EntryID uuid.UUID

	UserID     string
	ActionType progression.ActionType

	// PointsAwarded - начисленные очки.
	PointsAwarded int

	// Experience - опыт после действия.
	Experience int64

	// NewLevel - уровень после действия, всегда вычисляется из Experience.
	NewLevel int

	// LevelUp - уровень вырос.
	LevelUp bool

	// ExperienceToNextLevel - сколько опыта осталось до следующего уровня.
	ExperienceToNextLevel int64

	// NewBadges - значки, полученные этим действием.
	NewBadges []progression.BadgeDefinition

	// Streak - серия после действия.
	Streak progression.Streak

	// Replayed - ключ идемпотентности совпал с прежней записью,
	// ничего не записано.
	Replayed bool
}

// RecordActionConfig - настройки обработчика.
type RecordActionConfig struct {
	// MaxAttempts - предел повторов при конфликте версий.
	MaxAttempts int

	// LockTimeout - сколько ждать блокировку пользователя.
	LockTimeout time.Duration
}

// DefaultRecordActionConfig возвращает настройки по умолчанию.
func DefaultRecordActionConfig() RecordActionConfig {
	return RecordActionConfig{
		MaxAttempts: 5,
		LockTimeout: 5 * time.Second,
	}
}

// RecordActionHandler обрабатывает команду RecordActionCommand.
type RecordActionHandler struct {
	repo    progression.Repository
	engine  *progression.Engine
	locker  Locker
	retrier *retry.Retrier
	config  RecordActionConfig
	logger  *logger.Logger
}

// NewRecordActionHandler создаёт обработчик.
func NewRecordActionHandler(
	repo progression.Repository,
	engine *progression.Engine,
	locker Locker,
	log *logger.Logger,
	config RecordActionConfig,
) *RecordActionHandler {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if log == nil {
		log = logger.Nop()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRecordActionConfig().MaxAttempts
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = DefaultRecordActionConfig().LockTimeout
	}

	log = log.With(logger.Component("record_action"))
	return &RecordActionHandler{
		repo:   repo,
		engine: engine,
		locker: locker,
		retrier: retry.ConflictRetrier(config.MaxAttempts, shared.IsConflict,
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Debug("state version conflict, retrying",
					logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
			}),
		),
		config: config,
		logger: log,
	}
}

// Handle записывает действие.
//
// Ошибки:
//   - shared.ErrInvalidActionType: неизвестный тип, хранилище не затронуто.
//   - shared.ErrValidation: некорректная команда.
//   - shared.ErrUserNotFound: пользователя нет, ничего не записано.
//   - shared.ErrPersistenceConflict: конфликты версий исчерпали повторы.
//   - shared.ErrPersistenceFailure: сбой хранилища, ничего не зафиксировано.
func (h *RecordActionHandler) Handle(ctx context.Context, cmd RecordActionCommand) (*RecordActionResult, error) {
	ctx, span := tracer.Start(ctx, "RecordAction", trace.WithAttributes(
		attribute.String("user.id", cmd.UserID),
		attribute.String("action.type", cmd.ActionType.String()),
	))
	defer span.End()

	result, err := h.handle(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("points.awarded", result.PointsAwarded),
		attribute.Int("level", result.NewLevel),
		attribute.Bool("replayed", result.Replayed),
	)
	return result, nil
}

func (h *RecordActionHandler) handle(ctx context.Context, cmd RecordActionCommand) (*RecordActionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	// Правило определяется до любого I/O: неизвестный тип не трогает хранилище.
	rule, err := h.engine.Rules().Rule(cmd.ActionType)
	if err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, h.config.LockTimeout)
	unlock, err := h.locker.Lock(lockCtx, UserLockKey(cmd.UserID))
	cancel()
	if err != nil {
		if errors.Is(err, shared.ErrServiceUnavailable) {
			return nil, shared.WrapError("progression", "RecordAction", shared.ErrServiceUnavailable,
				"user lock store unavailable", err)
		}
		return nil, shared.WrapError("progression", "RecordAction", shared.ErrPersistenceConflict,
			"could not acquire user lock", err)
	}
	defer unlock()

	var result *RecordActionResult
	err = h.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		r, err := h.attempt(ctx, cmd, rule)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, h.classify(err)
	}
	return result, nil
}

// attempt выполняет один цикл загрузка-применение-коммит на свежем состоянии.
func (h *RecordActionHandler) attempt(ctx context.Context, cmd RecordActionCommand, rule progression.Rule) (*RecordActionResult, error) {
	user, err := h.repo.GetUser(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		prior, err := h.repo.FindEntryByIdempotencyKey(ctx, cmd.UserID, cmd.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return replayed(user, prior), nil
		}
	}

	expected := user.Version
	now := h.engine.Calendar().Now()

	outcome, err := h.engine.Apply(&user.State, cmd.ActionType, now)
	if err != nil {
		return nil, err
	}

	description := cmd.Description
	if description == "" {
		description = rule.Description
	}
	entry := progression.NewLedgerEntry(cmd.UserID, cmd.ActionType, outcome.PointsAwarded, description,
		cmd.References, cmd.Metadata, cmd.IdempotencyKey, now)

	err = h.repo.Commit(ctx, progression.Commit{User: user, ExpectedVersion: expected, Entry: entry})
	if errors.Is(err, shared.ErrDuplicateAction) {
		// Другая доставка с тем же ключом успела раньше, возвращаем её запись.
		return h.replayAfterDuplicate(ctx, cmd)
	}
	if err != nil {
		return nil, err
	}

	h.logger.Debug("action recorded",
		logger.UserID(cmd.UserID),
		logger.ActionType(cmd.ActionType.String()),
		logger.Points(outcome.PointsAwarded),
		logger.UserLevel(outcome.NewLevel),
		logger.Int("new_badges", len(outcome.NewBadges)),
	)
	if outcome.LevelUp() {
		h.logger.Info("level up", logger.UserID(cmd.UserID), logger.UserLevel(outcome.NewLevel))
	}

	return &RecordActionResult{
		EntryID:               entry.ID,
		UserID:                cmd.UserID,
		ActionType:            cmd.ActionType,
		PointsAwarded:         outcome.PointsAwarded,
		Experience:            user.Experience,
		NewLevel:              outcome.NewLevel,
		LevelUp:               outcome.LevelUp(),
		ExperienceToNextLevel: user.ExperienceToNextLevel(),
		NewBadges:             outcome.NewBadges,
		Streak:                user.Streak,
	}, nil
}

func (h *RecordActionHandler) replayAfterDuplicate(ctx context.Context, cmd RecordActionCommand) (*RecordActionResult, error) {
	user, err := h.repo.GetUser(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	prior, err := h.repo.FindEntryByIdempotencyKey(ctx, cmd.UserID, cmd.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, shared.ErrVersionMismatch
	}
	return replayed(user, prior), nil
}

func replayed(user *progression.User, entry *progression.LedgerEntry) *RecordActionResult {
	return &RecordActionResult{
		EntryID:               entry.ID,
		UserID:                user.ID,
		ActionType:            entry.ActionType,
		PointsAwarded:         entry.PointsAwarded,
		Experience:            user.Experience,
		NewLevel:              user.Level(),
		ExperienceToNextLevel: user.ExperienceToNextLevel(),
		Streak:                user.Streak,
		Replayed:              true,
	}
}

// classify сводит ошибки хранилища и повторов к ошибкам прогрессии.
func (h *RecordActionHandler) classify(err error) error {
	switch {
	case errors.Is(err, shared.ErrUserNotFound),
		errors.Is(err, shared.ErrInvalidActionType),
		errors.Is(err, shared.ErrValidation):
		return err
	case errors.Is(err, retry.ErrExhausted):
		return shared.WrapError("progression", "RecordAction", shared.ErrPersistenceConflict,
			"state kept changing underneath", err)
	default:
		return shared.WrapError("progression", "RecordAction", shared.ErrPersistenceFailure,
			"could not persist action", err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATOR BOUNDARY
// ══════════════════════════════════════════════════════════════════════════════

// Причины, по которым награда не начислена.
const (
	ReasonUserNotFound        = "user_not_found"
	ReasonInvalidActionType   = "invalid_action_type"
	ReasonInvalidCommand      = "invalid_command"
	ReasonPersistenceConflict = "persistence_conflict"
	ReasonPersistenceFailure  = "persistence_failure"
)

// RewardOutcome получают обработчики контента. Он никогда не несёт ошибку,
// которая должна прервать исходное бизнес-действие.
type RewardOutcome struct {
	// Granted - награда записана.
	Granted bool

	// Reason - причина отсутствия награды.
	Reason string

	// Result заполнен, только если Granted.
	Result *RecordActionResult

	// Err - исходная ошибка, если вызывающему нужно её разобрать.
	Err error
}

// Reward записывает действие и сообщает о сбоях как "награда не начислена".
// Публикация, комментарий, лайк и подписка проходят независимо от награды,
// поэтому метод логирует ошибку, а не возвращает её.
func (h *RecordActionHandler) Reward(ctx context.Context, cmd RecordActionCommand) RewardOutcome {
	result, err := h.Handle(ctx, cmd)
	if err == nil {
		return RewardOutcome{Granted: true, Result: result}
	}

	fields := []logger.Field{
		logger.UserID(cmd.UserID),
		logger.ActionType(cmd.ActionType.String()),
		logger.Err(err),
	}

	out := RewardOutcome{Err: err}
	switch {
	case errors.Is(err, shared.ErrInvalidActionType):
		out.Reason = ReasonInvalidActionType
		h.logger.Error("reward skipped: invalid action type", fields...)
	case errors.Is(err, shared.ErrValidation):
		out.Reason = ReasonInvalidCommand
		h.logger.Error("reward skipped: invalid command", fields...)
	case errors.Is(err, shared.ErrUserNotFound):
		out.Reason = ReasonUserNotFound
		h.logger.Warn("reward skipped: user not found", fields...)
	case errors.Is(err, shared.ErrPersistenceConflict):
		out.Reason = ReasonPersistenceConflict
		h.logger.Warn("reward skipped: persistence conflict", fields...)
	default:
		out.Reason = ReasonPersistenceFailure
		h.logger.Warn("reward skipped: persistence failure", fields...)
	}
	return out
}
