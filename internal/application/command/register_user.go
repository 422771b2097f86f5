package command

import (
	"context"
	"time"

	"github.com/learnhub/progression-engine/internal/application/validation"
	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER USER COMMAND
// Создаёт состояние прогрессии пользователя с нулевыми значениями.
// Вызывается подсистемой аккаунтов сразу после создания пользователя.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUserCommand содержит данные для регистрации пользователя.
type RegisterUserCommand struct {
	UserID      string `validate:"required,max=128"`
	DisplayName string `validate:"max=100"`
	AvatarRef   string `validate:"omitempty,max=512"`
}

// Validate проверяет корректность команды.
func (c RegisterUserCommand) Validate() error {
	return validation.Struct("RegisterUser", c)
}

// RegisterUserHandler обрабатывает команду RegisterUserCommand.
type RegisterUserHandler struct {
	repo   progression.Repository
	clock  func() time.Time
	logger *logger.Logger
}

// NewRegisterUserHandler создаёт обработчик.
func NewRegisterUserHandler(repo progression.Repository, log *logger.Logger) *RegisterUserHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RegisterUserHandler{
		repo:   repo,
		clock:  time.Now,
		logger: log.With(logger.Component("register_user")),
	}
}

// Handle создаёт пользователя. Повторная регистрация ID возвращает
// shared.ErrUserAlreadyExists.
func (h *RegisterUserHandler) Handle(ctx context.Context, cmd RegisterUserCommand) (*progression.User, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	user, err := progression.NewUser(cmd.UserID, cmd.DisplayName, cmd.AvatarRef, h.clock())
	if err != nil {
		return nil, err
	}
	if err := h.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	h.logger.Info("user registered", logger.UserID(user.ID))
	return user, nil
}
