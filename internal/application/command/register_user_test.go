package command

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/progression-engine/internal/domain/shared"
	"github.com/learnhub/progression-engine/internal/infrastructure/persistence/memory"
)

func TestRegisterUser(t *testing.T) {
	store := memory.NewStore()
	h := NewRegisterUserHandler(store, nil)
	ctx := context.Background()

	u, err := h.Handle(ctx, RegisterUserCommand{UserID: "u-1", DisplayName: "Ayşe", AvatarRef: "avatars/u-1.png"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.Seq)
	assert.Equal(t, 1, u.Level())

	stored, err := store.GetUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Ayşe", stored.DisplayName)
	assert.Equal(t, int64(0), stored.Experience)

	_, err = h.Handle(ctx, RegisterUserCommand{UserID: "u-1"})
	assert.True(t, shared.IsAlreadyExists(err))

	_, err = h.Handle(ctx, RegisterUserCommand{UserID: strings.Repeat("x", 200)})
	assert.True(t, shared.IsValidation(err))
}
