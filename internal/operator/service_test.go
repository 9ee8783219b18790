package operator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lithipos/internal/operator"
	"lithipos/internal/storage"
	dErrors "lithipos/pkg/errors"
)

func newService(t *testing.T) *operator.Service {
	t.Helper()
	return operator.NewService(storage.NewInMemoryOperatorStore(), "test-signing-key")
}

func TestCreateOperatorAndLogin(t *testing.T) {
	service := newService(t)
	ctx := context.Background()

	op, err := service.CreateOperator(ctx, "alice", "4321", operator.RoleCashier)
	require.NoError(t, err)
	assert.NotEmpty(t, op.ID)
	assert.NotEqual(t, "4321", op.PINHash, "raw PIN must never be stored")

	token, err := service.Login(ctx, "alice", "4321")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, op.ID, claims.OperatorID)
	assert.Equal(t, string(operator.RoleCashier), claims.Role)
}

func TestCreateOperatorDuplicateUsername(t *testing.T) {
	service := newService(t)
	ctx := context.Background()

	_, err := service.CreateOperator(ctx, "alice", "4321", operator.RoleCashier)
	require.NoError(t, err)

	_, err = service.CreateOperator(ctx, "alice", "9999", operator.RoleManager)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestLoginWrongPIN(t *testing.T) {
	service := newService(t)
	ctx := context.Background()

	_, err := service.CreateOperator(ctx, "alice", "4321", operator.RoleCashier)
	require.NoError(t, err)

	_, err = service.Login(ctx, "alice", "0000")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestLoginUnknownUserLooksLikeWrongPIN(t *testing.T) {
	service := newService(t)

	_, err := service.Login(context.Background(), "ghost", "4321")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	service := newService(t)

	_, err := service.ValidateToken("not-a-jwt")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateTokenRejectsOtherKey(t *testing.T) {
	store := storage.NewInMemoryOperatorStore()
	issuer := operator.NewService(store, "key-one")
	verifier := operator.NewService(store, "key-two")
	ctx := context.Background()

	_, err := issuer.CreateOperator(ctx, "alice", "4321", operator.RoleCashier)
	require.NoError(t, err)
	token, err := issuer.Login(ctx, "alice", "4321")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestSeedDefaultIsIdempotent(t *testing.T) {
	service := newService(t)
	ctx := context.Background()

	require.NoError(t, service.SeedDefault(ctx, "manager", "0000"))
	require.NoError(t, service.SeedDefault(ctx, "manager", "0000"))

	token, err := service.Login(ctx, "manager", "0000")
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, string(operator.RoleManager), claims.Role)
}
