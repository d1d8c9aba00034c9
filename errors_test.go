package arbor_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arbordb/arbor"
)

func TestNotFoundError(t *testing.T) {
	err := arbor.NewNotFoundError("User")
	assert.Equal(t, "arbor: User not found", err.Error())
	assert.True(t, errors.Is(err, arbor.ErrNotFound))
	assert.True(t, arbor.IsNotFound(fmt.Errorf("wrap: %w", err)))
	assert.False(t, arbor.IsNotFound(errors.New("other")))
	assert.False(t, arbor.IsNotFound(nil))

	withID := arbor.NewNotFoundErrorWithID("User", 7)
	assert.Equal(t, "arbor: User not found (id=7)", withID.Error())
}

func TestNotSingularError(t *testing.T) {
	err := arbor.NewNotSingularErrorWithCount("User", 3)
	assert.Equal(t, "arbor: User not singular (got 3 results, expected 1)", err.Error())
	assert.True(t, errors.Is(err, arbor.ErrNotSingular))
}

func TestInputValidationError(t *testing.T) {
	err := arbor.NewInputValidationError("where.email", errors.New("unknown key"))
	assert.Equal(t, `arbor: invalid input at "where.email": unknown key`, err.Error())
	assert.True(t, arbor.IsInputValidationError(err))
	assert.False(t, arbor.IsInputValidationError(errors.New("other")))
}

func TestNotSupportedError(t *testing.T) {
	err := arbor.NewNotSupportedError("createManyAndReturn", "mysql")
	assert.Equal(t, "arbor: createManyAndReturn is not supported on mysql", err.Error())
	assert.True(t, arbor.IsNotSupported(err))
}

func TestConfigError(t *testing.T) {
	err := arbor.NewConfigError("defaultSchema must be included in schemas")
	assert.True(t, arbor.IsConfigError(err))
}

func TestInternalError(t *testing.T) {
	err := arbor.NewInternalError("delegate chain missing base model")
	assert.True(t, arbor.IsInternalError(err))
}

func TestDBQueryError(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: users.email")
	err := arbor.NewDBQueryError("INSERT INTO users (email) VALUES (?)", []any{"a@b.com"}, cause)
	require := assert.New(t)
	require.True(arbor.IsDBQueryError(err))
	require.True(errors.Is(err, cause))

	var dqe *arbor.DBQueryError
	require.True(errors.As(err, &dqe))
	require.Equal("INSERT INTO users (email) VALUES (?)", dqe.SQL)
	require.Contains(dqe.DBErrorMessage, "UNIQUE constraint failed")

	assert.Nil(t, arbor.NewDBQueryError("", nil, nil))
}

func TestConstraintError(t *testing.T) {
	err := arbor.NewConstraintError("unique violation", nil)
	assert.True(t, arbor.IsConstraintError(err))
	assert.False(t, arbor.IsConstraintError(errors.New("other")))
}

func TestAggregateError(t *testing.T) {
	assert.Nil(t, arbor.NewAggregateError())
	assert.Nil(t, arbor.NewAggregateError(nil, nil))

	single := errors.New("single")
	assert.Equal(t, single, arbor.NewAggregateError(single))

	err := arbor.NewAggregateError(errors.New("e1"), errors.New("e2"))
	assert.Contains(t, err.Error(), "multiple errors")
	assert.Contains(t, err.Error(), "e1")
	assert.Contains(t, err.Error(), "e2")
}
