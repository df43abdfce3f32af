package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserError(t *testing.T) {
	assert.Equal(t, "bad flag", NewUserError("bad flag", nil).Error())

	err := NewUserError("mapping rejected", ErrInvalidRequest)
	assert.Equal(t, "mapping rejected: invalid request", err.Error())
	assert.ErrorIs(t, err, ErrInvalidRequest)

	wrapped := fmt.Errorf("import: %w", NewUserErrorWithHint("no file", "pass a path", nil))
	var userErr *UserError
	require.True(t, errors.As(wrapped, &userErr))
	assert.Equal(t, "pass a path", userErr.Hint)
	assert.Equal(t, "no file", userErr.Message)
}
