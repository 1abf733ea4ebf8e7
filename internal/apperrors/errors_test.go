package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGameError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Not your turn, please wait", ErrNotYourTurn.Error())

	wrapped := fmt.Errorf("fire B5: %w", ErrInvalidCoordinate)
	assert.ErrorIs(t, wrapped, ErrInvalidCoordinate)
	assert.Equal(t, CodeInvalidCoordinate, CodeOf(wrapped))
	assert.Equal(t, 0, CodeOf(errors.New("plain")))
	assert.Equal(t, 0, CodeOf(nil))
}
