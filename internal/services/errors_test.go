package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", notFoundf("remark %s not found", "r1"))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "not_found: remark r1 not found", errors.Unwrap(err).Error())
}

func TestConflictKeepsCause(t *testing.T) {
	cause := errors.New("lock busy")
	err := conflictf(cause, "vote contention")

	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, cause)
}

func TestKindOfInternal(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("disk on fire")))
	assert.Equal(t, "forbidden", ErrForbidden.Error())
}
