package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKindThroughWrapping(t *testing.T) {
	err := New(ErrConflict, "refs.advance", "main", "tip moved")
	wrapped := fmt.Errorf("create intent: %w", err)

	assert.ErrorIs(t, wrapped, ErrConflict)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, ErrConflict, KindOf(wrapped))
}

func TestErrorKeepsCause(t *testing.T) {
	err := Wrap(ErrLockContention, "lockfile.acquire", "/x/HEAD", fs.ErrExist)

	assert.ErrorIs(t, err, ErrLockContention)
	assert.ErrorIs(t, err, fs.ErrExist)
}

func TestErrorString(t *testing.T) {
	err := InvalidReference("repo.create_decision", "intent_id", "abcd", "is a constraint, expected intent")
	assert.Equal(t, `repo.create_decision: invalid reference "abcd" (field intent_id): is a constraint, expected intent`, err.Error())
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{New(ErrNotFound, "", "", ""), "NOT_FOUND"},
		{New(ErrIntegrity, "", "", ""), "INTEGRITY"},
		{New(ErrForbidden, "", "", ""), "FORBIDDEN"},
		{New(ErrInvalidName, "", "", ""), "INVALID_NAME"},
		{errors.New("disk on fire"), "IO"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}
