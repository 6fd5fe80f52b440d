package streamsup

import (
	"testing"

	"github.com/hedisam/streamsup/supervisor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorContext_CapturesWorker(t *testing.T) {
	ec := NewErrorContext(epic2, errBoom, nil)

	assert.Equal(t, "epic2", ec.WorkerName)
	assert.Contains(t, ec.WorkerSource, "helpers_test.go:")
	assert.Equal(t, errBoom, ec.Err)
	assert.Nil(t, ec.Inner)
	assert.Equal(t, "epic2: boom", ec.Error())
}

func TestErrorContext_Chain(t *testing.T) {
	original := NewErrorContext(epic2, errBoom, nil)
	wrapped := NewErrorContext(giveUp, errUnhandled, original)

	assert.Equal(t, "giveUp", wrapped.WorkerName)
	assert.Same(t, original, wrapped.Inner)
	assert.Same(t, original, wrapped.Innermost())
	assert.Same(t, original, original.Innermost())

	assert.ErrorIs(t, wrapped, errBoom)
	assert.ErrorIs(t, wrapped, errUnhandled)

	var inner *ErrorContext
	require.ErrorAs(t, wrapped, &inner)
	assert.Same(t, wrapped, inner)
}

func TestErrorContext_Stack(t *testing.T) {
	t.Run("pkg errors", func(t *testing.T) {
		ec := NewErrorContext(epic2, errBoom, nil)
		assert.Contains(t, ec.Stack(), "streamsup")
	})

	t.Run("panic", func(t *testing.T) {
		ec := NewErrorContext(epic2, &supervisor.PanicError{Value: "oops", Stack: []byte("goroutine 1")}, nil)
		assert.Equal(t, "goroutine 1", ec.Stack())
	})

	t.Run("none", func(t *testing.T) {
		ec := NewErrorContext(epic2, plainError("plain"), nil)
		assert.Empty(t, ec.Stack())
	})

	t.Run("wrapped", func(t *testing.T) {
		ec := NewErrorContext(epic2, errors.Wrap(plainError("plain"), "while polling"), nil)
		assert.NotEmpty(t, ec.Stack())
	})
}

type plainError string

func (e plainError) Error() string {
	return string(e)
}
