package streamsup

import (
	"fmt"

	"github.com/hedisam/streamsup/supervisor"
	"github.com/pkg/errors"
)

// ErrorContext records a failure together with the worker (or handler) it
// came from. Failures that happen while handling another failure link to it
// through Inner, forming a causal chain that always ends at the original fault.
//
// An ErrorContext is never modified once built.
type ErrorContext struct {
	WorkerName string
	// WorkerSource locates the failing code, for debugging only
	WorkerSource string
	Err          error
	Inner        *ErrorContext
}

// NewErrorContext captures err as raised by source, a worker or a handler.
// inner is the failure that was being handled when err happened, if any.
func NewErrorContext(source interface{}, err error, inner *ErrorContext) *ErrorContext {
	return &ErrorContext{
		WorkerName:   nameOf(source),
		WorkerSource: sourceOf(source),
		Err:          err,
		Inner:        inner,
	}
}

func (c *ErrorContext) Error() string {
	return fmt.Sprintf("%s: %v", c.WorkerName, c.Err)
}

// Unwrap exposes both the captured error and the inner context, so errors.Is
// and errors.As can reach any failure along the chain.
func (c *ErrorContext) Unwrap() []error {
	errs := make([]error, 0, 2)
	if c.Err != nil {
		errs = append(errs, c.Err)
	}
	if c.Inner != nil {
		errs = append(errs, c.Inner)
	}
	return errs
}

// Innermost returns the original failure at the end of the chain.
func (c *ErrorContext) Innermost() *ErrorContext {
	for c.Inner != nil {
		c = c.Inner
	}
	return c
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Stack returns the stack trace carried by the captured error, or an empty
// string when it has none.
func (c *ErrorContext) Stack() string {
	var panicErr *supervisor.PanicError
	if errors.As(c.Err, &panicErr) {
		return string(panicErr.Stack)
	}
	var st stackTracer
	if errors.As(c.Err, &st) {
		return fmt.Sprintf("%+v", st.StackTrace())
	}
	return ""
}
