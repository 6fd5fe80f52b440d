package supervisor

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoStream is matched by the error returned when a worker does not return a stream.
var ErrNoStream = errors.New("worker does not return a stream")

// ContractError reports a worker breaking its contract. It is always fatal.
type ContractError struct {
	Worker string
	Index  int
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("supervise: worker %q does not return a stream. "+
		"Double check you're not missing a return statement!", e.Worker)
}

func (e *ContractError) Is(target error) bool {
	return target == ErrNoStream
}

// PanicError is the failure reported for a worker that panicked.
type PanicError struct {
	Value interface{}
	// Stack is the trace of the goroutine at the time it panicked
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
