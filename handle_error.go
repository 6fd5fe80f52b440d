package streamsup

import (
	"runtime/debug"

	"github.com/hedisam/streamsup/stream"
	"github.com/hedisam/streamsup/supervisor"
)

// Handler is called when a worker fails, right after its fault chain has been
// torn down. Returning nil means the failure is dealt with and the chain can be
// restarted (or retired) at once. Returning a stream defers that decision until
// the stream emits its first event or completes. A stream that fails first, or a
// Handler that panics, ends the whole supervisor; panicking with an error value
// is the way to rethrow from a Handler that does not return a stream.
type Handler[In any] func(ec *ErrorContext, in In) stream.Stream[any]

// Observer is told about a fault chain that has been restarted.
type Observer[In any] func(ec *ErrorContext, in In)

// defaultErrorHandler logs the failure, reports it as unhandled and recovers
// without output: the failing chain is restarted when the strategy restarts,
// and retired otherwise.
type defaultErrorHandler struct {
	config Configuration
}

func (h defaultErrorHandler) Name() string {
	return "defaultErrorHandler"
}

func (h defaultErrorHandler) handle(ec *ErrorContext) {
	h.config.Logger.WithError(ec.Err).Errorf("An uncaught error occurred in epic \"%s\"", ec.WorkerName)
	h.config.onUnhandledError(ec)
}

// errorPipeline runs the error handling steps for one failure.
type errorPipeline[In any] struct {
	config  Configuration
	handler Handler[In]
	// source names the handler in the error context of its own failures
	source interface{}
}

func newErrorPipeline[In any](config Configuration, handler Handler[In]) errorPipeline[In] {
	if handler == nil {
		def := defaultErrorHandler{config: config}
		return errorPipeline[In]{
			config: config,
			handler: func(ec *ErrorContext, _ In) stream.Stream[any] {
				def.handle(ec)
				return nil
			},
			source: def,
		}
	}
	return errorPipeline[In]{config: config, handler: handler, source: handler}
}

// start reports ec and calls the handler. It returns the stream to wait for
// before the restart, nil to restart right away, or the fatal error the
// handler failed with.
func (p errorPipeline[In]) start(ec *ErrorContext, in In) (stream.Stream[any], *ErrorContext) {
	p.config.onAnyError(ec)

	signal, err := p.invoke(ec, in)
	if err != nil {
		return nil, p.fail(ec, err)
	}
	return signal, nil
}

func (p errorPipeline[In]) invoke(ec *ErrorContext, in In) (signal stream.Stream[any], err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = &supervisor.PanicError{Value: r, Stack: debug.Stack()}
			}
		}
	}()
	return p.handler(ec, in), nil
}

// fail turns a handler failure into the fatal error of the supervisor. An
// ErrorContext rethrown by the handler is kept as is.
func (p errorPipeline[In]) fail(ec *ErrorContext, err error) *ErrorContext {
	wrapped, ok := err.(*ErrorContext)
	if !ok {
		wrapped = NewErrorContext(p.source, err, ec)
	}
	p.config.onAnyError(wrapped)
	p.config.onUnhandledError(wrapped)
	return wrapped
}
