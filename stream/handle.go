package stream

import (
	"context"

	"github.com/Workiva/go-datastructures/queue"
)

const defaultHandleSize = 128

type item[T any] struct {
	value T
}

type end struct{}

// Handle runs a stream in the background and buffers its events so they can
// be pulled one at a time.
type Handle[T any] struct {
	buf    *queue.RingBuffer
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start subscribes to s on a new goroutine. Up to size events are buffered;
// once the buffer is full the stream is held back until the consumer catches
// up. A size of zero uses a default.
func Start[T any](ctx context.Context, s Stream[T], size uint64) *Handle[T] {
	if size == 0 {
		size = defaultHandleSize
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle[T]{
		buf:    queue.NewRingBuffer(size),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		err := s(ctx, func(v T) {
			// the only error is queue.ErrDisposed, meaning nobody is listening anymore
			_ = h.buf.Put(item[T]{value: v})
		})
		h.err = err
		_ = h.buf.Put(end{})
	}()

	return h
}

// Next blocks until the next event is available. It returns false once the
// stream is over or the handle has been closed.
func (h *Handle[T]) Next() (T, bool) {
	var zero T
	msg, err := h.buf.Get()
	if err != nil {
		return zero, false
	}

	switch m := msg.(type) {
	case item[T]:
		return m.value, true
	default:
		h.buf.Dispose()
		return zero, false
	}
}

// Done is closed once the stream has returned.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Err waits for the stream to return and reports its error.
func (h *Handle[T]) Err() error {
	<-h.done
	return h.err
}

// Close unsubscribes from the stream and waits for it to return.
// It is safe to call Close more than once.
func (h *Handle[T]) Close() {
	h.cancel()
	h.buf.Dispose()
	<-h.done
}
