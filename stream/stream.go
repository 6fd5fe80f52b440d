package stream

import (
	"context"
	"sync/atomic"
	"time"
)

// Stream is a lazy, push based and cancellable sequence of events.
type Stream[T any] func(ctx context.Context, emit func(T)) error

// Of emits values in order, then completes.
func Of[T any](values ...T) Stream[T] {
	return func(ctx context.Context, emit func(T)) error {
		for _, v := range values {
			if err := ctx.Err(); err != nil {
				return err
			}
			emit(v)
		}
		return nil
	}
}

// Empty completes without emitting.
func Empty[T any]() Stream[T] {
	return func(ctx context.Context, emit func(T)) error {
		return nil
	}
}

// Never does not emit and never completes on its own.
func Never[T any]() Stream[T] {
	return func(ctx context.Context, emit func(T)) error {
		<-ctx.Done()
		return ctx.Err()
	}
}

// Fail fails with err without emitting.
func Fail[T any](err error) Stream[T] {
	return func(ctx context.Context, emit func(T)) error {
		return err
	}
}

// Timer emits 0 once d has elapsed, then completes.
func Timer(d time.Duration) Stream[int] {
	return func(ctx context.Context, emit func(int)) error {
		if err := sleep(ctx, d); err != nil {
			return err
		}
		emit(0)
		return nil
	}
}

// Delay subscribes to s once d has elapsed.
func Delay[T any](d time.Duration, s Stream[T]) Stream[T] {
	return func(ctx context.Context, emit func(T)) error {
		if err := sleep(ctx, d); err != nil {
			return err
		}
		return s(ctx, emit)
	}
}

// Concat subscribes to each stream in turn, moving to the next one when the
// previous one completes. The first failure ends the whole sequence.
func Concat[T any](streams ...Stream[T]) Stream[T] {
	return func(ctx context.Context, emit func(T)) error {
		for _, s := range streams {
			if err := s(ctx, emit); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	}
}

// Defer builds the stream to run at subscription time.
func Defer[T any](fn func() Stream[T]) Stream[T] {
	return func(ctx context.Context, emit func(T)) error {
		return fn()(ctx, emit)
	}
}

// Finalize calls fn once s has returned, whether it completed, failed or was
// cancelled.
func Finalize[T any](s Stream[T], fn func()) Stream[T] {
	return func(ctx context.Context, emit func(T)) error {
		defer fn()
		return s(ctx, emit)
	}
}

// Map transforms every event of s.
func Map[T, R any](s Stream[T], fn func(T) R) Stream[R] {
	return func(ctx context.Context, emit func(R)) error {
		return s(ctx, func(v T) {
			emit(fn(v))
		})
	}
}

// Any erases the event type of s.
func Any[T any](s Stream[T]) Stream[any] {
	if s == nil {
		return nil
	}
	return Map(s, func(v T) any { return v })
}

// Collect runs s to the end and returns everything it emitted.
func Collect[T any](ctx context.Context, s Stream[T]) ([]T, error) {
	var out []T
	err := s(ctx, func(v T) {
		out = append(out, v)
	})
	return out, err
}

// Await runs s until it emits its first event or completes, whichever comes
// first, and unsubscribes right after. It returns the error s failed with
// before doing either.
func Await[T any](ctx context.Context, s Stream[T]) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var emitted atomic.Bool
	err := s(ctx, func(T) {
		if emitted.CompareAndSwap(false, true) {
			cancel()
		}
	})
	if emitted.Load() {
		return nil
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
