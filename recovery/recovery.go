// Package recovery provides ready made error handlers for streamsup supervisors.
package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hedisam/streamsup"
	"github.com/hedisam/streamsup/stream"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrGaveUp is the fatal error of a Backoff handler whose policy stopped.
	ErrGaveUp = errors.New("recovery: backoff policy gave up")
	// ErrMaxRestarts is the fatal error of an Intensity handler once a worker
	// restarted too often.
	ErrMaxRestarts = errors.New("recovery: reached max restarts")
)

// Backoff delays each restart by the next interval of b. Once b returns
// backoff.Stop the failure becomes fatal.
//
// b is shared by every failure of the supervisor it's given to and is never
// reset by the handler: the caller owns b.Reset. Wrap b with
// backoff.WithMaxRetries or set a MaxElapsedTime to bound the retries, or use
// BackoffWithReset to start over after a quiet period.
func Backoff[In any](b backoff.BackOff) streamsup.Handler[In] {
	return backoffHandler[In](newBackoffState(b, 0))
}

// BackoffWithReset is Backoff, except that b is reset when no failure happened
// for quiet, so a worker that has been healthy for a while restarts quickly
// again.
func BackoffWithReset[In any](b backoff.BackOff, quiet time.Duration) streamsup.Handler[In] {
	return backoffHandler[In](newBackoffState(b, quiet))
}

// backoffState guards a BackOff shared by concurrent supervisors.
type backoffState struct {
	mu          sync.Mutex
	b           backoff.BackOff
	quiet       time.Duration
	lastFailure time.Time
	now         func() time.Time
}

func newBackoffState(b backoff.BackOff, quiet time.Duration) *backoffState {
	return &backoffState{b: b, quiet: quiet, now: time.Now}
}

func (h *backoffState) next() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if h.quiet > 0 && !h.lastFailure.IsZero() && now.Sub(h.lastFailure) >= h.quiet {
		h.b.Reset()
	}
	h.lastFailure = now
	return h.b.NextBackOff()
}

func backoffHandler[In any](h *backoffState) streamsup.Handler[In] {
	return func(ec *streamsup.ErrorContext, _ In) stream.Stream[any] {
		d := h.next()
		if d == backoff.Stop {
			return stream.Fail[any](errors.WithStack(ErrGaveUp))
		}
		return stream.Any(stream.Timer(d))
	}
}

// Intensity lets each worker restart at most maxRestarts times within period,
// like the restart intensity of an OTP supervisor. The restart that would go
// over the limit fails instead.
func Intensity[In any](maxRestarts int, period time.Duration) streamsup.Handler[In] {
	t := newTracker(maxRestarts, period)
	return func(ec *streamsup.ErrorContext, _ In) stream.Stream[any] {
		if t.reachedMaxRestarts(ec.WorkerName) {
			return stream.Fail[any](errors.Wrapf(ErrMaxRestarts, "%d restarts of %q in %s", maxRestarts, ec.WorkerName, period))
		}
		return nil
	}
}

// Log logs the failure at warn level and recovers at once. Unlike the default
// handler it does not report the failure as unhandled.
func Log[In any](logger logrus.FieldLogger) streamsup.Handler[In] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(ec *streamsup.ErrorContext, _ In) stream.Stream[any] {
		logger.WithError(ec.Err).WithField("worker", ec.WorkerName).Warn("worker failed, recovering")
		return nil
	}
}

// Chain calls every handler at the time of the failure, in order, then waits
// for the streams they returned concurrently. The restart happens once every
// one of them has recovered; the first one failing fails the chain right away.
func Chain[In any](handlers ...streamsup.Handler[In]) streamsup.Handler[In] {
	return func(ec *streamsup.ErrorContext, in In) stream.Stream[any] {
		var pending []stream.Stream[any]
		for _, h := range handlers {
			if s := h(ec, in); s != nil {
				pending = append(pending, s)
			}
		}
		if len(pending) == 0 {
			return nil
		}

		return func(ctx context.Context, emit func(any)) error {
			g, ctx := errgroup.WithContext(ctx)
			for _, s := range pending {
				s := s
				g.Go(func() error {
					return stream.Await(ctx, s)
				})
			}
			return g.Wait()
		}
	}
}
