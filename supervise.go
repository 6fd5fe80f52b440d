package streamsup

import (
	"context"
	"strings"

	"github.com/hedisam/streamsup/stream"
	"github.com/hedisam/streamsup/supervisor"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Options configures Supervise. The zero value is valid.
type Options[In any] struct {
	// Restart is the restart strategy. Defaults to supervisor.NoRestarts.
	Restart supervisor.Strategy
	// OnError handles worker failures. Defaults to logging the failure and
	// reporting it to the OnUnhandledError hook.
	OnError Handler[In]
	// OnRestart is told about every fault chain settled after a recovery.
	OnRestart Observer[In]
	// Config overrides the process wide configuration for this supervisor.
	// When nil, the process wide configuration is read at each failure.
	Config *Configuration
	// Tracer records a span per recovery. Defaults to a no-op tracer.
	Tracer trace.Tracer
}

// Supervised is the merged worker built by Supervise. It is a Worker itself.
type Supervised[In, Out any] struct {
	opts    Options[In]
	workers []Worker[In, Out]
	names   []string
	name    string
}

// Supervise merges the output of workers into a single stream and supervises
// them according to opts.
func Supervise[In, Out any](opts Options[In], workers ...Worker[In, Out]) *Supervised[In, Out] {
	if opts.Restart == nil {
		opts.Restart = supervisor.NoRestarts
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("")
	}

	names := make([]string, len(workers))
	for i, w := range workers {
		names[i] = nameOf(w)
	}

	return &Supervised[In, Out]{
		opts:    opts,
		workers: workers,
		names:   names,
		name:    "superviseEpics(" + strings.Join(names, ", ") + ")",
	}
}

// Combine merges workers without ever restarting them: a failing worker is
// logged and retired while the others keep running. It is Supervise with
// zero Options.
func Combine[In, Out any](workers ...Worker[In, Out]) *Supervised[In, Out] {
	return Supervise(Options[In]{}, workers...)
}

// Name reports the merged worker as superviseEpics(name1, name2, ...).
func (s *Supervised[In, Out]) Name() string {
	return s.name
}

// Start returns the merged stream. Running it starts every worker; it returns
// nil once all of them are done, or the fatal error that ended supervision: a
// worker breaking its contract, or an *ErrorContext for a failed handler.
func (s *Supervised[In, Out]) Start(in In) stream.Stream[Out] {
	return func(ctx context.Context, emit func(Out)) error {
		var m *supervisor.Manager[In, Out]
		m = supervisor.New(s.opts.Restart, supervisor.FactoryOptions[In, Out]{
			Context: ctx,
			Workers: toManaged(s.workers),
			Names:   s.names,
			Input:   in,
			Emit:    emit,
			Logger:  s.configuration().Logger.WithField("name", s.name),
			OnError: func(err error, index int) {
				// siblings go down before the handler gets to run
				m.Fault(index)
				ec := NewErrorContext(s.workers[index], err, nil)
				s.handleFailure(ctx, m, ec, index, in)
			},
		})

		if err := m.Connect(); err != nil {
			m.Fail(err)
		}
		return m.Serve()
	}
}

func (s *Supervised[In, Out]) configuration() Configuration {
	if s.opts.Config != nil {
		return DefaultConfiguration().merge(*s.opts.Config)
	}
	return CurrentConfiguration()
}

// handleFailure runs the error pipeline for a failed worker, then settles its fault
// chain once the handler is done.
func (s *Supervised[In, Out]) handleFailure(ctx context.Context, m *supervisor.Manager[In, Out], ec *ErrorContext, index int, in In) {
	config := s.configuration()
	pipeline := newErrorPipeline(config, s.opts.OnError)

	_, span := s.opts.Tracer.Start(ctx, "streamsup.recover", trace.WithAttributes(
		attribute.String("supervisor.id", m.ID()),
		attribute.String("supervisor.name", s.name),
		attribute.String("supervisor.strategy", m.Policy().Name),
		attribute.String("worker.name", ec.WorkerName),
		attribute.Int("worker.index", index),
	))
	span.RecordError(ec.Err)

	signal, fatal := pipeline.start(ec, in)
	if fatal != nil {
		s.fail(m, span, fatal)
		return
	}
	if signal == nil {
		s.restart(config, m, span, ec, index, in)
		return
	}

	m.Go(func(ctx context.Context) {
		err := stream.Await(ctx, signal)
		if ctx.Err() != nil {
			span.AddEvent("abandoned")
			span.End()
			return
		}
		m.Dispatch(func() {
			if err != nil {
				s.fail(m, span, pipeline.fail(ec, err))
				return
			}
			s.restart(config, m, span, ec, index, in)
		})
	})
}

func (s *Supervised[In, Out]) restart(config Configuration, m *supervisor.Manager[In, Out], span trace.Span, ec *ErrorContext, index int, in In) {
	m.Restart(index)

	if m.Policy().Restarts {
		span.AddEvent("restarted")
	} else {
		span.AddEvent("retired")
	}
	span.SetStatus(codes.Ok, "")
	span.End()

	if s.opts.OnRestart == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			config.Logger.WithFields(logrus.Fields{
				"worker": ec.WorkerName,
				"panic":  r,
			}).Warn("supervisor OnRestart observer panicked")
		}
	}()
	s.opts.OnRestart(ec, in)
}

func (s *Supervised[In, Out]) fail(m *supervisor.Manager[In, Out], span trace.Span, fatal *ErrorContext) {
	span.RecordError(fatal.Err)
	span.SetStatus(codes.Error, fatal.Error())
	span.End()
	m.Error(fatal)
}
