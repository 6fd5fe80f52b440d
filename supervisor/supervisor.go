package supervisor

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/hedisam/streamsup/internal/mailbox"
	"github.com/hedisam/streamsup/internal/sysmsg"
	"github.com/hedisam/streamsup/stream"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// Manager owns one slot per worker and enacts a restart policy over them.
//
// Every worker runs on its own goroutine and reports to the Manager through
// its mailbox. Serve drains the mailbox from a single goroutine, the delivery
// loop, so the slot table is never touched concurrently and the merged output
// never sees two events at once. Apart from Dispatch and Go, methods must only
// be called from the delivery loop (OnError, dispatched functions) or before
// Serve starts.
type Manager[In, Out any] struct {
	id     string
	policy Policy
	opts   FactoryOptions[In, Out]
	slots  []*slot
	inbox  *mailbox.Mailbox
	ctx    context.Context
	cancel context.CancelFunc
	log    logrus.FieldLogger
	// wg tracks the goroutines started with Go
	wg sync.WaitGroup

	finished bool
	// failing is set once a fatal error waits behind the events already queued
	failing bool
	closed  bool
	err     error
}

// New builds a Manager for the given workers using strategy as restart policy.
func New[In, Out any](strategy Strategy, opts FactoryOptions[In, Out]) *Manager[In, Out] {
	if strategy == nil {
		strategy = NoRestarts
	}
	opts.withDefaults()
	policy := strategy(len(opts.Workers))
	ctx, cancel := context.WithCancel(opts.Context)

	m := &Manager[In, Out]{
		id:     xid.New().String(),
		policy: policy,
		opts:   opts,
		slots:  make([]*slot, len(opts.Workers)),
		inbox:  mailbox.New(),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range m.slots {
		m.slots[i] = &slot{index: i, state: Active}
	}
	m.log = opts.Logger.WithFields(logrus.Fields{
		"supervisor": m.id,
		"strategy":   policy.Name,
	})
	if m.opts.OnError == nil {
		m.opts.OnError = func(err error, _ int) { m.Error(err) }
	}
	return m
}

// ID uniquely identifies this Manager in logs.
func (m *Manager[In, Out]) ID() string {
	return m.id
}

// Policy returns the restart policy in use.
func (m *Manager[In, Out]) Policy() Policy {
	return m.policy
}

// State returns the state of the slot at index.
func (m *Manager[In, Out]) State(index int) State {
	return m.slots[index].state
}

// Connect starts every worker once, in index order. A worker that does not
// return a stream is a contract violation: Connect stops right there and
// returns the error. The slots started so far are left running; it's up to the
// caller to Fail or Close the Manager.
func (m *Manager[In, Out]) Connect() error {
	for i := range m.slots {
		if err := m.subscribe(i); err != nil {
			return err
		}
	}
	m.log.WithField("workers", len(m.slots)).Debug("supervisor connected")

	if len(m.slots) == 0 {
		m.complete()
	}
	return nil
}

// Fault tears down every member of the fault chain of index that is still
// active and running. Members already faulted or finished are left alone, so
// faulting the same chain twice is harmless.
func (m *Manager[In, Out]) Fault(index int) {
	for _, i := range m.policy.Chain(index) {
		s := m.slots[i]
		if s.state == Active && !s.sub.isClosed() {
			s.state = Faulted
			s.sub.unsubscribe()
			m.log.WithFields(logrus.Fields{
				"worker": m.opts.Names[i],
				"index":  i,
				"cause":  index,
			}).Debug("worker faulted")
		}
	}
}

// Restart settles the fault chain of index. Every member becomes active again
// and is either started anew, when the policy restarts, or retired for good.
func (m *Manager[In, Out]) Restart(index int) {
	if m.finished {
		return
	}

	for _, i := range m.policy.Chain(index) {
		s := m.slots[i]
		s.state = Active
		// a member still running from an overlapping chain is replaced, never doubled
		s.sub.unsubscribe()
		if !m.policy.Restarts {
			continue
		}

		m.log.WithFields(logrus.Fields{
			"worker": m.opts.Names[i],
			"index":  i,
		}).Debug("restarting worker")
		if err := m.subscribe(i); err != nil {
			m.Error(err)
			return
		}
	}

	if !m.policy.Restarts {
		m.checkForCompletion()
	}
}

// Error ends the merged output with err and closes the Manager.
func (m *Manager[In, Out]) Error(err error) {
	if m.finished {
		return
	}
	m.finished = true
	m.err = err
	m.log.WithError(err).Debug("supervisor failed")
	m.Close()
}

// Fail ends the merged output with err once the events already queued by
// running workers have been delivered. From then on worker failures are no
// longer handled and the output can't complete normally.
func (m *Manager[In, Out]) Fail(err error) {
	if m.finished || m.failing {
		return
	}
	m.failing = true
	m.log.WithError(err).Debug("supervisor failing")
	m.Dispatch(func() { m.Error(err) })
}

// Close tears down every slot whatever its state, and waits for every
// goroutine the Manager started. It is safe to call Close more than once.
func (m *Manager[In, Out]) Close() {
	if m.closed {
		return
	}
	m.closed = true

	for _, s := range m.slots {
		s.sub.unsubscribe()
	}
	m.cancel()
	m.inbox.Dispose()
	m.wg.Wait()
}

// Dispatch runs fn on the delivery loop. It can be called from any goroutine;
// fn is dropped once the Manager is closed.
func (m *Manager[In, Out]) Dispatch(fn func()) {
	m.inbox.Send(sysmsg.Call{Fn: fn})
}

// Go runs fn on a new goroutine bound to the Manager's lifetime: ctx is done
// once the Manager closes, and Close waits for fn to return.
func (m *Manager[In, Out]) Go(fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(m.ctx)
	}()
}

// Serve runs the delivery loop until every worker is done, a fatal error
// occurs or the parent context is cancelled. It closes the Manager before
// returning. A nil error means the merged output completed.
func (m *Manager[In, Out]) Serve() error {
	defer m.Close()

	if m.finished {
		return m.err
	}
	err := m.inbox.Receive(m.ctx, m.handle)
	if m.finished {
		return m.err
	}
	return err
}

func (m *Manager[In, Out]) handle(message interface{}) (loop bool) {
	switch msg := message.(type) {
	case sysmsg.Next:
		if sub := msg.Who.(*subscription); !sub.isClosed() {
			value, _ := msg.Value.(Out)
			m.opts.Emit(value)
		}
	case sysmsg.Exit:
		sub := msg.Who.(*subscription)
		if sub.isClosed() {
			break
		}
		if msg.Reason == sysmsg.Normal {
			sub.unsubscribe()
			m.checkForCompletion()
			break
		}
		if m.failing {
			sub.unsubscribe()
			break
		}
		m.opts.OnError(msg.Err, sub.index)
	case sysmsg.Call:
		msg.Fn()
	default:
		m.log.Warnf("supervisor: unknown message %T", msg)
	}
	return !m.finished
}

func (m *Manager[In, Out]) subscribe(index int) error {
	s, err := m.start(index)
	if err != nil {
		return err
	}
	if s == nil {
		return errors.WithStack(&ContractError{Worker: m.opts.Names[index], Index: index})
	}

	ctx, cancel := context.WithCancel(m.ctx)
	sub := &subscription{
		index:  index,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.slots[index].sub = sub
	m.slots[index].state = Active

	go m.run(ctx, sub, s)
	return nil
}

// start invokes the worker's producer. A panicking producer is reported as an error.
func (m *Manager[In, Out]) start(index int) (s stream.Stream[Out], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WithStack(&PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	w := m.opts.Workers[index]
	if w == nil {
		return nil, nil
	}
	return w.Start(m.opts.Input), nil
}

func (m *Manager[In, Out]) run(ctx context.Context, sub *subscription, s stream.Stream[Out]) {
	defer close(sub.done)

	exit := sysmsg.Exit{Who: sub, Reason: sysmsg.Normal}
	defer func() {
		if r := recover(); r != nil {
			exit.Reason = sysmsg.Panic
			exit.Err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		m.inbox.Send(exit)
	}()

	err := s(ctx, func(v Out) {
		if ctx.Err() != nil {
			return
		}
		m.inbox.Send(sysmsg.Next{Who: sub, Value: v})
	})
	if err != nil {
		exit.Reason = sysmsg.Error
		exit.Err = err
	}
}

func (m *Manager[In, Out]) checkForCompletion() {
	if m.failing {
		return
	}
	for _, s := range m.slots {
		if s.state == Faulted || !s.sub.isClosed() {
			return
		}
	}
	m.complete()
}

func (m *Manager[In, Out]) complete() {
	m.finished = true
	m.log.Debug("supervisor completed")
}
