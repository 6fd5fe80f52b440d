package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hedisam/streamsup/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workerFunc func(in string) stream.Stream[string]

func (f workerFunc) Start(in string) stream.Stream[string] {
	return f(in)
}

func constant(s stream.Stream[string]) Worker[string, string] {
	return workerFunc(func(string) stream.Stream[string] { return s })
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) emit(v string) {
	r.mu.Lock()
	r.events = append(r.events, v)
	r.mu.Unlock()
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newManager(strategy Strategy, rec *recorder, workers ...Worker[string, string]) *Manager[string, string] {
	opts := FactoryOptions[string, string]{Workers: workers, Input: "in"}
	if rec != nil {
		opts.Emit = rec.emit
	}
	return New(strategy, opts)
}

func serve(t *testing.T, m *Manager[string, string]) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- m.Serve() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not finish")
		return nil
	}
}

func TestManager_CompletesOnceEveryWorkerCompletes(t *testing.T) {
	rec := &recorder{}
	m := newManager(NoRestarts, rec,
		constant(stream.Of("a", "b")),
		constant(stream.Delay(5*time.Millisecond, stream.Of("c"))),
	)

	require.NoError(t, m.Connect())
	require.NoError(t, serve(t, m))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, rec.get())
}

func TestManager_PassesInputToEveryWorker(t *testing.T) {
	rec := &recorder{}
	echo := workerFunc(func(in string) stream.Stream[string] { return stream.Of(in) })
	m := newManager(NoRestarts, rec, echo, echo)

	require.NoError(t, m.Connect())
	require.NoError(t, serve(t, m))
	assert.Equal(t, []string{"in", "in"}, rec.get())
}

func TestManager_NoWorkersCompletesImmediately(t *testing.T) {
	m := newManager(OneForOne, nil)
	require.NoError(t, m.Connect())
	assert.NoError(t, serve(t, m))
}

func TestManager_ContractViolation(t *testing.T) {
	m := New(NoRestarts, FactoryOptions[string, string]{
		Workers: []Worker[string, string]{constant(stream.Never[string]()), constant(nil)},
		Names:   []string{"first", "second"},
	})
	defer m.Close()

	err := m.Connect()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoStream)
	assert.Contains(t, err.Error(), `"second"`)
	assert.Contains(t, err.Error(), "Double check you're not missing a return statement!")

	var contract *ContractError
	require.ErrorAs(t, err, &contract)
	assert.Equal(t, 1, contract.Index)
}

func TestManager_PanickingProducerFailsConnect(t *testing.T) {
	m := newManager(NoRestarts, nil, workerFunc(func(string) stream.Stream[string] { panic("no") }))
	defer m.Close()

	var panicErr *PanicError
	require.ErrorAs(t, m.Connect(), &panicErr)
	assert.Equal(t, "no", panicErr.Value)
}

func TestManager_FaultAndCloseAreIdempotent(t *testing.T) {
	var finalized [2]atomic.Int32
	worker := func(i int) Worker[string, string] {
		return constant(stream.Finalize(stream.Never[string](), func() { finalized[i].Add(1) }))
	}
	m := newManager(NoRestarts, nil, worker(0), worker(1))
	require.NoError(t, m.Connect())

	m.Fault(0)
	m.Fault(0)
	assert.Equal(t, Faulted, m.State(0))
	assert.Equal(t, Active, m.State(1))
	assert.EqualValues(t, 1, finalized[0].Load())
	assert.EqualValues(t, 0, finalized[1].Load())

	m.Close()
	m.Close()
	assert.EqualValues(t, 1, finalized[0].Load())
	assert.EqualValues(t, 1, finalized[1].Load())
}

func TestManager_FaultSkipsFinishedMembers(t *testing.T) {
	m := newManager(OneForAll, nil, constant(stream.Never[string]()), constant(stream.Of("done")))
	require.NoError(t, m.Connect())
	defer m.Close()

	// let the second worker finish on its own
	m.slots[1].sub.unsubscribe()

	m.Fault(0)
	assert.Equal(t, Faulted, m.State(0))
	assert.Equal(t, Active, m.State(1))
}

func TestManager_FaultedSlotBlocksCompletion(t *testing.T) {
	m := newManager(NoRestarts, nil, constant(stream.Never[string]()), constant(stream.Of("x")))
	require.NoError(t, m.Connect())
	m.Fault(0)

	done := make(chan error, 1)
	go func() { done <- m.Serve() }()

	select {
	case <-done:
		t.Fatal("completed while a slot is faulted")
	case <-time.After(30 * time.Millisecond):
	}

	m.Dispatch(func() { m.Restart(0) })
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not complete after the restart decision")
	}
	assert.Equal(t, Active, m.State(0))
}

func TestManager_OnErrorRestartsWorker(t *testing.T) {
	errBoom := errors.New("boom")
	var starts atomic.Int32
	flaky := workerFunc(func(string) stream.Stream[string] {
		if starts.Add(1) == 1 {
			return stream.Fail[string](errBoom)
		}
		return stream.Of("ok")
	})

	rec := &recorder{}
	var failures []error
	var m *Manager[string, string]
	m = New(OneForOne, FactoryOptions[string, string]{
		Workers: []Worker[string, string]{flaky},
		Emit:    rec.emit,
		OnError: func(err error, index int) {
			m.Fault(index)
			assert.Equal(t, Faulted, m.State(index))
			failures = append(failures, err)
			m.Restart(index)
		},
	})

	require.NoError(t, m.Connect())
	require.NoError(t, serve(t, m))
	assert.Equal(t, []string{"ok"}, rec.get())
	assert.EqualValues(t, 2, starts.Load())
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], errBoom)
}

func TestManager_WorkerPanicIsReportedAsFailure(t *testing.T) {
	boom := func(ctx context.Context, emit func(string)) error { panic("boom") }

	var got error
	var m *Manager[string, string]
	m = New(NoRestarts, FactoryOptions[string, string]{
		Workers: []Worker[string, string]{constant(boom)},
		OnError: func(err error, index int) {
			m.Fault(index)
			got = err
			m.Restart(index)
		},
	})

	require.NoError(t, m.Connect())
	require.NoError(t, serve(t, m))

	var panicErr *PanicError
	require.ErrorAs(t, got, &panicErr)
	assert.Equal(t, "boom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

func TestManager_DefaultOnErrorIsFatal(t *testing.T) {
	errBoom := errors.New("boom")
	var finalized atomic.Bool
	m := newManager(OneForOne, nil,
		constant(stream.Finalize(stream.Never[string](), func() { finalized.Store(true) })),
		constant(stream.Fail[string](errBoom)),
	)

	require.NoError(t, m.Connect())
	assert.ErrorIs(t, serve(t, m), errBoom)
	assert.True(t, finalized.Load())
}

func TestManager_ErrorEndsOutput(t *testing.T) {
	errFatal := errors.New("fatal")
	m := newManager(NoRestarts, nil, constant(stream.Never[string]()))
	require.NoError(t, m.Connect())

	m.Dispatch(func() { m.Error(errFatal) })
	assert.ErrorIs(t, serve(t, m), errFatal)
}

func TestManager_ParentContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := New(NoRestarts, FactoryOptions[string, string]{
		Context: ctx,
		Workers: []Worker[string, string]{constant(stream.Never[string]())},
	})
	require.NoError(t, m.Connect())

	cancel()
	assert.ErrorIs(t, serve(t, m), context.Canceled)
}

func TestManager_GoIsBoundToLifetime(t *testing.T) {
	m := newManager(NoRestarts, nil, constant(stream.Never[string]()))
	require.NoError(t, m.Connect())

	var stopped atomic.Bool
	m.Go(func(ctx context.Context) {
		<-ctx.Done()
		stopped.Store(true)
	})

	m.Close()
	assert.True(t, stopped.Load())
}

func TestManager_DropsEventsOfCancelledWorkers(t *testing.T) {
	rec := &recorder{}
	chatty := func(ctx context.Context, emit func(string)) error {
		for {
			select {
			case <-ctx.Done():
				emit("after cancel")
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
	}
	m := newManager(NoRestarts, rec, constant(chatty))
	require.NoError(t, m.Connect())
	m.Fault(0)
	m.Dispatch(func() { m.Restart(0) })

	require.NoError(t, serve(t, m))
	assert.Empty(t, rec.get())
}

func TestManager_ConcurrentManagersKeepTheirOutput(t *testing.T) {
	var recA, recB recorder
	a := newManager(NoRestarts, &recA, constant(stream.Of("from A")))
	b := newManager(NoRestarts, &recB, constant(stream.Of("from B")))
	require.NoError(t, a.Connect())
	require.NoError(t, b.Connect())

	errs := make(chan error, 1)
	go func() { errs <- b.Serve() }()
	require.NoError(t, serve(t, a))
	require.NoError(t, <-errs)

	assert.Equal(t, []string{"from A"}, recA.get())
	assert.Equal(t, []string{"from B"}, recB.get())
}

func TestManager_FailDeliversQueuedEventsFirst(t *testing.T) {
	var rec recorder
	slowNil := workerFunc(func(string) stream.Stream[string] {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	m := newManager(NoRestarts, &rec, constant(stream.Of("w0-event")), slowNil)

	err := m.Connect()
	require.ErrorIs(t, err, ErrNoStream)
	m.Fail(err)

	assert.ErrorIs(t, serve(t, m), ErrNoStream)
	assert.Equal(t, []string{"w0-event"}, rec.get())
}

func TestManager_FailIgnoresLaterWorkerFailures(t *testing.T) {
	var failures atomic.Int32
	m := New(OneForOne, FactoryOptions[string, string]{
		Workers: []Worker[string, string]{
			constant(stream.Fail[string](errors.New("late"))),
		},
		OnError: func(error, int) { failures.Add(1) },
	})
	require.NoError(t, m.Connect())
	// give the worker time to queue its failure
	time.Sleep(20 * time.Millisecond)

	fatal := errors.New("fatal")
	m.Fail(fatal)
	assert.ErrorIs(t, serve(t, m), fatal)
	assert.Zero(t, failures.Load())
}
