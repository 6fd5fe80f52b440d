package mailbox

import (
	"context"
	"errors"
	"sync"

	"github.com/Workiva/go-datastructures/queue"
)

const defaultQueueHint = 64

// ErrDisposed is returned by Receive once the mailbox has been disposed.
var ErrDisposed = errors.New("mailbox has been disposed")

// MessageHandler is called for every received message, in arrival order.
// Returning false stops the current Receive call.
type MessageHandler func(message interface{}) (loop bool)

// Mailbox is an unbounded multi-producer single-consumer inbox.
// Send never blocks, so producers can always make progress while the
// consumer is busy waiting for one of them to exit.
type Mailbox struct {
	queue       *queue.Queue
	signal      chan struct{}
	done        chan struct{}
	disposeOnce sync.Once
}

func New() *Mailbox {
	return &Mailbox{
		queue:  queue.New(defaultQueueHint),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Send enqueues a message. Messages sent after Dispose are dropped.
func (m *Mailbox) Send(message interface{}) {
	select {
	case <-m.done:
		return
	default:
	}

	if err := m.queue.Put(message); err != nil {
		// disposed in the meantime
		return
	}
	m.notify()
}

// notify wakes up the consumer. The signal channel holds at most one pending
// wake up which is enough since the consumer drains the whole queue each time.
func (m *Mailbox) notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Receive blocks until messages arrive and hands them to handler one by one.
// It returns nil when handler asks to stop, ctx.Err() when ctx is done and
// ErrDisposed after Dispose. Receive must only be called by a single goroutine.
func (m *Mailbox) Receive(ctx context.Context, handler MessageHandler) error {
listen:
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrDisposed
	case <-m.signal:
		for m.queue.Len() != 0 {
			// never blocks: there is a single consumer and the queue is not empty
			items, err := m.queue.Get(1)
			if err != nil {
				return ErrDisposed
			}
			if !handler(items[0]) {
				if m.queue.Len() != 0 {
					m.notify()
				}
				return nil
			}
		}
		goto listen
	}
}

// Dispose stops accepting messages. It is safe to call it more than once.
func (m *Mailbox) Dispose() {
	m.disposeOnce.Do(func() {
		close(m.done)
		m.queue.Dispose()
	})
}
