package supervisor

import (
	"context"
	"fmt"
)

// State of a managed worker slot.
type State int32

const (
	// Active slots are either running or finished on their own
	Active State = iota
	// Faulted slots have been torn down and wait for their restart decision
	Faulted
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// slot is the runtime record of one worker. There is exactly one slot per
// worker index for the whole life of a Manager.
type slot struct {
	index int
	state State
	sub   *subscription
}

// subscription is one run of a worker stream on its own goroutine.
// closed is only read and written from the delivery loop.
type subscription struct {
	index  int
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func (s *subscription) isClosed() bool {
	return s == nil || s.closed
}

// unsubscribe cancels the worker and waits for its goroutine to return, so no
// more events come out of it and its own cleanup has run.
func (s *subscription) unsubscribe() {
	if s.isClosed() {
		return
	}
	s.closed = true
	s.cancel()
	<-s.done
}
