package supervisor

import (
	"context"

	"github.com/hedisam/streamsup/stream"
	"github.com/sirupsen/logrus"
)

// Policy is a restart policy bound to a fixed number of workers.
type Policy struct {
	// Name is used in logs
	Name string
	// Chain maps the index of a failing worker to the indices of all the workers
	// affected by the failure, the failing one included
	Chain func(failing int) []int
	// Restarts tells if the affected workers are started again once the failure
	// has been handled, or retired for good
	Restarts bool
}

// Strategy builds the restart policy of a supervisor with the given number of workers.
type Strategy func(workers int) Policy

// NoRestarts never restarts anything: a failing worker is retired and its
// siblings keep running.
func NoRestarts(workers int) Policy {
	return Policy{Name: "no_restarts", Chain: single, Restarts: false}
}

// OneForOne restarts a failing worker on its own.
func OneForOne(workers int) Policy {
	return Policy{Name: "one_for_one", Chain: single, Restarts: true}
}

// OneForAll tears down every worker when one of them fails, then restarts all of them.
func OneForAll(workers int) Policy {
	return Policy{
		Name:     "one_for_all",
		Chain:    func(int) []int { return span(0, workers) },
		Restarts: true,
	}
}

// RestForOne tears down the failing worker and every worker declared after it,
// then restarts them.
func RestForOne(workers int) Policy {
	return Policy{
		Name:     "rest_for_one",
		Chain:    func(failing int) []int { return span(failing, workers) },
		Restarts: true,
	}
}

func single(failing int) []int {
	return []int{failing}
}

// span returns the integers in [start, end).
func span(start, end int) []int {
	out := make([]int, 0, max(end-start, 0))
	for ; start < end; start++ {
		out = append(out, start)
	}
	return out
}

// Worker produces a brand new stream every time it's started.
type Worker[In, Out any] interface {
	Start(in In) stream.Stream[Out]
}

// FactoryOptions is everything a Manager needs to run its workers.
type FactoryOptions[In, Out any] struct {
	// Context bounds the lifetime of every worker and recovery goroutine
	Context context.Context
	Workers []Worker[In, Out]
	// Names of the workers, index aligned with Workers. Only used for diagnostics.
	Names []string
	// Input is handed to every worker each time it's started
	Input In
	// Emit receives the merged output, always from the delivery loop
	Emit func(Out)
	// OnError is called from the delivery loop when a worker fails. It's expected
	// to call Fault(index) before doing anything else.
	OnError func(err error, index int)
	Logger  logrus.FieldLogger
}

func (o *FactoryOptions[In, Out]) withDefaults() {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Emit == nil {
		o.Emit = func(Out) {}
	}
	names := make([]string, len(o.Workers))
	for i := range names {
		if i < len(o.Names) && o.Names[i] != "" {
			names[i] = o.Names[i]
		} else {
			names[i] = "<anonymous>"
		}
	}
	o.Names = names
}
