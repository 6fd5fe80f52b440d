package streamsup

import (
	"fmt"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"strings"

	"github.com/hedisam/streamsup/stream"
	"github.com/hedisam/streamsup/supervisor"
)

const anonymous = "<anonymous>"

// Worker produces a brand new stream every time it's started. Nothing is
// carried over from one start to the next.
type Worker[In, Out any] interface {
	Start(in In) stream.Stream[Out]
}

// WorkerFunc adapts a plain function to a Worker.
type WorkerFunc[In, Out any] func(in In) stream.Stream[Out]

func (f WorkerFunc[In, Out]) Start(in In) stream.Stream[Out] {
	return f(in)
}

// Func turns fn into a Worker. The worker is named after fn.
func Func[In, Out any](fn func(in In) stream.Stream[Out]) Worker[In, Out] {
	return WorkerFunc[In, Out](fn)
}

// Args bundles the input events, a view of the state and the services a worker
// is usually started with. The supervisor passes its input through untouched,
// so any type works as In; Args is there for the common shape.
type Args[E, S, D any] struct {
	Events   E
	State    S
	Services D
}

type namedWorker[In, Out any] struct {
	Worker[In, Out]
	name string
}

func (w namedWorker[In, Out]) Name() string {
	return w.name
}

func (w namedWorker[In, Out]) Source() string {
	return sourceOf(w.Worker)
}

// Named gives w a name used in logs and error contexts.
func Named[In, Out any](name string, w Worker[In, Out]) Worker[In, Out] {
	return namedWorker[In, Out]{Worker: w, name: name}
}

var closureName = regexp.MustCompile(`(^|\.)func\d+`)

// nameOf returns the declared name of a worker or handler: its Name method when
// it has one, the name of the function or type otherwise, and <anonymous> for
// closures.
func nameOf(v interface{}) string {
	if n, ok := v.(interface{ Name() string }); ok {
		if name := n.Name(); name != "" {
			return name
		}
		return anonymous
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return anonymous
	}
	if rv.Kind() == reflect.Func {
		if rv.IsNil() {
			return anonymous
		}
		fn := runtime.FuncForPC(rv.Pointer())
		if fn == nil {
			return anonymous
		}
		return symbolName(fn.Name())
	}

	if name := reflect.Indirect(rv).Type().Name(); name != "" {
		return name
	}
	return anonymous
}

// symbolName strips the package path off a Go symbol.
func symbolName(symbol string) string {
	if i := strings.LastIndex(symbol, "/"); i >= 0 {
		symbol = symbol[i+1:]
	}
	if i := strings.Index(symbol, "."); i >= 0 {
		symbol = symbol[i+1:]
	}
	symbol = strings.TrimSuffix(symbol, "-fm")
	if symbol == "" || closureName.MatchString(symbol) {
		return anonymous
	}
	return symbol
}

// sourceOf locates the code of a worker or handler, for debugging only.
func sourceOf(v interface{}) string {
	if s, ok := v.(interface{ Source() string }); ok {
		return s.Source()
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return ""
	}
	if rv.Kind() == reflect.Func {
		if rv.IsNil() {
			return ""
		}
		fn := runtime.FuncForPC(rv.Pointer())
		if fn == nil {
			return ""
		}
		file, line := fn.FileLine(fn.Entry())
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	t := reflect.Indirect(rv).Type()
	return t.PkgPath() + "." + t.Name()
}

func toManaged[In, Out any](workers []Worker[In, Out]) []supervisor.Worker[In, Out] {
	out := make([]supervisor.Worker[In, Out], len(workers))
	for i, w := range workers {
		out[i] = w
	}
	return out
}
