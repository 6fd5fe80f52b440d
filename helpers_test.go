package streamsup

import (
	"context"
	"testing"
	"time"

	"github.com/hedisam/streamsup/stream"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var (
	errBoom      = errors.New("boom")
	errRethrown  = errors.New("rethrown")
	errUnhandled = errors.New("handler gave up")
)

func resetConfiguration() {
	current.Store(nil)
}

func epic1(in string) stream.Stream[string] {
	return stream.Of("epic1:" + in)
}

func epic2(in string) stream.Stream[string] {
	return stream.Fail[string](errBoom)
}

func epic3(in string) stream.Stream[string] {
	return stream.Of("epic3:" + in)
}

func missingReturn(in string) stream.Stream[string] {
	return nil
}

func slowMissingReturn(in string) stream.Stream[string] {
	time.Sleep(50 * time.Millisecond)
	return nil
}

func giveUp(ec *ErrorContext, _ string) stream.Stream[any] {
	return stream.Fail[any](errUnhandled)
}

// quiet returns an isolated configuration whose log output is captured by hook.
func quiet() (*Configuration, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return &Configuration{Logger: logger}, hook
}

func run(t *testing.T, w Worker[string, string]) ([]string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := stream.Collect(ctx, w.Start("in"))
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("supervisor did not finish")
	}
	return out, err
}
