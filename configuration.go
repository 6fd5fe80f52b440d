package streamsup

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Hook observes failures. Hooks must not panic; a panicking hook is logged and
// otherwise ignored.
type Hook func(ec *ErrorContext)

// Configuration holds the observability hooks shared by supervisors.
type Configuration struct {
	// OnAnyError is called for every failure, handled or not
	OnAnyError Hook
	// OnUnhandledError is called when the default handler deals with a failure,
	// and when a handler itself fails
	OnUnhandledError Hook
	Logger           logrus.FieldLogger
}

func nopHook(*ErrorContext) {}

// DefaultConfiguration returns a configuration with no-op hooks logging to the
// logrus standard logger.
func DefaultConfiguration() Configuration {
	return Configuration{
		OnAnyError:       nopHook,
		OnUnhandledError: nopHook,
		Logger:           logrus.StandardLogger(),
	}
}

// merge returns c with every non nil field of update applied.
func (c Configuration) merge(update Configuration) Configuration {
	if update.OnAnyError != nil {
		c.OnAnyError = update.OnAnyError
	}
	if update.OnUnhandledError != nil {
		c.OnUnhandledError = update.OnUnhandledError
	}
	if update.Logger != nil {
		c.Logger = update.Logger
	}
	return c
}

var current atomic.Pointer[Configuration]

// CurrentConfiguration returns a snapshot of the process wide configuration,
// used by supervisors that were not given one explicitly.
func CurrentConfiguration() Configuration {
	if c := current.Load(); c != nil {
		return *c
	}
	return DefaultConfiguration()
}

// Configure merges the non nil fields of update into the process wide
// configuration. Concurrent updates are applied one after the other; the last
// one wins on conflicting fields.
func Configure(update Configuration) {
	for {
		old := current.Load()
		base := DefaultConfiguration()
		if old != nil {
			base = *old
		}
		next := base.merge(update)
		if current.CompareAndSwap(old, &next) {
			return
		}
	}
}

// call runs hook, keeping a panicking hook from breaking the error pipeline.
func (c Configuration) call(name string, hook Hook, ec *ErrorContext) {
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.Logger.WithFields(logrus.Fields{
				"hook":   name,
				"worker": ec.WorkerName,
				"panic":  r,
			}).Warn("supervisor hook panicked")
		}
	}()
	hook(ec)
}

func (c Configuration) onAnyError(ec *ErrorContext) {
	c.call("OnAnyError", c.OnAnyError, ec)
}

func (c Configuration) onUnhandledError(ec *ErrorContext) {
	c.call("OnUnhandledError", c.OnUnhandledError, ec)
}
