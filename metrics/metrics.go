// Package metrics exports prometheus counters about supervised workers.
package metrics

import (
	"github.com/hedisam/streamsup"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "streamsup"

// Collector counts worker failures and restarts per worker name. It is a
// prometheus.Collector itself and has to be registered to be exported.
type Collector struct {
	errors    *prometheus.CounterVec
	unhandled *prometheus.CounterVec
	restarts  *prometheus.CounterVec
}

func New() *Collector {
	return &Collector{
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of failures reported by supervisors, per worker",
		}, []string{"worker"}),
		unhandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unhandled_errors_total",
			Help:      "Total number of failures no handler dealt with, per worker",
		}, []string{"worker"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Total number of recoveries after which the fault chain was restarted or retired, per failing worker",
		}, []string{"worker"}),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.errors.Describe(ch)
	c.unhandled.Describe(ch)
	c.restarts.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.errors.Collect(ch)
	c.unhandled.Collect(ch)
	c.restarts.Collect(ch)
}

// Hooks returns the configuration hooks feeding the error counters. Pass it
// to streamsup.Configure or use it as Options.Config.
func (c *Collector) Hooks() streamsup.Configuration {
	return streamsup.Configuration{
		OnAnyError: func(ec *streamsup.ErrorContext) {
			c.errors.WithLabelValues(ec.WorkerName).Inc()
		},
		OnUnhandledError: func(ec *streamsup.ErrorContext) {
			c.unhandled.WithLabelValues(ec.WorkerName).Inc()
		},
	}
}

// OnRestart returns an observer counting restarts, for Options.OnRestart.
func OnRestart[In any](c *Collector) streamsup.Observer[In] {
	return func(ec *streamsup.ErrorContext, _ In) {
		c.restarts.WithLabelValues(ec.WorkerName).Inc()
	}
}
