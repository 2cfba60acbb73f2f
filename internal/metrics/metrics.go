// Package metrics exposes Prometheus collectors for ledger operations and
// chat commands.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Recorder struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	commands   *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coinbot",
			Name:      "economy_operations_total",
			Help:      "Ledger operations by name and outcome (ok, error or a rejection reason).",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coinbot",
			Name:      "economy_operation_seconds",
			Help:      "Ledger operation latency including the profile commit.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coinbot",
			Name:      "chat_commands_total",
			Help:      "Chat commands handled per transport and command.",
		}, []string{"transport", "command"}),
	}
	reg.MustRegister(r.operations, r.latency, r.commands)
	return r
}

func (r *Recorder) ObserveOperation(op, outcome string, elapsed time.Duration) {
	r.operations.WithLabelValues(op, outcome).Inc()
	r.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveCommand(transport, command string) {
	r.commands.WithLabelValues(transport, command).Inc()
}
