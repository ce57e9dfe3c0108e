// Package metrics defines the Prometheus instrumentation for the
// hypnos daemon, served by the web status server on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncAttempts counts write-back reconciliations started.
	SyncAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypnos_sync_attempts_total",
		Help: "Number of server write-back reconciliations started.",
	})

	// SyncFailures counts reconciliations that rolled back.
	SyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypnos_sync_failures_total",
		Help: "Number of reconciliations that failed and rolled back local state.",
	})

	// TransportRetries counts scheduled API retries.
	TransportRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypnos_transport_retries_total",
		Help: "Number of transport-level request retries scheduled.",
	})

	// AlarmsFired counts expected-alarm timer firings.
	AlarmsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypnos_alarms_fired_total",
		Help: "Number of times the device entered alarm mode.",
	})

	// QueueDrops counts closures dropped on actor queue backpressure.
	QueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypnos_queue_drops_total",
		Help: "Number of state manager work items dropped due to a full queue.",
	})
)
