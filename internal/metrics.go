package internal

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "synchronizer"

var (
	connectionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Number of registered connections.",
		},
	)
	queueLengthGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "controller_queue_length",
			Help:      "Number of connections holding or waiting for the controller role.",
		},
	)
	updatesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "updates_total",
			Help:      "Count of update_data events by outcome.",
		},
		[]string{"outcome"},
	)
	roleRequestsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "role_requests_total",
			Help:      "Count of controller role requests by outcome.",
		},
		[]string{"outcome"},
	)
	promotionsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "promotions_total",
			Help:      "Count of controller role assignments.",
		},
	)
	droppedSendsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "dropped_sends_total",
			Help:      "Count of frames not delivered because a connection buffer was full.",
		},
	)
)

var registerMetrics sync.Once

// RegisterMetrics registers all collectors with reg. Only the first call has any effect.
func RegisterMetrics(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(connectionsGauge)
		reg.MustRegister(queueLengthGauge)
		reg.MustRegister(updatesCounter)
		reg.MustRegister(roleRequestsCounter)
		reg.MustRegister(promotionsCounter)
		reg.MustRegister(droppedSendsCounter)
	})
}

func recordSizes(connections, queue int) {
	connectionsGauge.Set(float64(connections))
	queueLengthGauge.Set(float64(queue))
}

func recordUpdate(outcome string) {
	updatesCounter.WithLabelValues(outcome).Inc()
}

func recordRoleRequest(outcome string) {
	roleRequestsCounter.WithLabelValues(outcome).Inc()
}
