package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsSubsystem = "presence"

var (
	connectionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: metricsSubsystem,
			Name:      "connections",
			Help:      "Number of open real-time connections.",
		},
	)
	usersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: metricsSubsystem,
			Name:      "users",
			Help:      "Number of users in the registry.",
		},
	)
	relayedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "relayed_frames_total",
			Help:      "Frames queued to connections, by kind (message or snapshot).",
		},
		[]string{"kind"},
	)
	droppedFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "dropped_frames_total",
			Help:      "Frames skipped because the recipient's send queue was full.",
		},
	)
	invalidMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "invalid_messages_total",
			Help:      "Inbound messages that could not be decoded.",
		},
	)
)

var registerMetrics sync.Once

// RegisterMetrics registers the hub collectors with the default Prometheus
// registry. Safe to call more than once.
func RegisterMetrics() {
	registerMetrics.Do(func() {
		prometheus.MustRegister(connectionsGauge)
		prometheus.MustRegister(usersGauge)
		prometheus.MustRegister(relayedFrames)
		prometheus.MustRegister(droppedFrames)
		prometheus.MustRegister(invalidMessages)
	})
}
