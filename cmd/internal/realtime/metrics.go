package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "atelier",
		Subsystem: "collab",
		Name:      "active_connections",
		Help:      "Number of websocket connections currently in JOINED state.",
	})

	metricBroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atelier",
		Subsystem: "collab",
		Name:      "broadcasts_total",
		Help:      "Logical events fanned out to rooms, by event type.",
	}, []string{"type"})

	metricDroppedSends = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atelier",
		Subsystem: "collab",
		Name:      "dropped_sends_total",
		Help:      "Per-connection sends dropped due to slow consumers.",
	})

	metricAuthRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atelier",
		Subsystem: "collab",
		Name:      "auth_rejected_total",
		Help:      "Websocket handshakes rejected by the identity resolver.",
	})

	metricInvalidPayloads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atelier",
		Subsystem: "collab",
		Name:      "invalid_payloads_total",
		Help:      "Inbound events dropped because their payload failed validation.",
	})
)
