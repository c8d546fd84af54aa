// Package metrics exposes the relay's Prometheus instrumentation on the
// default registry; the HTTP layer serves it under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chatrelay"

var (
	ActiveUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_users",
		Help:      "Number of user names currently registered.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Number of live transport sessions.",
	})

	MessagesRouted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_routed_total",
		Help:      "Messages handed to a recipient's aggregator.",
	})

	MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_dropped_total",
		Help:      "Messages dropped because the recipient was not registered.",
	})

	SyncEchoes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_echoes_total",
		Help:      "Sync copies relayed to a sender's other sessions.",
	})
)
