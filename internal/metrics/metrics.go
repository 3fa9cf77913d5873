// Package metrics declares the Prometheus instruments shared by the engine
// and the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Reservations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wc_reservations_total",
		Help: "Number of successful reservations",
	})
	Releases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wc_releases_total",
		Help: "Number of releases by kind (manual or auto)",
	}, []string{"kind"})
	AutoReleaseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wc_auto_release_failures_total",
		Help: "Auto-release timer firings that failed to persist",
	})
	VisitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wc_visit_duration_minutes",
		Help:    "Rounded duration of closed visits in minutes",
		Buckets: []float64{1, 2, 3, 5, 7, 10, 15},
	})
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wc_gateway_connected_clients",
		Help: "Number of live websocket clients",
	})
	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wc_gateway_errors_total",
		Help: "Error replies sent to clients by message",
	}, []string{"message"})
)
