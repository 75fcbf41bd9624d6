// Package metrics exposes Prometheus collectors for the coordination
// server and the scrape endpoint serving them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nims-federated-learning/NIMS-FL/common"
)

var (
	ParticipantsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: common.PackageName,
		Name:      "participants_registered",
		Help:      "Number of currently registered participants.",
	})

	ModelsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "models_granted_total",
		Help:      "Number of model grants handed out.",
	})

	CheckpointsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "checkpoints_received_total",
		Help:      "Number of checkpoints accepted from participants.",
	})

	RoundsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "rounds_completed_total",
		Help:      "Number of rounds aggregated and advanced.",
	})

	AggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: common.PackageName,
		Name:      "aggregation_duration_seconds",
		Help:      "Time spent aggregating one round of checkpoints.",
		Buckets:   prometheus.DefBuckets,
	})

	AuthenticationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "authentication_failures_total",
		Help:      "Number of requests rejected for invalid credentials.",
	})
)
