package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadingsProcessed counts inbound readings by pipeline outcome.
	ReadingsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soilsense_edge_readings_total",
			Help: "Total number of inbound readings by outcome",
		},
		[]string{"outcome"},
	)

	// ReadingsDropped counts admission rejections by reason.
	ReadingsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soilsense_edge_readings_dropped_total",
			Help: "Total number of readings dropped at admission",
		},
		[]string{"reason"},
	)

	// Anomalies counts non-normal verdicts.
	Anomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soilsense_edge_anomalies_total",
			Help: "Total number of anomaly verdicts",
		},
		[]string{"parameter", "severity"},
	)

	// MethodTriggers counts individual detection method triggers.
	MethodTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soilsense_edge_method_triggers_total",
			Help: "Total number of detection method triggers",
		},
		[]string{"method"},
	)

	// AlertsPublished counts cloud alert publish attempts.
	AlertsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soilsense_edge_alerts_total",
			Help: "Total number of alert publish attempts",
		},
		[]string{"severity", "status"},
	)

	// StoreLatency measures backing-store operation latency.
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soilsense_edge_store_latency_seconds",
			Help:    "Backing store operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
		[]string{"operation"},
	)

	// StoreErrors counts backing-store failures.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soilsense_edge_store_errors_total",
			Help: "Total number of backing store errors",
		},
		[]string{"operation"},
	)

	// SummariesComputed counts cached aggregate summaries.
	SummariesComputed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soilsense_edge_summaries_total",
			Help: "Total number of aggregate summaries computed",
		},
	)

	// NodeInfo exposes node identity (1 = running).
	NodeInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soilsense_edge_node_info",
			Help: "Edge node identity (1 = running)",
		},
		[]string{"node_id", "region"},
	)
)
