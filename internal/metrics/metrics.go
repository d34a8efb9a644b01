// Package metrics exports service observations as Prometheus collectors.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"stowage/internal/core"
)

// DefaultNamespace prefixes every collector name.
const DefaultNamespace = "stowage"

// Operation status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// PrometheusRecorder implements core.MetricsRecorder, core.StateObserver and
// core.InfeasibleObserver.
type PrometheusRecorder struct {
	// OperationDuration tracks service operation latency in seconds.
	// Labels: operation, status
	OperationDuration *prometheus.HistogramVec

	// OperationsTotal counts service operations.
	// Labels: operation, status
	OperationsTotal *prometheus.CounterVec

	// DayGauge is the current simulated day.
	DayGauge prometheus.Gauge

	// ItemsGauge tracks registered items per lifecycle status.
	// Labels: status
	ItemsGauge *prometheus.GaugeVec

	// FlaggedGauge counts waste items awaiting a waste container.
	FlaggedGauge prometheus.Gauge

	// ContainersGauge counts registered containers.
	ContainersGauge prometheus.Gauge

	// InfeasibleTotal counts items no container could accommodate.
	InfeasibleTotal prometheus.Counter

	mu       sync.Mutex
	statuses map[core.ItemStatus]struct{}
}

// NewPrometheusRecorder creates the collectors and registers them on reg.
// An empty namespace uses DefaultNamespace.
func NewPrometheusRecorder(reg prometheus.Registerer, namespace string) *PrometheusRecorder {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "service",
				Name:      "operation_duration_seconds",
				Help:      "Duration of service operations in seconds.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation", "status"},
		),
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "service",
				Name:      "operations_total",
				Help:      "Total number of service operations.",
			},
			[]string{"operation", "status"},
		),
		DayGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "simulation",
				Name:      "day",
				Help:      "Current simulated day.",
			},
		),
		ItemsGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "items",
				Help:      "Registered items by lifecycle status.",
			},
			[]string{"status"},
		),
		FlaggedGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "flagged_items",
				Help:      "Waste items that could not be moved to a waste zone.",
			},
		),
		ContainersGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "containers",
				Help:      "Registered containers.",
			},
		),
		InfeasibleTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "placement",
				Name:      "infeasible_total",
				Help:      "Items that no candidate container could accommodate.",
			},
		),
		statuses: make(map[core.ItemStatus]struct{}),
	}
}

// Observe records one operation outcome.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := StatusSuccess
	if !success {
		status = StatusFailure
	}
	r.OperationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
	r.OperationsTotal.WithLabelValues(operation, status).Inc()
}

// ObserveState refreshes the registry gauges. Statuses seen before but absent
// from stats drop to zero.
func (r *PrometheusRecorder) ObserveState(_ context.Context, stats core.StateStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DayGauge.Set(float64(stats.Day))
	r.FlaggedGauge.Set(float64(stats.Flagged))
	r.ContainersGauge.Set(float64(stats.Containers))
	for status := range r.statuses {
		if _, ok := stats.ItemsByStatus[status]; !ok {
			r.ItemsGauge.WithLabelValues(string(status)).Set(0)
		}
	}
	for status, n := range stats.ItemsByStatus {
		r.statuses[status] = struct{}{}
		r.ItemsGauge.WithLabelValues(string(status)).Set(float64(n))
	}
}

// ObserveInfeasible counts one failed placement.
func (r *PrometheusRecorder) ObserveInfeasible(context.Context, string) {
	r.InfeasibleTotal.Inc()
}

// WriteTextfile writes every metric gathered from g to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
