// Package metrics defines the Prometheus instruments exported by Plant Log.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for Plant Log
type Metrics struct {
	// Counters
	ReadingsIngested *prometheus.CounterVec
	ReadingsRejected *prometheus.CounterVec
	ReadingsDeleted  prometheus.Counter

	// Gauges
	LastMoisture    *prometheus.GaugeVec
	LastTemperature *prometheus.GaugeVec

	// Histograms
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	return &Metrics{
		ReadingsIngested: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantlog_readings_ingested_total",
				Help: "Total number of readings accepted and stored",
			},
			[]string{"device_id"},
		),

		ReadingsRejected: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantlog_readings_rejected_total",
				Help: "Total number of readings rejected during validation",
			},
			[]string{"reason"},
		),

		ReadingsDeleted: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "plantlog_readings_deleted_total",
				Help: "Total number of readings removed by delete-latest or reset",
			},
		),

		LastMoisture: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plantlog_last_moisture",
				Help: "Most recently ingested moisture value in sensor ADC units",
			},
			[]string{"device_id"},
		),

		LastTemperature: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plantlog_last_temperature_celsius",
				Help: "Most recently ingested temperature in degrees Celsius",
			},
			[]string{"device_id"},
		),

		QueryDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plantlog_store_query_duration_seconds",
				Help:    "Duration of storage operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"operation"},
		),
	}
}

// ObserveQuery records the duration of one storage operation
func (m *Metrics) ObserveQuery(operation string, start time.Time) {
	m.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
