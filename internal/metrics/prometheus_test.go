package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsRegistersInstruments(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ReadingsIngested.WithLabelValues("esp32-1").Inc()
	m.ReadingsRejected.WithLabelValues("out_of_range").Inc()
	m.ReadingsDeleted.Add(3)
	m.LastMoisture.WithLabelValues("esp32-1").Set(450)
	m.LastTemperature.WithLabelValues("esp32-1").Set(22.5)
	m.ObserveQuery("insert", time.Now().Add(-time.Millisecond))

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := map[string]bool{}
	for _, family := range families {
		found[family.GetName()] = true
	}

	for _, name := range []string{
		"plantlog_readings_ingested_total",
		"plantlog_readings_rejected_total",
		"plantlog_readings_deleted_total",
		"plantlog_last_moisture",
		"plantlog_last_temperature_celsius",
		"plantlog_store_query_duration_seconds",
	} {
		if !found[name] {
			t.Fatalf("expected metric family %s to be registered, got %v", name, found)
		}
	}
}

func TestNewMetricsDuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected duplicate registration on one registry to panic")
		}
	}()
	NewMetrics(registry)
}
