// Package models defines core data structures for readings and the derived
// views shared across the application.
package models

import (
	"time"
)

// DefaultDeviceID is the sentinel identifier substituted when a caller omits
// device_id.
const DefaultDeviceID = "esp32-1"

// Reading represents one stored sensor sample
type Reading struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	Moisture    int       `json:"moisture"`
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReadingStats holds full-table aggregates over stored readings. All fields
// other than Count are undefined when Count is zero; the store reports that
// case as an empty state instead of returning stats.
type ReadingStats struct {
	Count          int64
	FirstTimestamp time.Time
	LastTimestamp  time.Time
	MinMoisture    int
	MaxMoisture    int
	MinTemperature float64
	MaxTemperature float64
	AvgMoisture    float64
	AvgTemperature float64
}

// StatusReport is the derived device status view
type StatusReport struct {
	Device  DeviceStatus  `json:"device"`
	Current CurrentValues `json:"current"`
	Changes Changes       `json:"changes"`
}

// DeviceStatus describes the freshness of the most recent reading
type DeviceStatus struct {
	DeviceID           string `json:"device_id"`
	LastSeenSecondsAgo int64  `json:"last_seen_seconds_ago"`
	Stale              bool   `json:"stale"`
}

// CurrentValues carries the most recent sensor values
type CurrentValues struct {
	Moisture    int       `json:"moisture"`
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

// Changes carries deltas against historical reference points. Moisture24h is
// null when no reading exists at or before the 24h cutoff, which is distinct
// from a delta of zero.
type Changes struct {
	Moisture24h *int `json:"moisture_24h"`
}

// HistoryPage wraps a windowed query result with the effective parameters so
// callers can detect truncation (Count == Limit hints more rows existed).
type HistoryPage struct {
	Hours    int        `json:"hours"`
	Limit    int        `json:"limit"`
	Count    int        `json:"count"`
	Readings []*Reading `json:"readings"`
}

// Summary is the full-history statistical view
type Summary struct {
	TotalReadings   int64              `json:"total_readings"`
	MonitoringSince time.Time          `json:"monitoring_since"`
	LastReading     time.Time          `json:"last_reading"`
	DaysMonitored   int                `json:"days_monitored"`
	Moisture        MoistureSummary    `json:"moisture"`
	Temperature     TemperatureSummary `json:"temperature"`
}

// MoistureSummary holds min/max/average moisture in sensor ADC units
type MoistureSummary struct {
	Min     int     `json:"min"`
	Max     int     `json:"max"`
	Average float64 `json:"average"`
}

// TemperatureSummary holds min/max/average temperature in degrees Celsius
type TemperatureSummary struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
}

// ResetResult reports the outcome of a bulk reset
type ResetResult struct {
	DeletedCount int64     `json:"deleted_count"`
	ResetTime    time.Time `json:"reset_time"`
}
