// Package readings validates incoming sensor samples and composes repository
// calls into the derived views served by the API: latest, history, status,
// and summary.
package readings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/plantlog/plantlog/internal/logging"
	"github.com/plantlog/plantlog/internal/metrics"
	"github.com/plantlog/plantlog/internal/storage"
	"github.com/plantlog/plantlog/pkg/models"
)

// Query policy constants
const (
	// DefaultHistoryHours is the window applied when the caller names none
	DefaultHistoryHours = 168
	// DefaultHistoryLimit is the row cap applied when the caller names none
	DefaultHistoryLimit = 500
	// MaxHistoryLimit is the hard safety cap on rows per history query
	MaxHistoryLimit = 5000

	// deltaLookbackHours is how far back the status view reaches for its
	// moisture comparison point
	deltaLookbackHours = 24

	// DefaultStaleAfter is the freshness threshold when none is configured
	DefaultStaleAfter = 10 * time.Minute

	// ResetConfirmation is the token that must accompany a bulk reset
	ResetConfirmation = "yes-delete-all"
)

// Service composes the validator and the reading store into the operations
// exposed by the API layer
type Service struct {
	store      storage.ReadingStore
	validator  *Validator
	metrics    *metrics.Metrics
	logger     *logging.Logger
	staleAfter time.Duration
}

// NewService creates a Service bound to one store
func NewService(store storage.ReadingStore, validator *Validator, m *metrics.Metrics, logger *logging.Logger, staleAfter time.Duration) *Service {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Service{
		store:      store,
		validator:  validator,
		metrics:    m,
		logger:     logger,
		staleAfter: staleAfter,
	}
}

// Ingest validates and stores one sample. On any validation failure nothing
// is written.
func (s *Service) Ingest(ctx context.Context, body []byte) (*models.Reading, error) {
	sample, err := s.validator.Validate(body)
	if err != nil {
		s.metrics.ReadingsRejected.WithLabelValues(rejectReason(err)).Inc()
		s.logger.WithEvent(logging.EventReadingRejected).WithError(err).Debug("Reading rejected")
		return nil, err
	}

	start := time.Now()
	reading, err := s.store.Insert(ctx, sample.DeviceID, sample.Moisture, sample.Temperature)
	s.metrics.ObserveQuery("insert", start)
	if err != nil {
		return nil, fmt.Errorf("failed to store reading: %w", err)
	}

	s.metrics.ReadingsIngested.WithLabelValues(reading.DeviceID).Inc()
	s.metrics.LastMoisture.WithLabelValues(reading.DeviceID).Set(float64(reading.Moisture))
	s.metrics.LastTemperature.WithLabelValues(reading.DeviceID).Set(reading.Temperature)

	s.logger.WithEvent(logging.EventReadingStored).WithFields(map[string]interface{}{
		"device_id":   reading.DeviceID,
		"moisture":    reading.Moisture,
		"temperature": reading.Temperature,
	}).Debug("Reading stored")

	return reading, nil
}

// Latest returns the most recent reading, or storage.ErrNoReadings
func (s *Service) Latest(ctx context.Context) (*models.Reading, error) {
	start := time.Now()
	reading, err := s.store.Latest(ctx)
	s.metrics.ObserveQuery("latest", start)
	return reading, err
}

// History returns readings within the window, oldest to newest, wrapped with
// the effective parameters. When more rows fall in the window than limit,
// the most recent rows are kept.
func (s *Service) History(ctx context.Context, hours, limit int) (*models.HistoryPage, error) {
	if hours <= 0 {
		return nil, &FieldError{Field: "hours", Reason: "must be > 0", Err: ErrInvalidParam}
	}
	if limit <= 0 || limit > MaxHistoryLimit {
		return nil, &FieldError{
			Field:  "limit",
			Reason: fmt.Sprintf("must be between 1 and %d", MaxHistoryLimit),
			Err:    ErrInvalidParam,
		}
	}

	start := time.Now()
	rows, err := s.store.Window(ctx, hours, limit)
	s.metrics.ObserveQuery("window", start)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	if rows == nil {
		rows = []*models.Reading{}
	}

	return &models.HistoryPage{
		Hours:    hours,
		Limit:    limit,
		Count:    len(rows),
		Readings: rows,
	}, nil
}

// Status reports freshness of the latest reading and its 24h moisture delta.
// The delta is null when no reading exists at or before the cutoff, which is
// distinct from a delta of zero.
func (s *Service) Status(ctx context.Context) (*models.StatusReport, error) {
	start := time.Now()
	latest, secondsAgo, err := s.store.LatestWithAge(ctx)
	s.metrics.ObserveQuery("latest_with_age", start)
	if err != nil {
		return nil, err
	}

	report := &models.StatusReport{
		Device: models.DeviceStatus{
			DeviceID:           latest.DeviceID,
			LastSeenSecondsAgo: secondsAgo,
			Stale:              secondsAgo > int64(s.staleAfter.Seconds()),
		},
		Current: models.CurrentValues{
			Moisture:    latest.Moisture,
			Temperature: latest.Temperature,
			Timestamp:   latest.Timestamp,
		},
	}

	previous, err := s.store.MoistureBefore(ctx, deltaLookbackHours)
	switch {
	case err == nil:
		delta := latest.Moisture - previous
		report.Changes.Moisture24h = &delta
	case errors.Is(err, storage.ErrNoReadings):
		// no comparison point yet, the delta stays null
	default:
		return nil, fmt.Errorf("failed to query 24h reference: %w", err)
	}

	return report, nil
}

// Summary returns full-history statistics, or storage.ErrNoReadings when the
// store is empty
func (s *Service) Summary(ctx context.Context) (*models.Summary, error) {
	start := time.Now()
	stats, err := s.store.Aggregate(ctx)
	s.metrics.ObserveQuery("aggregate", start)
	if err != nil {
		return nil, err
	}

	// Whole-day truncation: a partial final day does not round up
	days := int(stats.LastTimestamp.Sub(stats.FirstTimestamp).Hours() / 24)

	return &models.Summary{
		TotalReadings:   stats.Count,
		MonitoringSince: stats.FirstTimestamp,
		LastReading:     stats.LastTimestamp,
		DaysMonitored:   days,
		Moisture: models.MoistureSummary{
			Min:     stats.MinMoisture,
			Max:     stats.MaxMoisture,
			Average: round1(stats.AvgMoisture),
		},
		Temperature: models.TemperatureSummary{
			Min:     stats.MinTemperature,
			Max:     stats.MaxTemperature,
			Average: round1(stats.AvgTemperature),
		},
	}, nil
}

// DeleteLatest removes the most recent reading and returns its snapshot
func (s *Service) DeleteLatest(ctx context.Context) (*models.Reading, error) {
	start := time.Now()
	deleted, err := s.store.DeleteLatest(ctx)
	s.metrics.ObserveQuery("delete_latest", start)
	if err != nil {
		return nil, err
	}

	s.metrics.ReadingsDeleted.Inc()
	s.logger.WithFields(map[string]interface{}{
		"id":        deleted.ID,
		"device_id": deleted.DeviceID,
	}).Info("Deleted latest reading")

	return deleted, nil
}

// Reset deletes every reading after checking the confirmation token and
// reports the pre-deletion count. The identity sequence restarts at 1.
func (s *Service) Reset(ctx context.Context, confirm string) (*models.ResetResult, error) {
	if confirm != ResetConfirmation {
		return nil, ErrConfirmationRequired
	}

	start := time.Now()
	count, err := s.store.DeleteAll(ctx)
	s.metrics.ObserveQuery("delete_all", start)
	if err != nil {
		return nil, fmt.Errorf("failed to reset readings: %w", err)
	}

	s.metrics.ReadingsDeleted.Add(float64(count))
	s.logger.WithEvent(logging.EventReadingsReset).WithFields(map[string]interface{}{
		"deleted_count": count,
	}).Warn("All readings deleted")

	return &models.ResetResult{
		DeletedCount: count,
		ResetTime:    time.Now().UTC(),
	}, nil
}

// round1 rounds to one decimal place for the summary payload
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// rejectReason maps a validation error to its metrics label
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingBody):
		return "missing_body"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	default:
		return "invalid"
	}
}
