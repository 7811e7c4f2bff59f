package storage

import (
	"context"
	"errors"

	"github.com/plantlog/plantlog/pkg/models"
)

// ReadingStore is the interface both relational backends implement. Callers
// issue backend-neutral verbs; placeholder syntax, "now" arithmetic, and
// bulk-reset mechanics never leak past the implementations.
type ReadingStore interface {
	// Insert appends one row with the store clock as its timestamp. Inputs
	// are validated before they reach the store; Insert never revalidates.
	Insert(ctx context.Context, deviceID string, moisture int, temperature float64) (*models.Reading, error)

	// Latest returns the row with the maximum timestamp, ties broken by
	// maximum id. Returns ErrNoReadings on an empty store.
	Latest(ctx context.Context) (*models.Reading, error)

	// LatestWithAge returns the latest row plus its age in seconds computed
	// against the store's clock, not the caller's.
	LatestWithAge(ctx context.Context) (*models.Reading, int64, error)

	// Window returns rows newer than hours ago, oldest to newest. The scan
	// is newest-first capped at limit, so when the window holds more rows
	// than limit the most recent ones win.
	Window(ctx context.Context, hours, limit int) ([]*models.Reading, error)

	// MoistureBefore returns the moisture of the most recent row at least
	// hoursAgo old, or ErrNoReadings when no such row exists.
	MoistureBefore(ctx context.Context, hoursAgo int) (int, error)

	// Aggregate computes count/min/max/avg statistics over the full table.
	// Returns ErrNoReadings when the table is empty.
	Aggregate(ctx context.Context) (*models.ReadingStats, error)

	// DeleteLatest removes the current latest row as a single conditional
	// delete and returns its snapshot.
	DeleteLatest(ctx context.Context) (*models.Reading, error)

	// DeleteAll removes every row, restarts the identity sequence at 1,
	// and reports the pre-deletion row count.
	DeleteAll(ctx context.Context) (int64, error)

	// Lifecycle
	HealthCheck(ctx context.Context) error
	Close() error
}

// ErrNoReadings is returned when a query over an empty store has no row to
// report. It marks a defined empty state, not a failure.
var ErrNoReadings = errors.New("no readings stored")

// reverseReadings flips a newest-first scan into the caller-facing oldest to
// newest order.
func reverseReadings(readings []*models.Reading) {
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
}
