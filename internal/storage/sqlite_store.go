package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/plantlog/plantlog/internal/logging"
	"github.com/plantlog/plantlog/pkg/models"
)

// Timestamps are stored as UTC text with millisecond precision so that row
// ordering is unambiguous and values stay comparable with datetime('now')
// arithmetic. Rows created by older deployments carry second precision.
const (
	sqliteTimeLayout       = "2006-01-02 15:04:05.000"
	sqliteLegacyTimeLayout = "2006-01-02 15:04:05"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id TEXT NOT NULL DEFAULT 'esp32-1',
	moisture INTEGER NOT NULL,
	temperature REAL NOT NULL,
	timestamp DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now'))
);
CREATE INDEX IF NOT EXISTS idx_readings_timestamp ON readings(timestamp);
`

// SQLiteStore implements ReadingStore using an embedded SQLite database file
type SQLiteStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteStore opens (or creates) the database at path and guarantees the
// readings table exists in its current shape before any query runs.
func NewSQLiteStore(path string, logger *logging.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The store process is the sole owner of the file; a single connection
	// avoids SQLITE_BUSY under concurrent requests and keeps :memory:
	// databases on one shared connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite storage initialized successfully")
	return s, nil
}

// NewSQLiteMemoryStore opens an in-memory database, used by tests
func NewSQLiteMemoryStore(logger *logging.Logger) (*SQLiteStore, error) {
	return NewSQLiteStore(":memory:", logger)
}

func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return err
	}
	return s.ensureDeviceIDColumn()
}

// ensureDeviceIDColumn applies the one additive migration: early deployments
// created the readings table without a device_id column. The column check
// makes the migration idempotent across restarts.
func (s *SQLiteStore) ensureDeviceIDColumn() error {
	rows, err := s.db.Query(`PRAGMA table_info(readings)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	present := false
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == "device_id" {
			present = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if present {
		return nil
	}

	alter := fmt.Sprintf(`ALTER TABLE readings ADD COLUMN device_id TEXT NOT NULL DEFAULT '%s'`, models.DefaultDeviceID)
	if _, err := s.db.Exec(alter); err != nil {
		return err
	}
	s.logger.Info("Added device_id column to readings table")
	return nil
}

// Insert appends one row; the timestamp is assigned by the table default
func (s *SQLiteStore) Insert(ctx context.Context, deviceID string, moisture int, temperature float64) (*models.Reading, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (device_id, moisture, temperature)
		VALUES (?, ?, ?)
	`, deviceID, moisture, temperature)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reading: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve inserted id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, moisture, temperature, timestamp
		FROM readings
		WHERE id = ?
	`, id)
	reading, err := scanSQLiteReading(row)
	if err != nil {
		return nil, fmt.Errorf("failed to read back inserted row: %w", err)
	}
	return reading, nil
}

// Latest returns the most recent reading
func (s *SQLiteStore) Latest(ctx context.Context) (*models.Reading, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, moisture, temperature, timestamp
		FROM readings
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`)
	reading, err := scanSQLiteReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoReadings
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}
	return reading, nil
}

// LatestWithAge returns the most recent reading and its age in seconds,
// both computed against the database clock
func (s *SQLiteStore) LatestWithAge(ctx context.Context) (*models.Reading, int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, moisture, temperature, timestamp,
		       CAST(strftime('%s','now') - strftime('%s', timestamp) AS INTEGER)
		FROM readings
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`)

	var reading models.Reading
	var ts string
	var secondsAgo int64
	err := row.Scan(&reading.ID, &reading.DeviceID, &reading.Moisture, &reading.Temperature, &ts, &secondsAgo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNoReadings
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get latest reading: %w", err)
	}

	reading.Timestamp, err = parseSQLiteTime(ts)
	if err != nil {
		return nil, 0, err
	}
	return &reading, secondsAgo, nil
}

// Window returns readings newer than hours ago, oldest to newest. The scan
// runs newest-first bounded by limit so a long history keeps the most
// recent rows.
func (s *SQLiteStore) Window(ctx context.Context, hours, limit int) ([]*models.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, moisture, temperature, timestamp
		FROM readings
		WHERE timestamp > datetime('now', ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, fmt.Sprintf("-%d hours", hours), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query window: %w", err)
	}
	defer rows.Close()

	var readings []*models.Reading
	for rows.Next() {
		reading, err := scanSQLiteReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}

	reverseReadings(readings)
	return readings, nil
}

// MoistureBefore returns the moisture of the most recent reading at least
// hoursAgo old
func (s *SQLiteStore) MoistureBefore(ctx context.Context, hoursAgo int) (int, error) {
	var moisture int
	err := s.db.QueryRowContext(ctx, `
		SELECT moisture
		FROM readings
		WHERE timestamp <= datetime('now', ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, fmt.Sprintf("-%d hours", hoursAgo)).Scan(&moisture)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoReadings
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query reference moisture: %w", err)
	}
	return moisture, nil
}

// Aggregate computes full-table statistics in one query
func (s *SQLiteStore) Aggregate(ctx context.Context) (*models.ReadingStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(timestamp), MAX(timestamp),
		       MIN(moisture), MAX(moisture),
		       MIN(temperature), MAX(temperature),
		       AVG(moisture), AVG(temperature)
		FROM readings
	`)

	var (
		count       int64
		first, last sql.NullString
		minM, maxM  sql.NullInt64
		minT, maxT  sql.NullFloat64
		avgM, avgT  sql.NullFloat64
	)
	if err := row.Scan(&count, &first, &last, &minM, &maxM, &minT, &maxT, &avgM, &avgT); err != nil {
		return nil, fmt.Errorf("failed to aggregate readings: %w", err)
	}
	if count == 0 {
		return nil, ErrNoReadings
	}

	firstTS, err := parseSQLiteTime(first.String)
	if err != nil {
		return nil, err
	}
	lastTS, err := parseSQLiteTime(last.String)
	if err != nil {
		return nil, err
	}

	return &models.ReadingStats{
		Count:          count,
		FirstTimestamp: firstTS,
		LastTimestamp:  lastTS,
		MinMoisture:    int(minM.Int64),
		MaxMoisture:    int(maxM.Int64),
		MinTemperature: minT.Float64,
		MaxTemperature: maxT.Float64,
		AvgMoisture:    avgM.Float64,
		AvgTemperature: avgT.Float64,
	}, nil
}

// DeleteLatest removes the current latest reading as a single conditional
// statement and returns its snapshot
func (s *SQLiteStore) DeleteLatest(ctx context.Context) (*models.Reading, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM readings
		WHERE id = (SELECT id FROM readings ORDER BY timestamp DESC, id DESC LIMIT 1)
		RETURNING id, device_id, moisture, temperature, timestamp
	`)
	reading, err := scanSQLiteReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoReadings
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete latest reading: %w", err)
	}
	return reading, nil
}

// DeleteAll removes every reading and restarts the id sequence at 1
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM readings`); err != nil {
		return 0, fmt.Errorf("failed to delete readings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'readings'`); err != nil {
		return 0, fmt.Errorf("failed to reset id sequence: %w", err)
	}

	return count, nil
}

// HealthCheck verifies the database is reachable
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	s.logger.Info("SQLite database closed")
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteReading(row rowScanner) (*models.Reading, error) {
	var reading models.Reading
	var ts string
	if err := row.Scan(&reading.ID, &reading.DeviceID, &reading.Moisture, &reading.Temperature, &ts); err != nil {
		return nil, err
	}
	parsed, err := parseSQLiteTime(ts)
	if err != nil {
		return nil, err
	}
	reading.Timestamp = parsed
	return &reading, nil
}

func parseSQLiteTime(value string) (time.Time, error) {
	if t, err := time.ParseInLocation(sqliteTimeLayout, value, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(sqliteLegacyTimeLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", value, err)
	}
	return t, nil
}

// Verify interface compliance
var _ ReadingStore = (*SQLiteStore)(nil)
