package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantlog/plantlog/internal/logging"
	"github.com/plantlog/plantlog/pkg/models"
)

// PostgresStore implements ReadingStore using PostgreSQL
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
}

// NewPostgresStore creates a PostgreSQL-backed storage
func NewPostgresStore(connString string, logger *logging.Logger) (*PostgresStore, error) {
	ctx := context.Background()

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ps := &PostgresStore{
		pool:   pool,
		logger: logger,
	}

	if err := ps.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("PostgreSQL storage initialized successfully")
	return ps, nil
}

func (ps *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id BIGSERIAL PRIMARY KEY,
		device_id TEXT NOT NULL DEFAULT 'esp32-1',
		moisture INTEGER NOT NULL,
		temperature DOUBLE PRECISION NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_readings_timestamp ON readings(timestamp DESC);
	`

	if _, err := ps.pool.Exec(ctx, schema); err != nil {
		return err
	}
	return ps.ensureDeviceIDColumn(ctx)
}

// ensureDeviceIDColumn applies the one additive migration for tables created
// by deployments that predate per-device identification
func (ps *PostgresStore) ensureDeviceIDColumn(ctx context.Context) error {
	var present bool
	err := ps.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'readings' AND column_name = 'device_id'
		)
	`).Scan(&present)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	alter := fmt.Sprintf(`ALTER TABLE readings ADD COLUMN device_id TEXT NOT NULL DEFAULT '%s'`, models.DefaultDeviceID)
	if _, err := ps.pool.Exec(ctx, alter); err != nil {
		return err
	}
	ps.logger.Info("Added device_id column to readings table")
	return nil
}

// Insert appends one row; the timestamp is assigned by the table default
func (ps *PostgresStore) Insert(ctx context.Context, deviceID string, moisture int, temperature float64) (*models.Reading, error) {
	var reading models.Reading
	err := ps.pool.QueryRow(ctx, `
		INSERT INTO readings (device_id, moisture, temperature)
		VALUES ($1, $2, $3)
		RETURNING id, device_id, moisture, temperature, timestamp
	`, deviceID, moisture, temperature).Scan(
		&reading.ID, &reading.DeviceID, &reading.Moisture, &reading.Temperature, &reading.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reading: %w", err)
	}
	return &reading, nil
}

// Latest returns the most recent reading
func (ps *PostgresStore) Latest(ctx context.Context) (*models.Reading, error) {
	var reading models.Reading
	err := ps.pool.QueryRow(ctx, `
		SELECT id, device_id, moisture, temperature, timestamp
		FROM readings
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`).Scan(&reading.ID, &reading.DeviceID, &reading.Moisture, &reading.Temperature, &reading.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoReadings
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}
	return &reading, nil
}

// LatestWithAge returns the most recent reading and its age in seconds,
// both computed against the database clock
func (ps *PostgresStore) LatestWithAge(ctx context.Context) (*models.Reading, int64, error) {
	var reading models.Reading
	var secondsAgo int64
	err := ps.pool.QueryRow(ctx, `
		SELECT id, device_id, moisture, temperature, timestamp,
		       CAST(EXTRACT(EPOCH FROM (NOW() - timestamp)) AS BIGINT)
		FROM readings
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`).Scan(&reading.ID, &reading.DeviceID, &reading.Moisture, &reading.Temperature, &reading.Timestamp, &secondsAgo)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNoReadings
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get latest reading: %w", err)
	}
	return &reading, secondsAgo, nil
}

// Window returns readings newer than hours ago, oldest to newest. The scan
// runs newest-first bounded by limit so a long history keeps the most
// recent rows.
func (ps *PostgresStore) Window(ctx context.Context, hours, limit int) ([]*models.Reading, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT id, device_id, moisture, temperature, timestamp
		FROM readings
		WHERE timestamp > NOW() - ($1 * INTERVAL '1 hour')
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`, hours, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query window: %w", err)
	}
	defer rows.Close()

	var readings []*models.Reading
	for rows.Next() {
		var reading models.Reading
		if err := rows.Scan(&reading.ID, &reading.DeviceID, &reading.Moisture, &reading.Temperature, &reading.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, &reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}

	reverseReadings(readings)
	return readings, nil
}

// MoistureBefore returns the moisture of the most recent reading at least
// hoursAgo old
func (ps *PostgresStore) MoistureBefore(ctx context.Context, hoursAgo int) (int, error) {
	var moisture int
	err := ps.pool.QueryRow(ctx, `
		SELECT moisture
		FROM readings
		WHERE timestamp <= NOW() - ($1 * INTERVAL '1 hour')
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, hoursAgo).Scan(&moisture)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNoReadings
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query reference moisture: %w", err)
	}
	return moisture, nil
}

// Aggregate computes full-table statistics in one query
func (ps *PostgresStore) Aggregate(ctx context.Context) (*models.ReadingStats, error) {
	var (
		count       int64
		first, last *time.Time
		minM, maxM  *int
		minT, maxT  *float64
		avgM, avgT  *float64
	)
	err := ps.pool.QueryRow(ctx, `
		SELECT COUNT(*), MIN(timestamp), MAX(timestamp),
		       MIN(moisture), MAX(moisture),
		       MIN(temperature), MAX(temperature),
		       AVG(moisture), AVG(temperature)
		FROM readings
	`).Scan(&count, &first, &last, &minM, &maxM, &minT, &maxT, &avgM, &avgT)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate readings: %w", err)
	}
	if count == 0 {
		return nil, ErrNoReadings
	}

	stats := &models.ReadingStats{Count: count}
	if first != nil {
		stats.FirstTimestamp = *first
	}
	if last != nil {
		stats.LastTimestamp = *last
	}
	if minM != nil {
		stats.MinMoisture = *minM
	}
	if maxM != nil {
		stats.MaxMoisture = *maxM
	}
	if minT != nil {
		stats.MinTemperature = *minT
	}
	if maxT != nil {
		stats.MaxTemperature = *maxT
	}
	if avgM != nil {
		stats.AvgMoisture = *avgM
	}
	if avgT != nil {
		stats.AvgTemperature = *avgT
	}
	return stats, nil
}

// DeleteLatest removes the current latest reading as a single conditional
// statement and returns its snapshot
func (ps *PostgresStore) DeleteLatest(ctx context.Context) (*models.Reading, error) {
	var reading models.Reading
	err := ps.pool.QueryRow(ctx, `
		DELETE FROM readings
		WHERE id = (SELECT id FROM readings ORDER BY timestamp DESC, id DESC LIMIT 1)
		RETURNING id, device_id, moisture, temperature, timestamp
	`).Scan(&reading.ID, &reading.DeviceID, &reading.Moisture, &reading.Temperature, &reading.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoReadings
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete latest reading: %w", err)
	}
	return &reading, nil
}

// DeleteAll removes every reading and restarts the id sequence at 1
func (ps *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	var count int64
	if err := ps.pool.QueryRow(ctx, `SELECT COUNT(*) FROM readings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if _, err := ps.pool.Exec(ctx, `TRUNCATE readings RESTART IDENTITY`); err != nil {
		return 0, fmt.Errorf("failed to truncate readings: %w", err)
	}
	return count, nil
}

// HealthCheck verifies the database connection is healthy
func (ps *PostgresStore) HealthCheck(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the database connection pool
func (ps *PostgresStore) Close() error {
	ps.pool.Close()
	ps.logger.Info("PostgreSQL connection pool closed")
	return nil
}

// Verify interface compliance
var _ ReadingStore = (*PostgresStore)(nil)
