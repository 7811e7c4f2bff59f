package storage

import (
	"fmt"

	"github.com/plantlog/plantlog/internal/config"
	"github.com/plantlog/plantlog/internal/logging"
)

// BackendType represents the type of storage backend
type BackendType string

const (
	// BackendSQLite uses an embedded SQLite file
	BackendSQLite BackendType = "sqlite"
	// BackendPostgres uses PostgreSQL for networked storage
	BackendPostgres BackendType = "postgres"
)

// NewStore creates a storage backend based on configuration. The choice is
// made exactly once at process start; when no backend is named explicitly,
// the presence of a Postgres connection string selects Postgres, otherwise
// the embedded SQLite file is used.
func NewStore(cfg *config.StorageConfig, logger *logging.Logger) (ReadingStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	backendType := BackendType(cfg.Backend)
	if backendType == "" {
		if cfg.Postgres.URL != "" {
			backendType = BackendPostgres
		} else {
			backendType = BackendSQLite
		}
	}

	switch backendType {
	case BackendSQLite:
		logger.WithFields(map[string]interface{}{
			"path": cfg.SQLite.Path,
		}).Info("Using SQLite storage")
		return NewSQLiteStore(cfg.SQLite.Path, logger)

	case BackendPostgres:
		if cfg.Postgres.URL == "" {
			return nil, fmt.Errorf("postgres backend selected but no connection URL configured")
		}
		logger.Info("Using PostgreSQL storage")
		return NewPostgresStore(cfg.Postgres.URL, logger)

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (valid options: sqlite, postgres)", cfg.Backend)
	}
}
