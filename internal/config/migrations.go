package config

import "fmt"

// migrations holds the schema per dialect. Every statement must be safe to
// re-run against an already migrated database.
var migrations = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			device_id TEXT UNIQUE NOT NULL,
			device_name TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			api_key_hash TEXT,
			api_key_issued_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK ((api_key_hash IS NULL) = (api_key_issued_at IS NULL))
		)`,

		`CREATE TABLE IF NOT EXISTS cough_events (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			cough_type TEXT NOT NULL,
			confidence REAL NOT NULL,
			raw_score REAL,
			detected_at DATETIME NOT NULL,
			audio_volume REAL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_cough_events_device_time ON cough_events(device_id, detected_at)`,
	},

	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS devices (
			id VARCHAR(64) PRIMARY KEY,
			device_id VARCHAR(128) UNIQUE NOT NULL,
			device_name TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			api_key_hash TEXT,
			api_key_issued_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK ((api_key_hash IS NULL) = (api_key_issued_at IS NULL))
		)`,

		`CREATE TABLE IF NOT EXISTS cough_events (
			id VARCHAR(64) PRIMARY KEY,
			device_id VARCHAR(128) NOT NULL,
			cough_type VARCHAR(16) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			raw_score DOUBLE PRECISION,
			detected_at TIMESTAMPTZ NOT NULL,
			audio_volume DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_cough_events_device_time ON cough_events(device_id, detected_at)`,
	},

	// MySQL has no CREATE INDEX IF NOT EXISTS, so the index is declared inline.
	DriverMySQL: {
		`CREATE TABLE IF NOT EXISTS devices (
			id VARCHAR(64) PRIMARY KEY,
			device_id VARCHAR(128) UNIQUE NOT NULL,
			device_name VARCHAR(255) NOT NULL DEFAULT '',
			location VARCHAR(255) NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			api_key_hash VARCHAR(255),
			api_key_issued_at DATETIME(6),
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			CHECK ((api_key_hash IS NULL) = (api_key_issued_at IS NULL))
		)`,

		`CREATE TABLE IF NOT EXISTS cough_events (
			id VARCHAR(64) PRIMARY KEY,
			device_id VARCHAR(128) NOT NULL,
			cough_type VARCHAR(16) NOT NULL,
			confidence DOUBLE NOT NULL,
			raw_score DOUBLE,
			detected_at DATETIME(6) NOT NULL,
			audio_volume DOUBLE,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_cough_events_device_time (device_id, detected_at)
		)`,
	},
}

func (s *Store) migrate() error {
	stmts, ok := migrations[s.dialect]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, s.dialect)
	}

	for _, m := range stmts {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
