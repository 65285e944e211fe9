package store

import "database/sql"

// migrate runs all database migrations
func migrate(db *sql.DB) error {
	migrations := []string{
		// Finished measurements
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			distance_km REAL NOT NULL,
			target_speed_kmh INTEGER NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,

		// One row per kilometer, the fields of the export table
		`CREATE TABLE IF NOT EXISTS splits (
			run_id TEXT NOT NULL,
			km INTEGER NOT NULL,
			measured_ms INTEGER NOT NULL,
			ideal_ms INTEGER,
			PRIMARY KEY (run_id, km),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}
