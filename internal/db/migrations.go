package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS access_events (
		id              UUID PRIMARY KEY,
		source          TEXT NOT NULL,
		mode            TEXT NOT NULL,
		session_id      TEXT,
		status          TEXT NOT NULL,
		plate_text      TEXT NOT NULL,
		raw_text        TEXT,
		confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
		access_status   TEXT NOT NULL,
		distance        INT,
		detections      JSONB,
		processed_at    TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_access_events_processed_at ON access_events(processed_at);`,
	`CREATE INDEX IF NOT EXISTS idx_access_events_plate_text ON access_events(plate_text);`,
	`CREATE INDEX IF NOT EXISTS idx_access_events_access_status ON access_events(access_status);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
