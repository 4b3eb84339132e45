package db

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/jmoiron/sqlx"

	"attendance/pubsub/outbox"
)

func InitializeDatabaseSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			event_id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			capacity INT NOT NULL DEFAULT 0,
			attendee_count INT NOT NULL DEFAULT 0,
			starts_at TIMESTAMPTZ NOT NULL,
			check_in_closed_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS event_attendance_counters (
			event_id VARCHAR(255) PRIMARY KEY REFERENCES events (event_id),
			attendees INT NOT NULL,
			capacity INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS ticket_tiers (
			tier_id VARCHAR(255) PRIMARY KEY,
			event_id VARCHAR(255) NOT NULL REFERENCES events (event_id),
			name VARCHAR(255) NOT NULL,
			max_quantity INT NOT NULL,
			available_quantity INT NOT NULL,
			price_amount NUMERIC(10, 2) NOT NULL,
			price_currency CHAR(3) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS ticket_tiers_event_id_idx ON ticket_tiers (event_id);

		CREATE TABLE IF NOT EXISTS purchases (
			purchase_id VARCHAR(255) PRIMARY KEY,
			event_id VARCHAR(255) NOT NULL REFERENCES events (event_id),
			tier_id VARCHAR(255) NOT NULL REFERENCES ticket_tiers (tier_id),
			buyer_id VARCHAR(255) NOT NULL,
			quantity INT NOT NULL CHECK (quantity > 0),
			unit_price_amount NUMERIC(10, 2) NOT NULL,
			unit_price_currency CHAR(3) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS purchases_event_id_idx ON purchases (event_id);

		CREATE TABLE IF NOT EXISTS credentials (
			credential_id VARCHAR(255) PRIMARY KEY,
			purchase_id VARCHAR(255) NOT NULL REFERENCES purchases (purchase_id),
			event_id VARCHAR(255) NOT NULL,
			event_name VARCHAR(255) NOT NULL DEFAULT '',
			tier_id VARCHAR(255) NOT NULL,
			tier_name VARCHAR(255) NOT NULL DEFAULT '',
			buyer_id VARCHAR(255) NOT NULL,
			sequence_number INT NOT NULL CHECK (sequence_number > 0),
			quantity INT NOT NULL,
			token VARCHAR(255) NOT NULL UNIQUE,
			status VARCHAR(32) NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL,
			used_at TIMESTAMPTZ,
			used_by VARCHAR(255) NOT NULL DEFAULT '',
			CHECK (sequence_number <= quantity),
			UNIQUE (purchase_id, sequence_number)
		);
		CREATE INDEX IF NOT EXISTS credentials_event_id_idx ON credentials (event_id);

		CREATE TABLE IF NOT EXISTS check_in_records (
			record_id VARCHAR(255) PRIMARY KEY,
			purchase_id VARCHAR(255) NOT NULL REFERENCES purchases (purchase_id),
			event_id VARCHAR(255) NOT NULL,
			credential_id VARCHAR(255) NOT NULL DEFAULT '',
			actor_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS check_in_records_event_id_idx ON check_in_records (event_id);
	`)
	if err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}

	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))
	if err := outbox.Initialize(db, watermillLogger); err != nil {
		return err
	}

	return nil
}
