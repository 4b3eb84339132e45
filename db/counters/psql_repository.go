package counters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"attendance/entity"
)

// PostgresRepository stores organizer maintained attendance counters.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) PostgresRepository {
	if db == nil {
		panic("missing db")
	}

	return PostgresRepository{db: db}
}

func (r PostgresRepository) Set(ctx context.Context, counter entity.EventCounter) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO
			event_attendance_counters (event_id, attendees, capacity, updated_at)
		VALUES
			(:event_id, :attendees, :capacity, :updated_at)
		ON CONFLICT (event_id) DO UPDATE SET
			attendees = EXCLUDED.attendees,
			capacity = EXCLUDED.capacity,
			updated_at = EXCLUDED.updated_at
	`, counter)
	if err != nil {
		return fmt.Errorf("could not set counter of event %s: %w", counter.EventID, err)
	}

	return nil
}

func (r PostgresRepository) Get(ctx context.Context, eventID string) (entity.EventCounter, error) {
	var counter entity.EventCounter
	err := r.db.GetContext(ctx, &counter, `
		SELECT event_id, attendees, capacity, updated_at
		FROM event_attendance_counters
		WHERE event_id = $1
	`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.EventCounter{}, fmt.Errorf("counter of event %s: %w", eventID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.EventCounter{}, fmt.Errorf("could not get counter of event %s: %w", eventID, err)
	}

	return counter, nil
}
