package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"attendance/entity"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) PostgresRepository {
	if db == nil {
		panic("missing db")
	}

	return PostgresRepository{db: db}
}

// Add stores the event. Adding the same event twice is a no-op.
func (r PostgresRepository) Add(ctx context.Context, event entity.Event) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO
			events (event_id, name, capacity, attendee_count, starts_at, check_in_closed_at)
		VALUES
			(:event_id, :name, :capacity, :attendee_count, :starts_at, :check_in_closed_at)
		ON CONFLICT (event_id) DO NOTHING
	`, event)
	if err != nil {
		return fmt.Errorf("could not add event %s: %w", event.ID, err)
	}

	return nil
}

func (r PostgresRepository) Get(ctx context.Context, eventID string) (entity.Event, error) {
	var event entity.Event
	err := r.db.GetContext(ctx, &event, `
		SELECT event_id, name, capacity, attendee_count, starts_at, check_in_closed_at
		FROM events
		WHERE event_id = $1
	`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Event{}, fmt.Errorf("event %s: %w", eventID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Event{}, fmt.Errorf("could not get event %s: %w", eventID, err)
	}

	return event, nil
}

// CloseCheckIn stops accepting check-ins for the event from at on.
func (r PostgresRepository) CloseCheckIn(ctx context.Context, eventID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE events SET check_in_closed_at = $2 WHERE event_id = $1
	`, eventID, at)
	if err != nil {
		return fmt.Errorf("could not close check-in of event %s: %w", eventID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not close check-in of event %s: %w", eventID, err)
	}
	if affected == 0 {
		return fmt.Errorf("event %s: %w", eventID, entity.ErrNotFound)
	}

	return nil
}
