package checkins

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"attendance/db"
	"attendance/entity"
)

const recordColumns = `record_id, purchase_id, event_id, credential_id, actor_id, status, recorded_at`

// PostgresRepository stores purchase level attendance markers.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) PostgresRepository {
	if db == nil {
		panic("missing db")
	}

	return PostgresRepository{db: db}
}

func (r PostgresRepository) Add(ctx context.Context, record entity.CheckInRecord) error {
	return db.UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := db.InsertCheckInRecord(ctx, tx, record); err != nil {
			return err
		}

		return db.PublishChanges(ctx, tx, entity.NewCheckInRecordChange(record))
	})
}

func (r PostgresRepository) ListByEvent(ctx context.Context, eventID string) ([]entity.CheckInRecord, error) {
	var records []entity.CheckInRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT `+recordColumns+`
		FROM check_in_records
		WHERE event_id = $1
		ORDER BY recorded_at, record_id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("could not list check-in records of event %s: %w", eventID, err)
	}

	return records, nil
}

func (r PostgresRepository) ListByPurchase(ctx context.Context, purchaseID string) ([]entity.CheckInRecord, error) {
	var records []entity.CheckInRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT `+recordColumns+`
		FROM check_in_records
		WHERE purchase_id = $1
		ORDER BY recorded_at, record_id
	`, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("could not list check-in records of purchase %s: %w", purchaseID, err)
	}

	return records, nil
}
