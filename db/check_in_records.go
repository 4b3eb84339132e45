package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"attendance/entity"
)

// InsertCheckInRecord writes a record inside an existing transaction.
// Records are append only, a repeated record id is ignored.
func InsertCheckInRecord(ctx context.Context, tx *sqlx.Tx, record entity.CheckInRecord) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO
			check_in_records (record_id, purchase_id, event_id, credential_id, actor_id, status, recorded_at)
		VALUES
			(:record_id, :purchase_id, :event_id, :credential_id, :actor_id, :status, :recorded_at)
		ON CONFLICT (record_id) DO NOTHING
	`, record)
	if err != nil {
		return fmt.Errorf("could not add check-in record of purchase %s: %w", record.PurchaseID, err)
	}

	return nil
}
