package purchases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"attendance/db"
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

// Add stores the purchase and publishes it. Purchases are immutable, so
// adding an existing one does nothing and publishes nothing.
func (r PostgresRepository) Add(ctx context.Context, purchase entity.Purchase) error {
	return db.UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO
				purchases (purchase_id, event_id, tier_id, buyer_id, quantity, unit_price_amount, unit_price_currency, created_at)
			VALUES
				(:purchase_id, :event_id, :tier_id, :buyer_id, :quantity, :unit_price_amount, :unit_price_currency, :created_at)
			ON CONFLICT (purchase_id) DO NOTHING
		`, purchase)
		if err != nil {
			return fmt.Errorf("could not add purchase %s: %w", purchase.ID, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("could not add purchase %s: %w", purchase.ID, err)
		}
		if affected == 0 {
			return nil
		}

		return db.PublishChanges(ctx, tx, entity.NewPurchaseChange(entity.OperationInsert, purchase))
	})
}

func (r PostgresRepository) Get(ctx context.Context, purchaseID string) (entity.Purchase, error) {
	var purchase entity.Purchase
	err := r.db.GetContext(ctx, &purchase, `
		SELECT purchase_id, event_id, tier_id, buyer_id, quantity, unit_price_amount, unit_price_currency, created_at
		FROM purchases
		WHERE purchase_id = $1
	`, purchaseID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Purchase{}, fmt.Errorf("purchase %s: %w", purchaseID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Purchase{}, fmt.Errorf("could not get purchase %s: %w", purchaseID, err)
	}

	return purchase, nil
}

func (r PostgresRepository) ListByEvent(ctx context.Context, eventID string) ([]entity.Purchase, error) {
	var purchases []entity.Purchase
	err := r.db.SelectContext(ctx, &purchases, `
		SELECT purchase_id, event_id, tier_id, buyer_id, quantity, unit_price_amount, unit_price_currency, created_at
		FROM purchases
		WHERE event_id = $1
		ORDER BY created_at, purchase_id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("could not list purchases of event %s: %w", eventID, err)
	}

	return purchases, nil
}
