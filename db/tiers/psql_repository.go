package tiers

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

// Upsert stores the tier and publishes the change to the tier's event feed.
func (r PostgresRepository) Upsert(ctx context.Context, tier entity.TicketTier) error {
	return db.UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		var inserted bool
		err := tx.GetContext(ctx, &inserted, `
			INSERT INTO
				ticket_tiers (tier_id, event_id, name, max_quantity, available_quantity, price_amount, price_currency)
			VALUES
				($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (tier_id) DO UPDATE SET
				name = EXCLUDED.name,
				max_quantity = EXCLUDED.max_quantity,
				available_quantity = EXCLUDED.available_quantity,
				price_amount = EXCLUDED.price_amount,
				price_currency = EXCLUDED.price_currency
			RETURNING (xmax = 0)
		`,
			tier.ID,
			tier.EventID,
			tier.Name,
			tier.MaxQuantity,
			tier.AvailableQuantity,
			tier.PriceAmount,
			tier.PriceCurrency,
		)
		if err != nil {
			return fmt.Errorf("could not upsert tier %s: %w", tier.ID, err)
		}

		op := entity.OperationUpdate
		if inserted {
			op = entity.OperationInsert
		}

		return db.PublishChanges(ctx, tx, entity.NewTicketTierChange(op, tier))
	})
}

func (r PostgresRepository) Get(ctx context.Context, tierID string) (entity.TicketTier, error) {
	var tier entity.TicketTier
	err := r.db.GetContext(ctx, &tier, `
		SELECT tier_id, event_id, name, max_quantity, available_quantity, price_amount, price_currency
		FROM ticket_tiers
		WHERE tier_id = $1
	`, tierID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.TicketTier{}, fmt.Errorf("tier %s: %w", tierID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.TicketTier{}, fmt.Errorf("could not get tier %s: %w", tierID, err)
	}

	return tier, nil
}

func (r PostgresRepository) ListByEvent(ctx context.Context, eventID string) ([]entity.TicketTier, error) {
	var tiers []entity.TicketTier
	err := r.db.SelectContext(ctx, &tiers, `
		SELECT tier_id, event_id, name, max_quantity, available_quantity, price_amount, price_currency
		FROM ticket_tiers
		WHERE event_id = $1
		ORDER BY tier_id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("could not list tiers of event %s: %w", eventID, err)
	}

	return tiers, nil
}
