package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"attendance/entity"
	"attendance/pubsub/bus"
	"attendance/pubsub/outbox"
	"attendance/tracing"
)

func UpdateInTx(
	ctx context.Context,
	db *sqlx.DB,
	isolation sql.IsolationLevel,
	fn func(ctx context.Context, tx *sqlx.Tx) error,
) (err error) {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = errors.Join(err, rollbackErr)
			}
			return
		}

		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// PublishChanges stores changes in the outbox of tx, so they are only
// published when the row mutation itself commits.
func PublishChanges(ctx context.Context, tx *sqlx.Tx, changes ...entity.RowChange) error {
	var publisher message.Publisher
	publisher, err := outbox.NewPublisher(tx.Tx, log.NewWatermill(log.FromContext(ctx)))
	if err != nil {
		return err
	}
	publisher = tracing.PublisherDecorator{Publisher: publisher}
	publisher = log.CorrelationPublisherDecorator{Publisher: publisher}

	changeBus, err := bus.NewChangeBus(publisher)
	if err != nil {
		return fmt.Errorf("could not create change bus: %w", err)
	}

	for i := range changes {
		if err := changeBus.Publish(ctx, &changes[i]); err != nil {
			return fmt.Errorf("could not publish %s change: %w", changes[i].Table, err)
		}
	}

	return nil
}

// IsUniqueViolation reports whether err was caused by a unique constraint.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
