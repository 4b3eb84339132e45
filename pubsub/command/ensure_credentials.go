package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"attendance/entity"
)

func (h Handler) EnsureCredentialsHandler() cqrs.CommandHandler {
	return cqrs.NewCommandHandler(
		"EnsureCredentialsHandler",
		func(ctx context.Context, cmd *entity.EnsureCredentials) error {
			logger := log.FromContext(ctx).WithField("purchase_id", cmd.PurchaseID)
			logger.Info("Ensuring credentials")

			issued, err := h.planner.EnsureCredentials(ctx, cmd.PurchaseID)

			var partial *entity.PartialBackfillError
			switch {
			case errors.As(err, &partial):
				// the next deficit observation asks again
				logger.WithError(err).WithField("missing", partial.Missing).Warn("Credentials only partially issued")
				return nil
			case errors.Is(err, entity.ErrNotFound):
				logger.Warn("Purchase not found, skipping")
				return nil
			case err != nil:
				return fmt.Errorf("could not ensure credentials of purchase %s: %w", cmd.PurchaseID, err)
			}

			logger.WithField("issued", issued).Info("Credentials ensured")
			return nil
		},
	)
}
