package backfill

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"attendance/entity"
)

// CommandRequester hands backfills to the command processor, so they finish
// even when the requesting viewer goes away.
type CommandRequester struct {
	commandBus *cqrs.CommandBus
}

func NewCommandRequester(commandBus *cqrs.CommandBus) CommandRequester {
	if commandBus == nil {
		panic("missing commandBus")
	}

	return CommandRequester{commandBus: commandBus}
}

func (r CommandRequester) RequestBackfill(ctx context.Context, purchaseID string) error {
	err := r.commandBus.Send(ctx, &entity.EnsureCredentials{
		Header:     entity.NewEventHeader(),
		PurchaseID: purchaseID,
	})
	if err != nil {
		return fmt.Errorf("could not request backfill of purchase %s: %w", purchaseID, err)
	}

	return nil
}
