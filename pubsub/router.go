package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"attendance/pubsub/command"
	"attendance/pubsub/poison"
)

func NewWatermillRouter(
	commandProcessorConfig cqrs.CommandProcessorConfig,
	commandsHandler command.Handler,
	poisonPublisher message.Publisher,
	watermillLogger watermill.LoggerAdapter,
) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermillLogger)
	if err != nil {
		return nil, fmt.Errorf("could not create router: %w", err)
	}

	poisonQueue, err := middleware.PoisonQueue(poisonPublisher, poison.Topic)
	if err != nil {
		return nil, fmt.Errorf("could not create poison queue middleware: %w", err)
	}

	useMiddlewares(router, poisonQueue, watermillLogger)

	commandProcessor, err := cqrs.NewCommandProcessorWithConfig(router, commandProcessorConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create command processor: %w", err)
	}

	err = commandProcessor.AddHandlers(
		commandsHandler.EnsureCredentialsHandler(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not add handlers to command processor: %w", err)
	}

	return router, nil
}
