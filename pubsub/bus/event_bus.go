package bus

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"

	"attendance/entity"
)

// ChangesTopic is the topic row changes of one table and one event are
// published to, so a listener can subscribe to exactly one event.
func ChangesTopic(table entity.Table, eventID string) string {
	return "changes." + string(table) + "." + eventID
}

// Marshaler is shared by publishers and the listener that decodes changes.
var Marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}

func NewChangeBus(pub message.Publisher) (*cqrs.EventBus, error) {
	return cqrs.NewEventBusWithConfig(pub, cqrs.EventBusConfig{
		GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
			change, ok := params.Event.(*entity.RowChange)
			if !ok {
				return "", fmt.Errorf("invalid change type: %T is not *entity.RowChange", params.Event)
			}
			if change.EventID == "" {
				return "", fmt.Errorf("change %s of %s has no event id", change.Header.ID, change.Table)
			}

			return ChangesTopic(change.Table, change.EventID), nil
		},
		Marshaler: Marshaler,
	})
}

// DecodeChange reads a row change from a message published on a change bus.
func DecodeChange(msg *message.Message) (entity.RowChange, error) {
	var change entity.RowChange
	if err := Marshaler.Unmarshal(msg, &change); err != nil {
		return entity.RowChange{}, fmt.Errorf("could not decode change %s: %w", msg.UUID, err)
	}

	return change, nil
}
