package poison

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/redis/go-redis/v9"
)

// Topic receives commands whose handler kept failing after all retries.
const Topic = "PoisonQueue"

const consumerGroup = "poison-queue-cli"

type Message struct {
	ID      string `json:"id"`
	Reason  string `json:"reason"`
	Topic   string `json:"topic"`
	Handler string `json:"handler"`
	Payload string `json:"payload"`
}

// Queue inspects the poison queue. Every walk over the queue republishes the
// messages it keeps, so the queue is read from the start again next time.
type Queue struct {
	subscriber message.Subscriber
	publisher  message.Publisher
	// idle ends a walk when no message arrives for that long.
	idle time.Duration
}

func NewQueue(rdb *redis.Client, logger watermill.LoggerAdapter) (*Queue, error) {
	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        rdb,
		ConsumerGroup: consumerGroup,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create poison queue subscriber: %w", err)
	}

	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create poison queue publisher: %w", err)
	}

	return &Queue{
		subscriber: sub,
		publisher:  pub,
		idle:       2 * time.Second,
	}, nil
}

func (q *Queue) Close() error {
	return q.subscriber.Close()
}

func (q *Queue) Preview(ctx context.Context) ([]Message, error) {
	var result []Message

	err := q.walk(ctx, func(msg *message.Message) (keep bool, stop bool, err error) {
		result = append(result, toMessage(msg))
		return true, false, nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Remove drops the message from the queue for good.
func (q *Queue) Remove(ctx context.Context, messageID string) error {
	return q.take(ctx, messageID, func(*message.Message) error { return nil })
}

// Requeue sends the message back to the topic it was poisoned on, so its
// handler gets another chance.
func (q *Queue) Requeue(ctx context.Context, messageID string) error {
	return q.take(ctx, messageID, func(msg *message.Message) error {
		topic := msg.Metadata.Get(middleware.PoisonedTopicKey)
		if topic == "" {
			return fmt.Errorf("message %s has no original topic", messageID)
		}

		retry := message.NewMessage(watermill.NewUUID(), msg.Payload)
		for key, value := range msg.Metadata {
			switch key {
			case middleware.ReasonForPoisonedKey, middleware.PoisonedTopicKey,
				middleware.PoisonedHandlerKey, middleware.PoisonedSubscriberKey:
				continue
			}
			retry.Metadata.Set(key, value)
		}

		return q.publisher.Publish(topic, retry)
	})
}

func (q *Queue) take(ctx context.Context, messageID string, use func(*message.Message) error) error {
	found := false

	err := q.walk(ctx, func(msg *message.Message) (bool, bool, error) {
		if msg.UUID != messageID {
			return true, false, nil
		}
		found = true
		return false, true, use(msg)
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("message %s not found", messageID)
	}

	return nil
}

// walk visits every message once. Messages visit keeps are published to the
// end of the queue again. The walk ends when the first kept message comes
// around, when visit asks to stop, or when the queue stays idle.
func (q *Queue) walk(ctx context.Context, visit func(msg *message.Message) (keep bool, stop bool, err error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages, err := q.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("could not subscribe to poison queue: %w", err)
	}

	firstKept := ""
	for {
		var msg *message.Message
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(q.idle):
			return nil
		case m, ok := <-messages:
			if !ok {
				return nil
			}
			msg = m
		}

		if firstKept != "" && msg.UUID == firstKept {
			return q.putBack(msg)
		}

		keep, stop, err := visit(msg)
		if err != nil {
			if putErr := q.putBack(msg); putErr != nil {
				return errors.Join(err, putErr)
			}
			return err
		}

		if keep {
			if firstKept == "" {
				firstKept = msg.UUID
			}
			if err := q.putBack(msg); err != nil {
				return err
			}
		} else {
			msg.Ack()
		}

		if stop {
			return nil
		}
	}
}

// putBack publishes msg to the end of the queue and acks the original.
func (q *Queue) putBack(msg *message.Message) error {
	if err := q.publisher.Publish(Topic, msg.Copy()); err != nil {
		msg.Nack()
		return fmt.Errorf("could not put message %s back: %w", msg.UUID, err)
	}
	msg.Ack()
	return nil
}

func toMessage(msg *message.Message) Message {
	return Message{
		ID:      msg.UUID,
		Reason:  msg.Metadata.Get(middleware.ReasonForPoisonedKey),
		Topic:   msg.Metadata.Get(middleware.PoisonedTopicKey),
		Handler: msg.Metadata.Get(middleware.PoisonedHandlerKey),
		Payload: string(msg.Payload),
	}
}
