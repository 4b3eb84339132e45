package pubsub

import (
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"attendance/tracing"
)

func NewRedisPublisher(rdb *redis.Client, watermillLogger watermill.LoggerAdapter) message.Publisher {
	publisher := NewRedisForwardingPublisher(rdb, watermillLogger)
	publisher = tracing.PublisherDecorator{Publisher: publisher}
	publisher = log.CorrelationPublisherDecorator{Publisher: publisher}
	return publisher
}

// NewRedisForwardingPublisher publishes messages with their metadata as it
// is. The outbox forwarder uses it, the metadata was set when the message was
// stored.
func NewRedisForwardingPublisher(rdb *redis.Client, watermillLogger watermill.LoggerAdapter) message.Publisher {
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, watermillLogger)
	if err != nil {
		panic(err)
	}

	return publisher
}

// NewRedisFanOutSubscriber returns a subscriber without a consumer group:
// every subscriber receives every message of the topic. Reading starts at
// the end of the stream, earlier changes are covered by the initial refresh.
func NewRedisFanOutSubscriber(rdb *redis.Client, watermillLogger watermill.LoggerAdapter) message.Subscriber {
	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:   rdb,
		OldestId: "$",
	}, watermillLogger)
	if err != nil {
		panic(err)
	}

	return sub
}
