package tracing_test

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"attendance/tracing"
)

func TestPublisherDecorator_injects_trace_context(t *testing.T) {
	tp, err := tracing.ConfigureTraceProvider("")
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, span := otel.Tracer("").Start(context.Background(), "test")
	defer span.End()

	msg := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	msg.SetContext(ctx)

	pub := tracing.PublisherDecorator{Publisher: pubSub}
	require.NoError(t, pub.Publish("topic", msg))

	assert.Contains(t, msg.Metadata.Get("traceparent"), span.SpanContext().TraceID().String())
}
