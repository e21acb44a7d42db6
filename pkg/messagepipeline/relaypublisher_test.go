package messagepipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayPublisher_RoundTripThroughConsumer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	client, _ := setupConsumerTest(t, "test-project", "relay-out", "relay-out-sub")

	publisher, err := messagepipeline.NewRelayPublisher(ctx, client, "relay-out", "", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = publisher.Stop(context.Background()) })

	consumer, err := messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults("relay-out-sub"), client, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, consumer.Start(ctx))
	t.Cleanup(func() { _ = consumer.Stop(context.Background()) })

	busTopic := "site/robot/pub/make87_messages-text-PlainText/notes"
	id, err := publisher.Publish(ctx, busTopic, []byte("relayed"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	select {
	case msg := <-consumer.Messages():
		assert.Equal(t, busTopic, msg.Topic)
		assert.Equal(t, []byte("relayed"), msg.Payload)
		assert.Equal(t, id, msg.ID)
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for the relayed message")
	}
}

func TestRelayPublisher_MissingTopic(t *testing.T) {
	client, _ := setupConsumerTest(t, "test-project", "present", "present-sub")
	_, err := messagepipeline.NewRelayPublisher(context.Background(), client, "absent", "", zerolog.Nop())
	assert.Error(t, err)

	_, err = messagepipeline.NewRelayPublisher(context.Background(), nil, "present", "", zerolog.Nop())
	assert.Error(t, err)
}
