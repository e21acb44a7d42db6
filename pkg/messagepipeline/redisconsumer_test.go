package messagepipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/messagepipeline"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageFromRedis(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	msg := messagepipeline.MessageFromRedis(&redis.Message{
		Channel: "site/robot/pub/make87_messages-text-PlainText/notes",
		Pattern: "site/robot/pub/*",
		Payload: "\x0a\x00",
	}, now)

	assert.Equal(t, "site/robot/pub/make87_messages-text-PlainText/notes", msg.Topic)
	assert.Equal(t, []byte{0x0a, 0x00}, msg.Payload)
	assert.Equal(t, now, msg.ReceivedAt)
	assert.Equal(t, "site/robot/pub/*", msg.Attributes["redis_pattern"])
	assert.NotEmpty(t, msg.ID)
	assert.Nil(t, msg.Ack, "redis pub/sub has no acknowledgment")
}

func TestNewRedisConsumer_Validation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	_, err := messagepipeline.NewRedisConsumer(messagepipeline.RedisConsumerConfig{}, client, zerolog.Nop())
	assert.Error(t, err)
	_, err = messagepipeline.NewRedisConsumer(messagepipeline.RedisConsumerConfig{Pattern: "a/*"}, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestRedisConsumer_StartFailsWhenUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	consumer, err := messagepipeline.NewRedisConsumer(messagepipeline.RedisConsumerConfig{Pattern: "a/*"}, client, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, consumer.Start(ctx))

	require.NoError(t, consumer.Stop(context.Background()))
	_, ok := <-consumer.Messages()
	assert.False(t, ok)
}
