package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConsumerConfig configures a Redis pub/sub source.
type RedisConsumerConfig struct {
	// Pattern is a PSUBSCRIBE glob; the channel a message arrives on is its topic.
	Pattern     string
	QueueSize   int
	QueuePolicy QueuePolicy
}

// RedisConsumer receives messages from Redis pub/sub channels matching a pattern. Redis
// pub/sub has no acknowledgment, so Ack and Nack are no-ops.
type RedisConsumer struct {
	client   redis.UniversalClient
	cfg      RedisConsumerConfig
	logger   zerolog.Logger
	inbox    *Inbox
	pubsub   *redis.PubSub
	stopOnce sync.Once
	doneChan chan struct{}
}

// NewRedisConsumer does not subscribe until Start is called.
func NewRedisConsumer(cfg RedisConsumerConfig, client redis.UniversalClient, logger zerolog.Logger) (*RedisConsumer, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if cfg.Pattern == "" {
		return nil, errors.New("redis subscription pattern is required")
	}
	return &RedisConsumer{
		client:   client,
		cfg:      cfg,
		logger:   logger.With().Str("component", "RedisConsumer").Str("pattern", cfg.Pattern).Logger(),
		inbox:    NewInbox(cfg.QueueSize, cfg.QueuePolicy),
		doneChan: make(chan struct{}),
	}, nil
}

func (c *RedisConsumer) Messages() <-chan Message { return c.inbox.Messages() }

// Dropped counts messages discarded by the inbox policy.
func (c *RedisConsumer) Dropped() uint64 { return c.inbox.Dropped() }

// Start subscribes and waits for the server's confirmation, so an unreachable Redis is
// reported here.
func (c *RedisConsumer) Start(ctx context.Context) error {
	ps := c.client.PSubscribe(ctx, c.cfg.Pattern)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("psubscribe %s: %w", c.cfg.Pattern, err)
	}
	c.pubsub = ps
	c.logger.Info().Msg("Subscribed to Redis pattern.")

	go func() {
		defer close(c.doneChan)
		defer c.inbox.Close()
		for m := range ps.Channel() {
			if !c.inbox.Push(ctx, MessageFromRedis(m, time.Now().UTC())) {
				c.logger.Warn().Str("topic", m.Channel).Msg("Consumer stopping, dropping Redis message.")
			}
		}
		c.logger.Info().Msg("Redis subscription channel closed.")
	}()
	return nil
}

// MessageFromRedis converts a pub/sub delivery.
func MessageFromRedis(m *redis.Message, receivedAt time.Time) Message {
	attrs := map[string]string{"redis_channel": m.Channel}
	if m.Pattern != "" {
		attrs["redis_pattern"] = m.Pattern
	}
	return Message{
		ID:         uuid.NewString(),
		Topic:      m.Channel,
		Payload:    []byte(m.Payload),
		ReceivedAt: receivedAt,
		Attributes: attrs,
	}
}

func (c *RedisConsumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping Redis consumer...")
		if c.pubsub == nil {
			c.inbox.Close()
			close(c.doneChan)
			return
		}
		if cerr := c.pubsub.Close(); cerr != nil {
			c.logger.Warn().Err(cerr).Msg("Error closing Redis subscription.")
		}
		select {
		case <-c.doneChan:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (c *RedisConsumer) Done() <-chan struct{} { return c.doneChan }
