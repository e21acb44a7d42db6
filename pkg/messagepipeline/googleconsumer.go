package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// DefaultTopicAttribute is the Pub/Sub attribute a relay stores the original bus topic in.
const DefaultTopicAttribute = "topic"

// GooglePubsubConsumerConfig configures a Pub/Sub relay subscription.
type GooglePubsubConsumerConfig struct {
	ProjectID      string
	SubscriptionID string
	// TopicAttribute names the attribute carrying the bus topic.
	TopicAttribute string
	// FallbackTopic is used for messages without the attribute.
	FallbackTopic          string
	MaxOutstandingMessages int
	NumGoroutines          int
	QueueSize              int
	QueuePolicy            QueuePolicy
}

// NewGooglePubsubConsumerDefaults returns a config for subID. A single receive goroutine
// keeps delivery close to publish order.
func NewGooglePubsubConsumerDefaults(subID string) *GooglePubsubConsumerConfig {
	return &GooglePubsubConsumerConfig{
		SubscriptionID:         subID,
		TopicAttribute:         DefaultTopicAttribute,
		MaxOutstandingMessages: 100,
		NumGoroutines:          1,
		QueueSize:              DefaultQueueSize,
	}
}

// GooglePubsubConsumer receives relayed bus messages from a Pub/Sub subscription.
type GooglePubsubConsumer struct {
	subscription       *pubsub.Subscription
	cfg                GooglePubsubConsumerConfig
	logger             zerolog.Logger
	inbox              *Inbox
	stopOnce           sync.Once
	cancelSubscription context.CancelFunc
	doneChan           chan struct{}
}

// NewGooglePubsubConsumer checks that the subscription exists.
func NewGooglePubsubConsumer(cfg *GooglePubsubConsumerConfig, client *pubsub.Client, logger zerolog.Logger) (*GooglePubsubConsumer, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	sub := client.Subscription(cfg.SubscriptionID)

	existsCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("check subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}

	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines
	if cfg.TopicAttribute == "" {
		cfg.TopicAttribute = DefaultTopicAttribute
	}

	return &GooglePubsubConsumer{
		subscription: sub,
		cfg:          *cfg,
		logger:       logger.With().Str("component", "GooglePubsubConsumer").Str("subscription_id", cfg.SubscriptionID).Logger(),
		inbox:        NewInbox(cfg.QueueSize, cfg.QueuePolicy),
		doneChan:     make(chan struct{}),
	}, nil
}

func (c *GooglePubsubConsumer) Messages() <-chan Message { return c.inbox.Messages() }

// Dropped counts messages discarded by the inbox policy.
func (c *GooglePubsubConsumer) Dropped() uint64 { return c.inbox.Dropped() }

func (c *GooglePubsubConsumer) Start(ctx context.Context) error {
	c.logger.Info().Msg("Starting Pub/Sub message consumption...")
	receiveCtx, cancel := context.WithCancel(ctx)
	c.cancelSubscription = cancel
	go func() {
		defer close(c.doneChan)
		defer c.inbox.Close()
		defer c.logger.Info().Msg("Pub/Sub Receive goroutine stopped.")

		err := c.subscription.Receive(receiveCtx, func(ctx context.Context, msg *pubsub.Message) {
			if !c.inbox.Push(receiveCtx, c.toMessage(msg)) {
				msg.Nack()
				c.logger.Warn().Str("msg_id", msg.ID).Msg("Consumer stopping, Nacking message.")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
	}()
	return nil
}

func (c *GooglePubsubConsumer) toMessage(msg *pubsub.Message) Message {
	topic := msg.Attributes[c.cfg.TopicAttribute]
	if topic == "" {
		topic = c.cfg.FallbackTopic
	}
	return Message{
		ID:         msg.ID,
		Topic:      topic,
		Payload:    msg.Data,
		ReceivedAt: time.Now().UTC(),
		Attributes: msg.Attributes,
		Ack:        msg.Ack,
		Nack:       msg.Nack,
	}
}

func (c *GooglePubsubConsumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping Pub/Sub consumer...")
		if c.cancelSubscription == nil {
			c.inbox.Close()
			close(c.doneChan)
			return
		}
		c.cancelSubscription()
		select {
		case <-c.doneChan:
			c.logger.Info().Msg("Pub/Sub Receive goroutine confirmed stopped.")
		case <-ctx.Done():
			err = ctx.Err()
			c.logger.Error().Err(err).Msg("Timeout waiting for Pub/Sub Receive goroutine to stop.")
		}
	})
	return err
}

func (c *GooglePubsubConsumer) Done() <-chan struct{} { return c.doneChan }
