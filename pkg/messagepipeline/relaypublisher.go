package messagepipeline

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// RelayPublisher puts bus messages onto a Pub/Sub topic in the form GooglePubsubConsumer
// reads back: the payload as data and the bus topic in an attribute. The bus topic is
// also the ordering key, so messages of one bus topic keep their order.
type RelayPublisher struct {
	topic          *pubsub.Topic
	topicAttribute string
	logger         zerolog.Logger
}

// NewRelayPublisher verifies that topicID exists. An empty topicAttribute means
// DefaultTopicAttribute.
func NewRelayPublisher(ctx context.Context, client *pubsub.Client, topicID, topicAttribute string, logger zerolog.Logger) (*RelayPublisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	if topicAttribute == "" {
		topicAttribute = DefaultTopicAttribute
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", topicID)
	}
	topic.EnableMessageOrdering = true

	return &RelayPublisher{
		topic:          topic,
		topicAttribute: topicAttribute,
		logger:         logger.With().Str("component", "RelayPublisher").Str("topic_id", topicID).Logger(),
	}, nil
}

// Publish sends payload as published on busTopic and waits for the server's id.
func (p *RelayPublisher) Publish(ctx context.Context, busTopic string, payload []byte) (string, error) {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        payload,
		Attributes:  map[string]string{p.topicAttribute: busTopic},
		OrderingKey: busTopic,
	})
	id, err := result.Get(ctx)
	if err != nil {
		// A failed key stays paused until resumed.
		p.topic.ResumePublish(busTopic)
		return "", fmt.Errorf("failed to publish to %s: %w", busTopic, err)
	}
	p.logger.Debug().Str("bus_topic", busTopic).Str("msg_id", id).Msg("Relayed message.")
	return id, nil
}

// Stop flushes pending messages, respecting the context's deadline.
func (p *RelayPublisher) Stop(ctx context.Context) error {
	stopDone := make(chan struct{})
	go func() {
		p.topic.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
