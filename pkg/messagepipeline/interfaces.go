package messagepipeline

import (
	"context"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/sink"
)

// MessageConsumer is a subscription source (MQTT, Redis, Pub/Sub). It takes messages off
// the bus and hands them to the dispatch loop in arrival order.
type MessageConsumer interface {
	// Messages returns the channel the dispatch loop reads. It is closed once the
	// consumer has stopped and everything it accepted has been delivered.
	Messages() <-chan Message
	// Start subscribes and begins consumption.
	Start(ctx context.Context) error
	// Stop ceases consumption and waits for background tasks to finish.
	Stop(ctx context.Context) error
	// Done returns a channel that is closed when the consumer has completely shut down.
	Done() <-chan struct{}
}

// HealthChecker is the part of the sink supervisor a dispatch loop drives.
type HealthChecker interface {
	CheckIfDue(ctx context.Context) sink.State
	HealthInterval() time.Duration
}
