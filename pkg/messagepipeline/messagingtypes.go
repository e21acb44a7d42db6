package messagepipeline

import (
	"time"
)

// Message is one payload taken off a bus subscription, together with the topic it was
// published on and its acknowledgment handles.
type Message struct {
	// ID is the broker's identifier for the message, or a generated one when the broker
	// has none.
	ID string
	// Topic is the concrete topic the payload arrived on. It drives per-message handler
	// resolution for late-bound subscriptions.
	Topic string
	// Payload is the raw schema-encoded bytes.
	Payload []byte
	// ReceivedAt is when the source took the message off the bus.
	ReceivedAt time.Time
	// Attributes holds broker metadata (Pub/Sub attributes, the Redis pattern, ...).
	Attributes map[string]string

	// Ack signals that the message is finished with. It is a no-op for sources whose
	// acknowledgment happens at the protocol level.
	Ack func()
	// Nack asks the broker to redeliver the message where the broker supports it.
	Nack func()
}

func (m Message) ack() {
	if m.Ack != nil {
		m.Ack()
	}
}

func (m Message) nack() {
	if m.Nack != nil {
		m.Nack()
	}
}
