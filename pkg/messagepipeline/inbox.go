package messagepipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// QueuePolicy decides what a full Inbox does with a new message.
type QueuePolicy int

const (
	// PolicyBlock makes the producer wait for room.
	PolicyBlock QueuePolicy = iota
	// PolicyDropOldest always accepts the new message and discards the oldest queued one.
	PolicyDropOldest
)

// ParseQueuePolicy accepts "block" and "drop_oldest". The empty string is PolicyBlock.
func ParseQueuePolicy(s string) (QueuePolicy, error) {
	switch strings.ToLower(s) {
	case "", "block":
		return PolicyBlock, nil
	case "drop_oldest", "drop-oldest":
		return PolicyDropOldest, nil
	default:
		return PolicyBlock, fmt.Errorf("unknown queue policy %q", s)
	}
}

func (p QueuePolicy) String() string {
	if p == PolicyDropOldest {
		return "drop_oldest"
	}
	return "block"
}

// DefaultQueueSize is used when a source is configured without a queue size.
const DefaultQueueSize = 64

// Inbox is the bounded queue between a bus callback and the dispatch loop. Any number of
// goroutines may Push; one reader drains Messages.
type Inbox struct {
	ch     chan Message
	policy QueuePolicy

	mu        sync.RWMutex
	closed    bool
	quit      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewInbox creates an Inbox holding up to size messages.
func NewInbox(size int, policy QueuePolicy) *Inbox {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Inbox{
		ch:     make(chan Message, size),
		policy: policy,
		quit:   make(chan struct{}),
	}
}

// Messages is the read side.
func (i *Inbox) Messages() <-chan Message { return i.ch }

// Dropped counts messages discarded by PolicyDropOldest.
func (i *Inbox) Dropped() uint64 { return i.dropped.Load() }

// Push queues msg. It returns false when the message was not queued because the inbox
// is closed or, under PolicyBlock, ctx ended first.
func (i *Inbox) Push(ctx context.Context, msg Message) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return false
	}

	if i.policy == PolicyBlock {
		select {
		case i.ch <- msg:
			return true
		case <-i.quit:
			return false
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case i.ch <- msg:
			return true
		default:
		}
		select {
		case old := <-i.ch:
			i.dropped.Add(1)
			// A dropped message is finished with; it is never going to be handled.
			old.ack()
		default:
		}
	}
}

// Close stops accepting messages and closes Messages once blocked producers have
// returned. Messages already queued stay readable.
func (i *Inbox) Close() {
	i.closeOnce.Do(func() {
		close(i.quit)
		i.mu.Lock()
		i.closed = true
		close(i.ch)
		i.mu.Unlock()
	})
}
