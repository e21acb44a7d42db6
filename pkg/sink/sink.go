// Package sink defines the outbound side of the bridge: the stream handlers write
// artifacts to, the connection abstraction transports implement, and the Supervisor
// that keeps the connection alive.
package sink

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-vizbridge/pkg/types"
)

// Status is the coarse health of a sink connection.
type Status int

const (
	StatusConnected Status = iota
	StatusConnecting
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusConnecting:
		return "connecting"
	case StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// State is a point-in-time snapshot of a connection. Reason is set when disconnected.
type State struct {
	Status Status
	Reason string
}

func Connected() State                 { return State{Status: StatusConnected} }
func Connecting() State                { return State{Status: StatusConnecting} }
func Disconnected(reason string) State { return State{Status: StatusDisconnected, Reason: reason} }

func (s State) String() string {
	if s.Reason == "" {
		return s.Status.String()
	}
	return s.Status.String() + ": " + s.Reason
}

// Stream is what message handlers write to. SetTimeCursor never fails from the caller's
// point of view; a transport that cannot deliver it records the failure in its health.
type Stream interface {
	SetTimeCursor(timeline string, seconds float64)
	Forward(ctx context.Context, path string, artifact types.Artifact) error
}

// Conn is one established connection to the sink.
type Conn interface {
	Stream
	// Health probes the connection. It must return promptly once ctx is done.
	Health(ctx context.Context) State
	Close() error
}

// DialFunc opens a new connection to target.
type DialFunc func(ctx context.Context, target string) (Conn, error)
