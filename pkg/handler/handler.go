// Package handler turns bus payloads into sink artifacts. A Registry maps the schema
// type named by a topic onto a Factory for the Handler that decodes that schema.
package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-vizbridge/pkg/schema"
	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/illmade-knight/go-vizbridge/pkg/types"
)

// Result describes what a Handler did with one payload.
type Result struct {
	Path    string
	Seconds float64
	// ReferenceID is the header's frame counter; HasHeader reports whether it was set.
	ReferenceID int64
	HasHeader   bool
	// Forwarded counts the artifacts written to the stream.
	Forwarded int
}

// Handler decodes one payload and writes the resulting artifacts to stream. Handlers hold
// no per-message state and may be reused for any number of messages.
type Handler interface {
	Handle(ctx context.Context, payload []byte, stream sink.Stream) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload []byte, stream sink.Stream) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, payload []byte, stream sink.Stream) (Result, error) {
	return f(ctx, payload, stream)
}

// Factory builds a Handler.
type Factory func() Handler

// envelope runs the envelope decoder and starts a Result from it.
func envelope(header *schema.Header, stream sink.Stream) Result {
	path, seconds := schema.DecodeEnvelope(header, stream)
	res := Result{Path: path, Seconds: seconds}
	if header != nil {
		res.ReferenceID = header.ReferenceID
		res.HasHeader = true
	}
	return res
}

// forward writes artifact and tags the error as a forwarding failure unless the
// transport already classified it.
func forward(ctx context.Context, stream sink.Stream, res *Result, artifact types.Artifact) error {
	if err := stream.Forward(ctx, res.Path, artifact); err != nil {
		if errors.Is(err, types.ErrForward) || errors.Is(err, types.ErrConnection) {
			return err
		}
		return fmt.Errorf("forward %s to %s: %v: %w", artifact.Kind(), res.Path, err, types.ErrForward)
	}
	res.Forwarded++
	return nil
}
