package grpcsink

import (
	"errors"
	"io"
	"sync"

	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// Receiver is a SinkServer that records what it is sent. It backs the sink-debug
// command and the transport tests.
type Receiver struct {
	logger zerolog.Logger
	// OnFrame, when set, is called for every received frame.
	OnFrame func(session string, frame sink.Frame)

	mu        sync.Mutex
	keep      int
	frames    []sink.Frame
	sessions  []string
	completed int
}

// NewReceiver keeps the last keep frames; keep <= 0 keeps them all.
func NewReceiver(keep int, logger zerolog.Logger) *Receiver {
	return &Receiver{
		keep:   keep,
		logger: logger.With().Str("component", "SinkReceiver").Logger(),
	}
}

// Stream implements SinkServer.
func (r *Receiver) Stream(stream grpc.ServerStream) error {
	session := "unknown"
	if md, ok := metadata.FromIncomingContext(stream.Context()); ok {
		if v := md.Get(SessionHeader); len(v) > 0 {
			session = v[0]
		}
	}
	r.mu.Lock()
	r.sessions = append(r.sessions, session)
	r.mu.Unlock()
	log := r.logger.With().Str("session", session).Logger()
	log.Info().Msg("Sink session started.")

	var count uint64
	for {
		var frame sink.Frame
		err := stream.RecvMsg(&frame)
		if errors.Is(err, io.EOF) {
			r.mu.Lock()
			r.completed++
			r.mu.Unlock()
			log.Info().Uint64("frames", count).Msg("Sink session finished.")
			return stream.SendMsg(&sink.Summary{Frames: count})
		}
		if err != nil {
			log.Warn().Err(err).Uint64("frames", count).Msg("Sink session ended abnormally.")
			return err
		}
		count++
		r.record(frame)
		if r.OnFrame != nil {
			r.OnFrame(session, frame)
		}
	}
}

func (r *Receiver) record(frame sink.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	if r.keep > 0 && len(r.frames) > r.keep {
		r.frames = r.frames[len(r.frames)-r.keep:]
	}
}

// Frames returns a copy of the retained frames in arrival order.
func (r *Receiver) Frames() []sink.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sink.Frame(nil), r.frames...)
}

// Sessions returns the session ids seen, in order.
func (r *Receiver) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sessions...)
}

// Completed counts streams that were closed cleanly by the client.
func (r *Receiver) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// NewServer builds a grpc.Server exposing receiver and a health service that reports
// ServiceName as serving.
func NewServer(receiver SinkServer, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(opts...)
	RegisterSinkServer(srv, receiver)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}
