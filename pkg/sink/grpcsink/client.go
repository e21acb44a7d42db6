package grpcsink

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/illmade-knight/go-vizbridge/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// Options configure a client connection.
type Options struct {
	// UseHealthService adds a grpc.health.v1 Check to every health probe.
	UseHealthService bool
	// TransportCredentials defaults to insecure.
	TransportCredentials credentials.TransportCredentials
	// CloseTimeout bounds the wait for the sink's summary when the stream is closed.
	CloseTimeout time.Duration
	// SendTimeout bounds one frame write, flow-control waits included. A write that
	// exceeds it aborts the stream, which then reports Disconnected. Defaults to 2s.
	SendTimeout time.Duration
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// Conn is a sink.Conn backed by one client stream.
type Conn struct {
	cc        *grpc.ClientConn
	stream    grpc.ClientStream
	cancel    context.CancelFunc
	health    healthpb.HealthClient
	opts      Options
	sessionID string
	logger    zerolog.Logger

	sendMu sync.Mutex
	seq    uint64

	broken    atomic.Bool
	brokenMsg atomic.Value
	closeOnce sync.Once
	closeErr  error
}

// NewDialer adapts Dial to a sink.DialFunc.
func NewDialer(opts Options, logger zerolog.Logger) sink.DialFunc {
	return func(ctx context.Context, target string) (sink.Conn, error) {
		return Dial(ctx, target, opts, logger)
	}
}

// Dial connects to target and opens the frame stream. It waits until the channel is
// ready or ctx is done.
func Dial(ctx context.Context, target string, opts Options, logger zerolog.Logger) (*Conn, error) {
	creds := opts.TransportCredentials
	if creds == nil {
		creds = insecure.NewCredentials()
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 2 * time.Second
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts.DialOptions...)

	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create grpc client for %s: %v: %w", target, err, types.ErrConnection)
	}
	if err := waitForReady(ctx, cc); err != nil {
		_ = cc.Close()
		return nil, fmt.Errorf("connect to %s: %v: %w", target, err, types.ErrConnection)
	}

	sessionID := uuid.NewString()
	// The stream lives until Close, independent of the dial context.
	streamCtx, cancel := context.WithCancel(context.Background())
	streamCtx = metadata.AppendToOutgoingContext(streamCtx, SessionHeader, sessionID)
	stream, err := cc.NewStream(streamCtx, &streamDesc, streamMethod, grpc.CallContentSubtype(CodecName))
	if err != nil {
		cancel()
		_ = cc.Close()
		return nil, fmt.Errorf("open sink stream on %s: %v: %w", target, err, types.ErrConnection)
	}

	c := &Conn{
		cc:        cc,
		stream:    stream,
		cancel:    cancel,
		health:    healthpb.NewHealthClient(cc),
		opts:      opts,
		sessionID: sessionID,
		logger:    logger.With().Str("component", "GRPCSink").Str("target", target).Str("session", sessionID).Logger(),
	}
	c.logger.Info().Msg("Sink stream opened.")
	return c, nil
}

func waitForReady(ctx context.Context, cc *grpc.ClientConn) error {
	cc.Connect()
	for {
		state := cc.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !cc.WaitForStateChange(ctx, state) {
			return fmt.Errorf("channel %s: %w", state, ctx.Err())
		}
	}
}

// SessionID identifies this connection to the sink.
func (c *Conn) SessionID() string { return c.sessionID }

// Sent is the number of frames written so far.
func (c *Conn) Sent() uint64 {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.seq
}

// SetTimeCursor sends a time cursor frame. A failed send marks the connection broken.
func (c *Conn) SetTimeCursor(timeline string, seconds float64) {
	if err := c.send(context.Background(), sink.TimeCursorFrame(timeline, seconds)); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to send time cursor.")
	}
}

// Forward sends artifact to path.
func (c *Conn) Forward(ctx context.Context, path string, artifact types.Artifact) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("forward to %s: %v: %w", path, err, types.ErrForward)
	}
	frame, err := sink.ArtifactFrame(path, artifact)
	if err != nil {
		return err
	}
	return c.send(ctx, frame)
}

// send writes one frame. SendMsg blocks while the sink's flow-control window is
// exhausted; the only way to unblock it is to cancel the stream, so both the timeout and
// ctx abort the whole connection.
func (c *Conn) send(ctx context.Context, frame sink.Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.broken.Load() {
		return fmt.Errorf("sink stream broken: %s: %w", c.brokenReason(), types.ErrForward)
	}
	c.seq++
	frame.Seq = c.seq

	var aborted atomic.Value
	abort := func(reason string) {
		if aborted.CompareAndSwap(nil, reason) {
			c.markBroken(reason)
			c.cancel()
		}
	}
	timer := time.AfterFunc(c.opts.SendTimeout, func() { abort("send timed out") })
	stopCtx := context.AfterFunc(ctx, func() { abort("send cancelled") })
	err := c.stream.SendMsg(&frame)
	timer.Stop()
	stopCtx()

	if reason, ok := aborted.Load().(string); ok {
		return fmt.Errorf("send frame %d: %s: %w", frame.Seq, reason, types.ErrForward)
	}
	if err != nil {
		c.markBroken(fmt.Sprintf("send failed: %v", err))
		return fmt.Errorf("send frame %d: %v: %w", frame.Seq, err, types.ErrForward)
	}
	return nil
}

func (c *Conn) markBroken(reason string) {
	c.brokenMsg.Store(reason)
	c.broken.Store(true)
}

func (c *Conn) brokenReason() string {
	if v, ok := c.brokenMsg.Load().(string); ok {
		return v
	}
	return ""
}

// Health checks, in order, the broken flag, the stream context, the channel state and
// optionally the sink's health service.
func (c *Conn) Health(ctx context.Context) sink.State {
	if c.broken.Load() {
		return sink.Disconnected(c.brokenReason())
	}
	if err := c.stream.Context().Err(); err != nil {
		return sink.Disconnected(fmt.Sprintf("stream context: %v", err))
	}
	// A channel that left Ready will not bring this stream back.
	if state := c.cc.GetState(); state != connectivity.Ready {
		return sink.Disconnected("channel " + state.String())
	}
	if !c.opts.UseHealthService {
		return sink.Connected()
	}

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return sink.Disconnected(fmt.Sprintf("health check: %v", err))
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return sink.Disconnected("sink reports " + resp.GetStatus().String())
	}
	return sink.Connected()
}

// Close half-closes the stream, waits briefly for the sink's summary and tears down the
// channel. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.markBroken("closed")
		sent := c.seq
		closeSendErr := c.stream.CloseSend()
		c.sendMu.Unlock()

		if closeSendErr == nil {
			summary := make(chan *sink.Summary, 1)
			go func() {
				var s sink.Summary
				if err := c.stream.RecvMsg(&s); err != nil {
					summary <- nil
					return
				}
				summary <- &s
			}()
			select {
			case s := <-summary:
				if s != nil {
					c.logger.Info().Uint64("sent", sent).Uint64("acknowledged", s.Frames).Msg("Sink stream closed.")
				}
			case <-time.After(c.opts.CloseTimeout):
				c.logger.Warn().Uint64("sent", sent).Msg("Timed out waiting for sink summary.")
			}
		}
		c.cancel()
		c.closeErr = c.cc.Close()
	})
	return c.closeErr
}
