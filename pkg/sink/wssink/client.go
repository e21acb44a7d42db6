// Package wssink carries sink frames over a WebSocket, one binary CBOR message per
// frame.
package wssink

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/illmade-knight/go-vizbridge/pkg/types"
	"github.com/rs/zerolog"
)

// SessionHeader carries the per-connection session id on the upgrade request.
const SessionHeader = "X-Vizbridge-Session"

// Options configure a client connection.
type Options struct {
	// Path is the URL path of the sink endpoint. Defaults to /sink.
	Path string
	// Secure selects wss instead of ws.
	Secure       bool
	WriteTimeout time.Duration
}

// Conn is a sink.Conn backed by a WebSocket.
type Conn struct {
	ws        *websocket.Conn
	opts      Options
	sessionID string
	logger    zerolog.Logger

	writeMu sync.Mutex
	seq     uint64

	pong      chan struct{}
	readDone  chan struct{}
	broken    atomic.Bool
	brokenMsg atomic.Value
	closeOnce sync.Once
}

// NewDialer adapts Dial to a sink.DialFunc.
func NewDialer(opts Options, logger zerolog.Logger) sink.DialFunc {
	return func(ctx context.Context, target string) (sink.Conn, error) {
		return Dial(ctx, target, opts, logger)
	}
}

// URL builds the endpoint for a host:port target. A target that already has a ws or
// wss scheme is used as is.
func URL(target string, opts Options) string {
	if strings.HasPrefix(target, "ws://") || strings.HasPrefix(target, "wss://") {
		return target
	}
	scheme := "ws"
	if opts.Secure {
		scheme = "wss"
	}
	path := opts.Path
	if path == "" {
		path = "/sink"
	}
	u := url.URL{Scheme: scheme, Host: target, Path: path}
	return u.String()
}

// Dial opens the WebSocket to target.
func Dial(ctx context.Context, target string, opts Options, logger zerolog.Logger) (*Conn, error) {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	endpoint := URL(target, opts)
	sessionID := uuid.NewString()
	headers := http.Header{}
	headers.Set(SessionHeader, sessionID)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("dial sink %s: %v: %w", endpoint, err, types.ErrConnection)
	}

	c := &Conn{
		ws:        ws,
		opts:      opts,
		sessionID: sessionID,
		pong:      make(chan struct{}, 1),
		readDone:  make(chan struct{}),
		logger:    logger.With().Str("component", "WebSocketSink").Str("url", endpoint).Str("session", sessionID).Logger(),
	}
	ws.SetPongHandler(func(string) error {
		select {
		case c.pong <- struct{}{}:
		default:
		}
		return nil
	})
	go c.readLoop()
	c.logger.Info().Msg("Sink WebSocket opened.")
	return c, nil
}

// readLoop keeps control frames flowing. The sink sends no data messages.
func (c *Conn) readLoop() {
	defer close(c.readDone)
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			c.markBroken(fmt.Sprintf("read failed: %v", err))
			return
		}
	}
}

// SessionID identifies this connection to the sink.
func (c *Conn) SessionID() string { return c.sessionID }

// SetTimeCursor sends a time cursor frame.
func (c *Conn) SetTimeCursor(timeline string, seconds float64) {
	if err := c.send(sink.TimeCursorFrame(timeline, seconds)); err != nil {
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
	return c.send(frame)
}

func (c *Conn) send(frame sink.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.broken.Load() {
		return fmt.Errorf("sink websocket broken: %s: %w", c.reason(), types.ErrForward)
	}
	c.seq++
	frame.Seq = c.seq
	data, err := cbor.Marshal(&frame)
	if err != nil {
		return fmt.Errorf("encode frame %d: %v: %w", frame.Seq, err, types.ErrForward)
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.markBroken(fmt.Sprintf("write failed: %v", err))
		return fmt.Errorf("write frame %d: %v: %w", frame.Seq, err, types.ErrForward)
	}
	return nil
}

func (c *Conn) markBroken(reason string) {
	if c.broken.CompareAndSwap(false, true) {
		c.brokenMsg.Store(reason)
	}
}

func (c *Conn) reason() string {
	if v, ok := c.brokenMsg.Load().(string); ok {
		return v
	}
	return "broken"
}

// Health reports Disconnected after any failed read or write, otherwise sends a ping and
// waits for the pong until ctx is done.
func (c *Conn) Health(ctx context.Context) sink.State {
	if c.broken.Load() {
		return sink.Disconnected(c.reason())
	}
	select {
	case <-c.pong:
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.opts.WriteTimeout)
	}
	if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		c.markBroken(fmt.Sprintf("ping failed: %v", err))
		return sink.Disconnected(c.reason())
	}

	select {
	case <-c.pong:
		return sink.Connected()
	case <-c.readDone:
		return sink.Disconnected(c.reason())
	case <-ctx.Done():
		return sink.Disconnected("no pong before probe deadline")
	}
}

// Close sends a close message and releases the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		sent := c.seq
		c.markBroken("closed")
		c.writeMu.Unlock()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
		<-c.readDone
		c.logger.Info().Uint64("sent", sent).Msg("Sink WebSocket closed.")
	})
	return err
}
