package wssink

import (
	"net/http"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/rs/zerolog"
)

// Receiver is an http.Handler accepting sink WebSockets and recording their frames.
type Receiver struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	// OnFrame, when set, is called for every decoded frame.
	OnFrame func(session string, frame sink.Frame)

	mu       sync.Mutex
	keep     int
	frames   []sink.Frame
	sessions []string
	conns    map[*websocket.Conn]struct{}
}

// NewReceiver keeps the last keep frames; keep <= 0 keeps them all.
func NewReceiver(keep int, logger zerolog.Logger) *Receiver {
	return &Receiver{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		keep:   keep,
		conns:  make(map[*websocket.Conn]struct{}),
		logger: logger.With().Str("component", "WebSocketSinkReceiver").Logger(),
	}
}

func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn().Err(err).Msg("WebSocket upgrade failed.")
		return
	}
	session := req.Header.Get(SessionHeader)
	if session == "" {
		session = "unknown"
	}
	r.mu.Lock()
	r.conns[ws] = struct{}{}
	r.sessions = append(r.sessions, session)
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.conns, ws)
		r.mu.Unlock()
		_ = ws.Close()
	}()

	log := r.logger.With().Str("session", session).Logger()
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Msg("Sink session finished.")
			} else {
				log.Warn().Err(err).Msg("Sink session ended abnormally.")
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		var frame sink.Frame
		if err := cbor.Unmarshal(data, &frame); err != nil {
			log.Warn().Err(err).Msg("Dropping undecodable frame.")
			continue
		}
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

// CloseAll drops every open session.
func (r *Receiver) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ws := range r.conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "receiver shutting down")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = ws.Close()
	}
}
