package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/types"
	"github.com/rs/zerolog"
)

// SupervisorConfig holds the Supervisor settings.
type SupervisorConfig struct {
	// Target is the sink address every (re)connection dials.
	Target string
	// HealthInterval is the cadence at which the dispatch loops ask for a check.
	HealthInterval time.Duration
	// ProbeTimeout bounds a single health probe. A probe that does not answer in time
	// counts as disconnected.
	ProbeTimeout time.Duration
	// ConnectTimeout bounds a single dial.
	ConnectTimeout time.Duration
}

// NewDefaultSupervisorConfig returns a 2s health interval, 100ms probe timeout and 5s
// connect timeout.
func NewDefaultSupervisorConfig(target string) SupervisorConfig {
	return SupervisorConfig{
		Target:         target,
		HealthInterval: 2 * time.Second,
		ProbeTimeout:   100 * time.Millisecond,
		ConnectTimeout: 5 * time.Second,
	}
}

// SupervisorStats are cumulative counters of the Supervisor's activity.
type SupervisorStats struct {
	Checks            uint64
	ReconnectAttempts uint64
	ReconnectFailures uint64
}

// Supervisor owns the outbound connection. It implements Stream by delegating to the
// current connection, so handlers never hold a handle that a reconnect replaced.
//
// Reconnect attempts run one at a time off the caller's goroutine; while one is in
// flight the stale connection keeps receiving writes and the state is Connecting.
type Supervisor struct {
	cfg    SupervisorConfig
	dial   DialFunc
	logger zerolog.Logger

	mu           sync.RWMutex
	conn         Conn
	state        State
	lastCheck    time.Time
	reconnecting bool
	stats        SupervisorStats
	closed       bool
	wg           sync.WaitGroup

	// cursor is the last timeline cursor set; cursorGen counts updates so a reconnect
	// can tell whether its replay is still current.
	cursor    timeCursor
	cursorGen uint64
}

type timeCursor struct {
	set      bool
	timeline string
	seconds  float64
}

// NewSupervisor dials the initial connection. Failure here is returned to the caller,
// since an unreachable sink at startup is fatal.
func NewSupervisor(ctx context.Context, cfg SupervisorConfig, dial DialFunc, logger zerolog.Logger) (*Supervisor, error) {
	if dial == nil {
		return nil, errors.New("dial function cannot be nil")
	}
	if cfg.Target == "" {
		return nil, errors.New("sink target cannot be empty")
	}
	defaults := NewDefaultSupervisorConfig(cfg.Target)
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaults.HealthInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaults.ProbeTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}

	s := &Supervisor{
		cfg:    cfg,
		dial:   dial,
		logger: logger.With().Str("component", "SinkSupervisor").Str("target", cfg.Target).Logger(),
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	conn, err := dial(dialCtx, cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("initial connect to sink %s: %v: %w", cfg.Target, err, types.ErrConnection)
	}
	s.conn = conn
	s.state = Connected()
	s.logger.Info().Msg("Connected to sink.")
	return s, nil
}

// HealthInterval is the configured check cadence.
func (s *Supervisor) HealthInterval() time.Duration { return s.cfg.HealthInterval }

// Snapshot returns the last observed state without probing.
func (s *Supervisor) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Stats returns a copy of the counters.
func (s *Supervisor) Stats() SupervisorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Supervisor) current() Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// SetTimeCursor delegates to the current connection. The cursor is remembered and
// replayed onto a connection that replaces the current one, so artifacts that follow a
// swap are never written to a stream without their timeline.
func (s *Supervisor) SetTimeCursor(timeline string, seconds float64) {
	s.mu.Lock()
	s.cursor = timeCursor{set: true, timeline: timeline, seconds: seconds}
	s.cursorGen++
	conn := s.conn
	s.mu.Unlock()
	conn.SetTimeCursor(timeline, seconds)
}

// Forward delegates to the current connection. While disconnected the write goes to the
// stale handle and may be lost.
func (s *Supervisor) Forward(ctx context.Context, path string, artifact types.Artifact) error {
	return s.current().Forward(ctx, path, artifact)
}

// CheckIfDue runs Check when at least most of a HealthInterval has passed since the last
// check. It lets several dispatch loops share one Supervisor without multiplying the
// probe rate.
func (s *Supervisor) CheckIfDue(ctx context.Context) State {
	s.mu.RLock()
	due := time.Since(s.lastCheck) >= s.cfg.HealthInterval*9/10
	s.mu.RUnlock()
	if !due {
		return s.Snapshot()
	}
	return s.Check(ctx)
}

// Check probes the current connection, bounded by ProbeTimeout, and starts a reconnect
// when it reports Disconnected. It never blocks for longer than the probe timeout.
func (s *Supervisor) Check(ctx context.Context) State {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Disconnected("supervisor closed")
	}
	s.lastCheck = time.Now()
	s.stats.Checks++
	if s.reconnecting {
		s.mu.Unlock()
		return Connecting()
	}
	conn := s.conn
	s.mu.Unlock()

	state := s.probe(ctx, conn)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn || s.reconnecting || s.closed {
		// Another check swapped the connection or started a reconnect meanwhile.
		return s.state
	}
	if state.Status != StatusDisconnected {
		s.state = state
		return state
	}

	s.logger.Warn().Str("reason", state.Reason).Msg("Sink connection unhealthy, reconnecting.")
	s.state = Connecting()
	s.reconnecting = true
	s.stats.ReconnectAttempts++
	s.wg.Add(1)
	go s.reconnect(state)
	return s.state
}

func (s *Supervisor) probe(ctx context.Context, conn Conn) State {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	result := make(chan State, 1)
	go func() { result <- conn.Health(probeCtx) }()

	select {
	case st := <-result:
		return st
	case <-probeCtx.Done():
		return Disconnected("health probe timed out")
	}
}

func (s *Supervisor) reconnect(cause State) {
	defer s.wg.Done()

	dialCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()
	fresh, err := s.dial(dialCtx, s.cfg.Target)
	if err == nil {
		s.install(fresh)
		return
	}

	s.mu.Lock()
	s.reconnecting = false
	s.stats.ReconnectFailures++
	s.state = Disconnected(fmt.Sprintf("%s; reconnect failed: %v", cause.Reason, err))
	s.mu.Unlock()
	s.logger.Error().Err(err).Msg("Failed to reconnect to sink, keeping stale connection until next check.")
}

// install replays the last cursor onto fresh and then swaps it in. A cursor set during
// the replay is replayed again before the swap.
func (s *Supervisor) install(fresh Conn) {
	var replayed uint64
	for {
		s.mu.RLock()
		cursor, gen := s.cursor, s.cursorGen
		s.mu.RUnlock()
		if cursor.set && gen != replayed {
			fresh.SetTimeCursor(cursor.timeline, cursor.seconds)
			replayed = gen
		}

		s.mu.Lock()
		if s.cursorGen != gen {
			s.mu.Unlock()
			continue
		}
		s.reconnecting = false
		if s.closed {
			s.mu.Unlock()
			_ = fresh.Close()
			return
		}
		stale := s.conn
		s.conn = fresh
		s.state = Connected()
		s.mu.Unlock()

		s.logger.Info().Msg("Reconnected to sink.")
		if err := stale.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Error closing stale sink connection.")
		}
		return
	}
}

// Close waits for an in-flight reconnect and closes the current connection.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	conn := s.conn
	s.state = Disconnected("supervisor closed")
	s.mu.Unlock()
	return conn.Close()
}
