package messagepipeline_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/illmade-knight/go-vizbridge/pkg/types"
)

// --- MockMessageConsumer ---

// MockMessageConsumer simulates a subscription source. Messages pushed before Stop are
// still delivered after it, the way the real sources drain their inbox.
type MockMessageConsumer struct {
	inbox      *messagepipeline.Inbox
	doneChan   chan struct{}
	stopOnce   sync.Once
	startErr   error
	startMu    sync.Mutex
	startCount int
	stopCount  int
}

func NewMockMessageConsumer(bufferSize int) *MockMessageConsumer {
	return &MockMessageConsumer{
		inbox:    messagepipeline.NewInbox(bufferSize, messagepipeline.PolicyBlock),
		doneChan: make(chan struct{}),
	}
}

func (m *MockMessageConsumer) Messages() <-chan messagepipeline.Message {
	return m.inbox.Messages()
}

func (m *MockMessageConsumer) Start(_ context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	m.startCount++
	return m.startErr
}

func (m *MockMessageConsumer) Stop(_ context.Context) error {
	m.stopOnce.Do(func() {
		m.startMu.Lock()
		m.stopCount++
		m.startMu.Unlock()
		m.inbox.Close()
		close(m.doneChan)
	})
	return nil
}

func (m *MockMessageConsumer) Done() <-chan struct{} { return m.doneChan }

// Push injects a message.
func (m *MockMessageConsumer) Push(msg messagepipeline.Message) {
	m.inbox.Push(context.Background(), msg)
}

func (m *MockMessageConsumer) SetStartError(err error) {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	m.startErr = err
}

func (m *MockMessageConsumer) GetStartCount() int {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	return m.startCount
}

func (m *MockMessageConsumer) GetStopCount() int {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	return m.stopCount
}

// --- Sink fakes ---

type forwarded struct {
	path     string
	artifact types.Artifact
}

// recordingStream captures forwarded artifacts. failPaths makes Forward fail for the
// given destination paths.
type recordingStream struct {
	mu        sync.Mutex
	writes    []forwarded
	cursors   int
	failPaths map[string]bool
}

func (s *recordingStream) SetTimeCursor(string, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors++
}

func (s *recordingStream) Forward(_ context.Context, path string, artifact types.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPaths[path] {
		return types.ErrForward
	}
	s.writes = append(s.writes, forwarded{path: path, artifact: artifact})
	return nil
}

func (s *recordingStream) Writes() []forwarded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]forwarded(nil), s.writes...)
}

// countingHealth records how often the dispatch loop asked for a check.
type countingHealth struct {
	interval time.Duration
	checks   atomic.Int32
}

func (h *countingHealth) CheckIfDue(context.Context) sink.State {
	h.checks.Add(1)
	return sink.Connected()
}

func (h *countingHealth) HealthInterval() time.Duration { return h.interval }

// ackTracker hands out Ack/Nack closures and counts the calls.
type ackTracker struct {
	acks  atomic.Int32
	nacks atomic.Int32
}

func (a *ackTracker) message(id, topic string, payload []byte) messagepipeline.Message {
	return messagepipeline.Message{
		ID:      id,
		Topic:   topic,
		Payload: payload,
		Ack:     func() { a.acks.Add(1) },
		Nack:    func() { a.nacks.Add(1) },
	}
}
