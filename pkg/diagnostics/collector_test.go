package diagnostics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/diagnostics"
	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/illmade-knight/go-vizbridge/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	c := diagnostics.NewCollector("cams")
	c.Received(100)
	c.Received(50)
	c.Forwarded(2)
	c.Forwarded(0)
	c.Skipped(types.ClassUnsupported)
	c.Skipped(types.ClassUnsupported)
	c.Skipped(types.ClassDecode)

	s := c.Snapshot()
	assert.Equal(t, uint64(2), s.Received)
	assert.Equal(t, uint64(150), s.Bytes)
	assert.Equal(t, uint64(2), s.Forwarded)
	assert.Equal(t, uint64(2), s.Skipped[types.ClassUnsupported])
	assert.Equal(t, uint64(3), s.SkippedTotal())
}

func TestCollector_ObserveSequence(t *testing.T) {
	c := diagnostics.NewCollector("cams")

	assert.Equal(t, int64(0), c.ObserveSequence("/a", 10))
	assert.Equal(t, int64(0), c.ObserveSequence("/a", 11))
	assert.Equal(t, int64(3), c.ObserveSequence("/a", 15))
	assert.Equal(t, int64(0), c.ObserveSequence("/b", 1), "paths are tracked separately")
	assert.Equal(t, int64(0), c.ObserveSequence("/a", 2), "a restart resets the sequence")
	assert.Equal(t, int64(0), c.ObserveSequence("/a", 3))

	s := c.Snapshot()
	assert.Equal(t, uint64(1), s.FrameGaps)
	assert.Equal(t, uint64(3), s.FramesMissed)
}

func TestCollector_Prometheus(t *testing.T) {
	c := diagnostics.NewCollector("cams")
	c.Received(10)
	c.Forwarded(1)
	c.Skipped(types.ClassMalformed)
	c.ObserveDuration(2 * time.Millisecond)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP vizbridge_messages_received_total Messages taken off the subscription.
# TYPE vizbridge_messages_received_total counter
vizbridge_messages_received_total{subscription="cams"} 1
# HELP vizbridge_messages_skipped_total Messages skipped because handling failed, by error class.
# TYPE vizbridge_messages_skipped_total counter
vizbridge_messages_skipped_total{class="malformed",subscription="cams"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"vizbridge_messages_received_total", "vizbridge_messages_skipped_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "vizbridge_messages_handle_duration_seconds"))
}

type fakeSupervisor struct {
	stats sink.SupervisorStats
	state sink.State
}

func (f fakeSupervisor) Stats() sink.SupervisorStats { return f.stats }
func (f fakeSupervisor) Snapshot() sink.State        { return f.state }

func TestSupervisorCollector(t *testing.T) {
	c := diagnostics.NewSupervisorCollector(fakeSupervisor{
		stats: sink.SupervisorStats{Checks: 9, ReconnectAttempts: 2, ReconnectFailures: 1},
		state: sink.Disconnected("down"),
	})

	expected := `
# HELP vizbridge_sink_reconnect_attempts_total Reconnect attempts started.
# TYPE vizbridge_sink_reconnect_attempts_total counter
vizbridge_sink_reconnect_attempts_total 2
# HELP vizbridge_sink_status Last observed sink status (0=connected, 1=connecting, 2=disconnected).
# TYPE vizbridge_sink_status gauge
vizbridge_sink_status 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"vizbridge_sink_reconnect_attempts_total", "vizbridge_sink_status"))
}
