package bridge_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/bridge"
	"github.com/illmade-knight/go-vizbridge/pkg/config"
	"github.com/illmade-knight/go-vizbridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-vizbridge/pkg/schema"
	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/illmade-knight/go-vizbridge/pkg/sink/grpcsink"
	"github.com/illmade-knight/go-vizbridge/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const textTopic = "edge/dev1/out/make87_messages-text-PlainText/log"

// fakeSource is a subscription source fed by the test.
type fakeSource struct {
	inbox    *messagepipeline.Inbox
	done     chan struct{}
	stopOnce sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{inbox: messagepipeline.NewInbox(16, messagepipeline.PolicyBlock), done: make(chan struct{})}
}

func (f *fakeSource) Messages() <-chan messagepipeline.Message { return f.inbox.Messages() }
func (f *fakeSource) Start(context.Context) error              { return nil }
func (f *fakeSource) Done() <-chan struct{}                    { return f.done }
func (f *fakeSource) Stop(context.Context) error {
	f.stopOnce.Do(func() {
		f.inbox.Close()
		close(f.done)
	})
	return nil
}

func startSink(t *testing.T) (string, *grpcsink.Receiver) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	receiver := grpcsink.NewReceiver(0, zerolog.Nop())
	srv, _ := grpcsink.NewServer(receiver)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String(), receiver
}

func testConfig(sinkAddr string, subs ...config.Subscription) *config.Config {
	cfg := config.Default()
	cfg.HTTPPort = "127.0.0.1:0"
	cfg.Sink.Address = sinkAddr
	cfg.Sink.HealthInterval = 50 * time.Millisecond
	cfg.Sink.ConnectTimeout = 2 * time.Second
	cfg.Redis.Addr = "localhost:6379"
	cfg.Subscriptions = subs
	return cfg
}

func textPayload(body string) []byte {
	return (&schema.PlainText{
		Header: &schema.Header{Timestamp: &timestamppb.Timestamp{Seconds: 10}, ReferenceID: 1, EntityPath: "logs/main"},
		Body:   body,
	}).Marshal()
}

func scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestBridge_EndToEnd(t *testing.T) {
	addr, receiver := startSink(t)
	source := newFakeSource()
	cfg := testConfig(addr, config.Subscription{Name: "logs", Source: config.SourceRedis, Topic: textTopic})

	b, err := bridge.New(context.Background(), cfg, zerolog.Nop(),
		bridge.WithSourceFactory(func(_ context.Context, sub config.Subscription) (messagepipeline.MessageConsumer, error) {
			assert.Equal(t, "logs", sub.Name)
			return source, nil
		}))
	require.NoError(t, err)
	require.NoError(t, b.Start())

	ok, _ := b.Ready()
	assert.True(t, ok)

	require.True(t, source.inbox.Push(context.Background(), messagepipeline.Message{
		ID: "m1", Topic: textTopic, Payload: textPayload("hello"),
	}))

	require.Eventually(t, func() bool {
		for _, f := range receiver.Frames() {
			if f.Kind == sink.KindText {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	var text sink.Frame
	for _, f := range receiver.Frames() {
		if f.Kind == sink.KindText {
			text = f
		}
	}
	assert.Equal(t, "/logs/main", text.Path)
	assert.Equal(t, types.TextArtifact{Body: "hello"}, text.Artifact())

	metricsURL := "http://127.0.0.1" + b.HTTPPort() + "/metrics"
	require.Eventually(t, func() bool {
		return strings.Contains(scrape(t, metricsURL), `vizbridge_artifacts_forwarded_total{subscription="logs"} 1`)
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, scrape(t, metricsURL), "vizbridge_sink_health_checks_total")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))
	assert.Eventually(t, func() bool { return receiver.Completed() == 1 }, time.Second, 10*time.Millisecond)
}

func TestBridge_UnroutableSubscriptionIsFatal(t *testing.T) {
	addr, _ := startSink(t)
	cfg := testConfig(addr, config.Subscription{Name: "bad", Source: config.SourceRedis, Topic: "edge/dev1/out/make87_messages-unknown-Type/x"})

	_, err := bridge.New(context.Background(), cfg, zerolog.Nop(),
		bridge.WithSourceFactory(func(context.Context, config.Subscription) (messagepipeline.MessageConsumer, error) {
			return newFakeSource(), nil
		}))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRouting)
}

func TestBridge_LateBindingSubscription(t *testing.T) {
	addr, _ := startSink(t)
	cfg := testConfig(addr, config.Subscription{Name: "all", Source: config.SourceRedis, Topic: "edge/+/out/*/x"})

	b, err := bridge.New(context.Background(), cfg, zerolog.Nop(),
		bridge.WithSourceFactory(func(context.Context, config.Subscription) (messagepipeline.MessageConsumer, error) {
			return newFakeSource(), nil
		}))
	require.NoError(t, err)
	require.Len(t, b.Services(), 1)
	assert.True(t, b.Services()[0].LateBinding())
	require.NoError(t, b.Shutdown(context.Background()))
}

func TestBridge_SinkUnreachableIsFatal(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	cfg := testConfig(addr, config.Subscription{Name: "logs", Source: config.SourceRedis, Topic: textTopic})
	cfg.Sink.ConnectTimeout = 200 * time.Millisecond

	_, err = bridge.New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConnection)
}

func TestBridge_InvalidConfig(t *testing.T) {
	_, err := bridge.New(context.Background(), config.Default(), zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
