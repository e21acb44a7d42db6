package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/colorconv"
	"github.com/illmade-knight/go-vizbridge/pkg/config"
	"github.com/illmade-knight/go-vizbridge/pkg/handler"
	"github.com/illmade-knight/go-vizbridge/pkg/pixelnorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log_level: debug
log_format: console
http_port: ":9090"
sink:
  address: "viewer:9876"
  transport: websocket
  path: /ingest
  health_interval: 500ms
  probe_timeout: 50ms
  send_timeout: 250ms
subscriptions:
  - name: camera
    source: mqtt
    topic: "edge/dev1/out/make87_messages-image-compressed-ImageJPEG/camera"
    queue_policy: drop_oldest
    queue_size: 8
  - name: relay
    source: pubsub
    topic: "edge/dev1/out/make87_messages-text-PlainText/log"
    subscription_id: vizbridge-relay
mqtt:
  broker_url: "tcp://broker:1883"
  username: bridge
pubsub:
  project_id: demo-project
image:
  mode: compressed
  jpeg_quality: 70
  yuv_range: full
  yuv_matrix: bt601
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vizbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.HTTPPort)
	assert.Equal(t, config.TransportWebSocket, cfg.Sink.Transport)
	assert.Equal(t, 500*time.Millisecond, cfg.Sink.HealthInterval)
	assert.Equal(t, 50*time.Millisecond, cfg.Sink.ProbeTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Sink.SendTimeout)
	// Untouched by the file.
	assert.Equal(t, 5*time.Second, cfg.Sink.ConnectTimeout)
	assert.Equal(t, "vizbridge-", cfg.MQTT.ClientIDPrefix)
	assert.Equal(t, handler.DefaultSchemaPrefix, cfg.Prefix())

	require.Len(t, cfg.Subscriptions, 2)
	assert.Equal(t, "drop_oldest", cfg.Subscriptions[0].QueuePolicy)
	assert.Equal(t, 8, cfg.Subscriptions[0].QueueSize)
	assert.Equal(t, "vizbridge-relay", cfg.Subscriptions[1].SubscriptionID)

	engine := cfg.Engine()
	assert.Equal(t, pixelnorm.ModeCompressed, engine.Mode)
	assert.Equal(t, colorconv.FullRange, engine.Params.Range)
	assert.Equal(t, colorconv.BT601, engine.Params.Matrix)
	assert.Equal(t, 70, engine.JPEGQuality)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv(config.EnvLogLevel, "warn")
	t.Setenv(config.EnvSinkAddress, "other:1234")
	t.Setenv(config.EnvMQTTBrokerURL, "tcp://env-broker:1883")
	t.Setenv(config.EnvImageMode, "tensor")

	cfg, err := config.Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "other:1234", cfg.Sink.Address)
	assert.Equal(t, "tcp://env-broker:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, "tensor", cfg.Image.Mode)
}

func TestLoad_EmptySchemaPrefixIsKept(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "schema_prefix: \"\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Prefix())
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "sink: [not, a, map]\n"))
	assert.Error(t, err)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "loud"
	cfg.Sink.Transport = "carrier-pigeon"
	cfg.Sink.ProbeTimeout = 0
	cfg.Sink.SendTimeout = -time.Second
	cfg.Image.Mode = "hologram"
	cfg.Image.JPEGQuality = 0
	cfg.Subscriptions = []config.Subscription{
		{Name: "a", Source: config.SourceMQTT, Topic: "x/y/z/make87_messages-text-PlainText/t", QueuePolicy: "lifo"},
		{Name: "a", Source: config.SourcePubsub},
		{Source: "kafka", Topic: "t"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"log_level",
		"sink.transport",
		"sink.probe_timeout",
		"sink.send_timeout",
		"image.mode",
		"image.jpeg_quality",
		"subscriptions[0].queue_policy",
		"subscriptions[0]: mqtt.broker_url is required",
		"subscriptions[1]: duplicate name",
		"subscriptions[1].topic is required",
		"subscriptions[1]: pubsub.project_id is required",
		"subscriptions[1].subscription_id is required",
		"subscriptions[2].source",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_RequiresSubscriptions(t *testing.T) {
	err := config.Default().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one subscription")
}
