package mqttconverter

import (
	"os"
	"strconv"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/messagepipeline"
	"github.com/rs/zerolog/log"
)

// MQTTClientConfig holds the Paho client settings and the one topic filter a consumer
// subscribes to.
type MQTTClientConfig struct {
	// BrokerURL is the full URL of the MQTT broker, e.g. "tls://mqtt.example.com:8883".
	BrokerURL string
	// Topic is the subscription filter. It may contain "+" and "#" wildcards.
	Topic string
	// QoS of the subscription. Defaults to 1.
	QoS byte
	// ClientIDPrefix gets a unique suffix per connection; brokers require distinct ids.
	ClientIDPrefix string
	Username       string
	Password       string
	// KeepAlive is the interval at which the client sends keep-alive pings to the broker.
	KeepAlive time.Duration
	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
	// ReconnectWaitMax caps the back-off between reconnect attempts.
	ReconnectWaitMax time.Duration
	// CACertFile is an optional CA certificate for verifying the broker.
	CACertFile string
	// ClientCertFile and ClientKeyFile enable mTLS when both are set.
	ClientCertFile string
	ClientKeyFile  string
	// InsecureSkipVerify skips TLS certificate verification. Not for production.
	InsecureSkipVerify bool
	// QueueSize and QueuePolicy configure the inbox between Paho and the dispatch loop.
	QueueSize   int
	QueuePolicy messagepipeline.QueuePolicy
}

// Env constants for MQTT settings.
const (
	MqttBrokerURL             = "VIZBRIDGE_MQTT_BROKER_URL"
	MqttUsername              = "VIZBRIDGE_MQTT_USERNAME"
	MqttPassword              = "VIZBRIDGE_MQTT_PASSWORD"
	MqttSkipVerify            = "VIZBRIDGE_MQTT_INSECURE_SKIP_VERIFY"
	MqttKeepAliveSeconds      = "VIZBRIDGE_MQTT_KEEP_ALIVE_SECONDS"
	MqttConnectTimeoutSeconds = "VIZBRIDGE_MQTT_CONNECT_TIMEOUT_SECONDS"
)

// NewDefaultMQTTClientConfig returns the defaults used before any file or env override.
func NewDefaultMQTTClientConfig() *MQTTClientConfig {
	return &MQTTClientConfig{
		QoS:              1,
		KeepAlive:        60 * time.Second,
		ConnectTimeout:   10 * time.Second,
		ReconnectWaitMax: 120 * time.Second,
		ClientIDPrefix:   "vizbridge-",
		QueueSize:        messagepipeline.DefaultQueueSize,
	}
}

// LoadMQTTClientConfigFromEnv returns the defaults overridden by the environment.
// Unparseable values keep their default. Topic is not read from the environment.
func LoadMQTTClientConfigFromEnv() *MQTTClientConfig {
	cfg := NewDefaultMQTTClientConfig()
	if v := os.Getenv(MqttBrokerURL); v != "" {
		cfg.BrokerURL = v
	}
	if v := os.Getenv(MqttUsername); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv(MqttPassword); v != "" {
		cfg.Password = v
	}
	if os.Getenv(MqttSkipVerify) == "true" {
		cfg.InsecureSkipVerify = true
	}
	if d, ok := envSeconds(MqttKeepAliveSeconds); ok {
		cfg.KeepAlive = d
	}
	if d, ok := envSeconds(MqttConnectTimeoutSeconds); ok {
		cfg.ConnectTimeout = d
	}
	return cfg
}

func envSeconds(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn().Str("env", key).Str("value", v).Msg("mqttconverter: invalid seconds value, using default")
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
