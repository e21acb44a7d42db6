// Package config loads the bridge configuration: defaults, then a YAML file, then
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/colorconv"
	"github.com/illmade-knight/go-vizbridge/pkg/handler"
	"github.com/illmade-knight/go-vizbridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-vizbridge/pkg/pixelnorm"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvLogLevel        = "VIZBRIDGE_LOG_LEVEL"
	EnvHTTPPort        = "VIZBRIDGE_HTTP_PORT"
	EnvSinkAddress     = "VIZBRIDGE_SINK_ADDRESS"
	EnvMQTTBrokerURL   = "VIZBRIDGE_MQTT_BROKER_URL"
	EnvRedisAddr       = "VIZBRIDGE_REDIS_ADDR"
	EnvPubsubProjectID = "VIZBRIDGE_PUBSUB_PROJECT_ID"
	EnvImageMode       = "VIZBRIDGE_IMAGE_MODE"
)

// Sink transports.
const (
	TransportGRPC      = "grpc"
	TransportWebSocket = "websocket"
)

// Subscription sources.
const (
	SourceMQTT   = "mqtt"
	SourceRedis  = "redis"
	SourcePubsub = "pubsub"
)

// Config is the root of the bridge configuration.
type Config struct {
	LogLevel      string         `yaml:"log_level"`
	LogFormat     string         `yaml:"log_format"`
	HTTPPort      string         `yaml:"http_port"`
	SchemaPrefix  *string        `yaml:"schema_prefix"`
	Sink          SinkConfig     `yaml:"sink"`
	Subscriptions []Subscription `yaml:"subscriptions"`
	MQTT          MQTTConfig     `yaml:"mqtt"`
	Redis         RedisConfig    `yaml:"redis"`
	Pubsub        PubsubConfig   `yaml:"pubsub"`
	Image         ImageConfig    `yaml:"image"`
}

type SinkConfig struct {
	Address          string        `yaml:"address"`
	Transport        string        `yaml:"transport"`
	Path             string        `yaml:"path"`
	HealthInterval   time.Duration `yaml:"health_interval"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	SendTimeout      time.Duration `yaml:"send_timeout"`
	UseHealthService bool          `yaml:"use_health_service"`
}

// Subscription is one bus topic and the dispatch loop that serves it.
type Subscription struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Topic  string `yaml:"topic"`
	// SubscriptionID is the Pub/Sub subscription for the pubsub source.
	SubscriptionID string `yaml:"subscription_id"`
	QueuePolicy    string `yaml:"queue_policy"`
	QueueSize      int    `yaml:"queue_size"`
	LateBinding    bool   `yaml:"late_binding"`
}

type MQTTConfig struct {
	BrokerURL          string        `yaml:"broker_url"`
	ClientIDPrefix     string        `yaml:"client_id_prefix"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	QoS                byte          `yaml:"qos"`
	KeepAlive          time.Duration `yaml:"keep_alive"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	CACertFile         string        `yaml:"ca_cert_file"`
	ClientCertFile     string        `yaml:"client_cert_file"`
	ClientKeyFile      string        `yaml:"client_key_file"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PubsubConfig struct {
	ProjectID      string `yaml:"project_id"`
	TopicAttribute string `yaml:"topic_attribute"`
	MaxOutstanding int    `yaml:"max_outstanding"`
}

type ImageConfig struct {
	Mode        string `yaml:"mode"`
	JPEGQuality int    `yaml:"jpeg_quality"`
	YUVRange    string `yaml:"yuv_range"`
	YUVMatrix   string `yaml:"yuv_matrix"`
}

// Default returns the configuration used before any file or environment is applied.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		HTTPPort:  ":8080",
		Sink: SinkConfig{
			Address:        "localhost:9876",
			Transport:      TransportGRPC,
			HealthInterval: 2 * time.Second,
			ProbeTimeout:   100 * time.Millisecond,
			ConnectTimeout: 5 * time.Second,
			SendTimeout:    2 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientIDPrefix: "vizbridge-",
			QoS:            1,
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
		},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Pubsub: PubsubConfig{TopicAttribute: messagepipeline.DefaultTopicAttribute, MaxOutstanding: 100},
		Image: ImageConfig{
			Mode:        pixelnorm.ModeTensor.String(),
			JPEGQuality: 85,
			YUVRange:    colorconv.LimitedRange.String(),
			YUVMatrix:   colorconv.BT709.String(),
		},
	}
}

// Load reads path over the defaults and applies the environment. An empty path skips the
// file. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. Empty variables are ignored.
func (c *Config) ApplyEnv() {
	override := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(EnvLogLevel, &c.LogLevel)
	override(EnvHTTPPort, &c.HTTPPort)
	override(EnvSinkAddress, &c.Sink.Address)
	override(EnvMQTTBrokerURL, &c.MQTT.BrokerURL)
	override(EnvRedisAddr, &c.Redis.Addr)
	override(EnvPubsubProjectID, &c.Pubsub.ProjectID)
	override(EnvImageMode, &c.Image.Mode)
}

// Prefix returns the schema segment prefix, the default when unset. An explicit empty
// string in the file is kept.
func (c *Config) Prefix() string {
	if c.SchemaPrefix == nil {
		return handler.DefaultSchemaPrefix
	}
	return *c.SchemaPrefix
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		add("log_level: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		add("log_format: unknown format %q", c.LogFormat)
	}
	if c.HTTPPort == "" {
		add("http_port is required")
	}

	if c.Sink.Address == "" {
		add("sink.address is required")
	}
	switch c.Sink.Transport {
	case TransportGRPC, TransportWebSocket:
	default:
		add("sink.transport: unknown transport %q", c.Sink.Transport)
	}
	if c.Sink.HealthInterval <= 0 {
		add("sink.health_interval must be positive")
	}
	if c.Sink.ProbeTimeout <= 0 {
		add("sink.probe_timeout must be positive")
	}
	if c.Sink.ConnectTimeout <= 0 {
		add("sink.connect_timeout must be positive")
	}
	if c.Sink.SendTimeout <= 0 {
		add("sink.send_timeout must be positive")
	}

	if _, err := pixelnorm.ParseMode(c.Image.Mode); err != nil {
		add("image.mode: %w", err)
	}
	if _, err := colorconv.ParseRange(c.Image.YUVRange); err != nil {
		add("image.yuv_range: %w", err)
	}
	if _, err := colorconv.ParseMatrix(c.Image.YUVMatrix); err != nil {
		add("image.yuv_matrix: %w", err)
	}
	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		add("image.jpeg_quality must be within 1..100, got %d", c.Image.JPEGQuality)
	}

	if len(c.Subscriptions) == 0 {
		add("at least one subscription is required")
	}
	names := make(map[string]bool)
	for i, sub := range c.Subscriptions {
		field := fmt.Sprintf("subscriptions[%d]", i)
		if sub.Name != "" {
			if names[sub.Name] {
				add("%s: duplicate name %q", field, sub.Name)
			}
			names[sub.Name] = true
		}
		if sub.Topic == "" {
			add("%s.topic is required", field)
		}
		if _, err := messagepipeline.ParseQueuePolicy(sub.QueuePolicy); err != nil {
			add("%s.queue_policy: %w", field, err)
		}
		if sub.QueueSize < 0 {
			add("%s.queue_size cannot be negative", field)
		}
		switch sub.Source {
		case SourceMQTT:
			if c.MQTT.BrokerURL == "" {
				add("%s: mqtt.broker_url is required for the mqtt source", field)
			}
		case SourceRedis:
			if c.Redis.Addr == "" {
				add("%s: redis.addr is required for the redis source", field)
			}
		case SourcePubsub:
			if c.Pubsub.ProjectID == "" {
				add("%s: pubsub.project_id is required for the pubsub source", field)
			}
			if sub.SubscriptionID == "" {
				add("%s.subscription_id is required for the pubsub source", field)
			}
		default:
			add("%s.source: unknown source %q", field, sub.Source)
		}
	}
	return errors.Join(errs...)
}

// Engine returns the pixel normalization settings. Call after Validate.
func (c *Config) Engine() pixelnorm.Config {
	cfg := pixelnorm.NewDefaultConfig()
	if mode, err := pixelnorm.ParseMode(c.Image.Mode); err == nil {
		cfg.Mode = mode
	}
	if r, err := colorconv.ParseRange(c.Image.YUVRange); err == nil {
		cfg.Params.Range = r
	}
	if m, err := colorconv.ParseMatrix(c.Image.YUVMatrix); err == nil {
		cfg.Params.Matrix = m
	}
	cfg.JPEGQuality = c.Image.JPEGQuality
	return cfg
}
