package mqttconverter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-vizbridge/pkg/messagepipeline"
	"github.com/rs/zerolog"
)

// TopicAttribute is the message attribute holding the MQTT topic.
const TopicAttribute = "mqtt_topic"

// MqttConsumer implements messagepipeline.MessageConsumer for an MQTT topic filter.
type MqttConsumer struct {
	pahoClient mqtt.Client
	logger     zerolog.Logger
	inbox      *messagepipeline.Inbox
	doneChan   chan struct{}
	mqttCfg    *MQTTClientConfig
	stopOnce   sync.Once

	mu      sync.Mutex
	ctx     context.Context
	started bool
}

// NewMqttConsumer wraps an existing client. The consumer subscribes in Start; use
// NewMqttConsumerFromConfig to also resubscribe after every reconnect.
func NewMqttConsumer(client mqtt.Client, cfg *MQTTClientConfig, logger zerolog.Logger) (*MqttConsumer, error) {
	if client == nil {
		return nil, errors.New("MQTT client cannot be nil")
	}
	if cfg.BrokerURL == "" {
		return nil, errors.New("MQTT broker URL is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("MQTT topic is required")
	}
	return &MqttConsumer{
		pahoClient: client,
		logger:     logger.With().Str("component", "MqttConsumer").Str("topic", cfg.Topic).Logger(),
		inbox:      messagepipeline.NewInbox(cfg.QueueSize, cfg.QueuePolicy),
		doneChan:   make(chan struct{}),
		mqttCfg:    cfg,
		ctx:        context.Background(),
	}, nil
}

// NewMqttConsumerFromConfig builds the Paho client from cfg.
func NewMqttConsumerFromConfig(cfg *MQTTClientConfig, logger zerolog.Logger) (*MqttConsumer, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("MQTT broker URL is required")
	}
	var c *MqttConsumer
	opts := createMqttOptions(cfg, logger, func(client mqtt.Client) {
		// Resubscribe after a reconnect; the first subscription is made by Start.
		if c != nil && c.isStarted() {
			c.subscribe(client)
		}
	})
	consumer, err := NewMqttConsumer(mqtt.NewClient(opts), cfg, logger)
	if err != nil {
		return nil, err
	}
	c = consumer
	return c, nil
}

func (c *MqttConsumer) Messages() <-chan messagepipeline.Message { return c.inbox.Messages() }

// Dropped counts messages discarded by the inbox policy.
func (c *MqttConsumer) Dropped() uint64 { return c.inbox.Dropped() }

// Start connects when needed and subscribes. A failed initial connection is logged; Paho
// keeps retrying in the background.
func (c *MqttConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.started = true
	c.mu.Unlock()

	if !c.pahoClient.IsConnected() {
		c.logger.Info().Str("broker", c.mqttCfg.BrokerURL).Msg("Attempting to connect to MQTT broker...")
		token := c.pahoClient.Connect()
		if !token.WaitTimeout(c.mqttCfg.ConnectTimeout) {
			c.logger.Warn().Msg("MQTT connect still pending; the Paho client will keep retrying.")
		} else if err := token.Error(); err != nil {
			c.logger.Error().Err(err).Msg("Failed to connect to MQTT broker on startup. The Paho client will continue to retry in the background.")
		}
	}
	if c.pahoClient.IsConnected() {
		c.subscribe(c.pahoClient)
	}

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

func (c *MqttConsumer) isStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *MqttConsumer) subscribe(client mqtt.Client) {
	qos := c.mqttCfg.QoS
	token := client.Subscribe(c.mqttCfg.Topic, qos, c.handleIncomingMessage())
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		c.logger.Error().Err(token.Error()).Msg("Failed to subscribe to MQTT topic.")
		return
	}
	c.logger.Info().Uint8("qos", qos).Msg("Subscribed to MQTT topic.")
}

// Stop unsubscribes, disconnects and closes the inbox. Queued messages stay readable.
func (c *MqttConsumer) Stop(_ context.Context) error {
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping MqttConsumer...")
		if c.pahoClient.IsConnected() {
			if token := c.pahoClient.Unsubscribe(c.mqttCfg.Topic); token.WaitTimeout(2*time.Second) && token.Error() != nil {
				c.logger.Warn().Err(token.Error()).Msg("Failed to unsubscribe from MQTT topic.")
			}
			c.pahoClient.Disconnect(500)
		}
		c.inbox.Close()
		close(c.doneChan)
		c.logger.Info().Msg("MqttConsumer stopped.")
	})
	return nil
}

func (c *MqttConsumer) Done() <-chan struct{} { return c.doneChan }

// IsConnected reports the state of the underlying Paho client.
func (c *MqttConsumer) IsConnected() bool { return c.pahoClient.IsConnected() }

func (c *MqttConsumer) handleIncomingMessage() mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		c.mu.Lock()
		ctx := c.ctx
		c.mu.Unlock()
		if !c.inbox.Push(ctx, ToMessage(msg, time.Now().UTC())) {
			c.logger.Warn().Str("mqtt_topic", msg.Topic()).Msg("Consumer is shutting down, dropping MQTT message.")
		}
	}
}

// ToMessage converts a Paho delivery. QoS 0 deliveries carry no packet id and get a
// generated one. Acknowledgment happens in the protocol, so Ack and Nack are unset.
func ToMessage(msg mqtt.Message, receivedAt time.Time) messagepipeline.Message {
	id := strconv.Itoa(int(msg.MessageID()))
	if msg.MessageID() == 0 {
		id = uuid.NewString()
	}
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())
	return messagepipeline.Message{
		ID:         id,
		Topic:      msg.Topic(),
		Payload:    payload,
		ReceivedAt: receivedAt,
		Attributes: map[string]string{TopicAttribute: msg.Topic()},
	}
}

// createMqttOptions assembles the Paho client options from the config.
func createMqttOptions(cfg *MQTTClientConfig, logger zerolog.Logger, onConnect func(mqtt.Client)) *mqtt.ClientOptions {
	log := logger.With().Str("component", "MqttClient").Str("broker", cfg.BrokerURL).Logger()
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientIDPrefix + uuid.NewString()[:8])
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.ReconnectWaitMax)
	// Handlers run in delivery order, so a subscription's messages reach the inbox in order.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("Paho client connected to MQTT broker.")
		if onConnect != nil {
			onConnect(client)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Error().Err(err).Msg("Paho client lost MQTT connection.")
	})

	if strings.HasPrefix(strings.ToLower(cfg.BrokerURL), "tls://") || strings.HasPrefix(strings.ToLower(cfg.BrokerURL), "ssl://") {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create TLS config, proceeding without it.")
		} else {
			opts.SetTLSConfig(tlsConfig)
		}
	}
	return opts
}

// newTLSConfig is a helper to create a tls.Config.
func newTLSConfig(cfg *MQTTClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert file %s: %w", cfg.CACertFile, err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA cert from %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = caCertPool
	}
	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
