package mqttconverter_test

import (
	"context"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/illmade-knight/go-vizbridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-vizbridge/pkg/mqttconverter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks for Paho MQTT Client ---
type mockToken struct{ err error }

func (m *mockToken) Wait() bool                       { return true }
func (m *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (m *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (m *mockToken) Error() error { return m.err }

type mockMqttMessage struct {
	topic     string
	payload   []byte
	messageID uint16
}

func (m *mockMqttMessage) Topic() string     { return m.topic }
func (m *mockMqttMessage) Payload() []byte   { return m.payload }
func (m *mockMqttMessage) MessageID() uint16 { return m.messageID }
func (m *mockMqttMessage) Duplicate() bool   { return false }
func (m *mockMqttMessage) Qos() byte         { return 1 }
func (m *mockMqttMessage) Retained() bool    { return false }
func (m *mockMqttMessage) Ack()              {}

type mockMqttClient struct {
	isConnected      bool
	disconnectCalled bool
	subscribedTopic  string
	messageHandler   mqtt.MessageHandler
}

func (m *mockMqttClient) IsConnected() bool      { return m.isConnected }
func (m *mockMqttClient) IsConnectionOpen() bool { return m.isConnected }
func (m *mockMqttClient) Connect() mqtt.Token {
	m.isConnected = true
	return &mockToken{}
}
func (m *mockMqttClient) Disconnect(quiesce uint) {
	m.isConnected = false
	m.disconnectCalled = true
}
func (m *mockMqttClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.subscribedTopic = topic
	m.messageHandler = callback
	return &mockToken{}
}
func (m *mockMqttClient) Unsubscribe(topics ...string) mqtt.Token { return &mockToken{} }

// Add stubs for unused methods to satisfy the interface
func (m *mockMqttClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return &mockToken{}
}
func (m *mockMqttClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return &mockToken{}
}
func (m *mockMqttClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (m *mockMqttClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// --- Test Cases ---

const testTopic = "site/robot/pub/make87_messages-text-PlainText/notes"

func newTestConsumer(t *testing.T, cfg *mqttconverter.MQTTClientConfig) (*mqttconverter.MqttConsumer, *mockMqttClient) {
	t.Helper()
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.Topic == "" {
		cfg.Topic = testTopic
	}
	mockClient := &mockMqttClient{}
	consumer, err := mqttconverter.NewMqttConsumer(mockClient, cfg, zerolog.Nop())
	require.NoError(t, err)
	return consumer, mockClient
}

func TestMqttConsumer_StartAndReceive(t *testing.T) {
	// Arrange
	consumer, mockClient := newTestConsumer(t, &mqttconverter.MQTTClientConfig{QoS: 1, ConnectTimeout: 2 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// Act
	require.NoError(t, consumer.Start(ctx))

	// Assert that Start() subscribed to the configured filter.
	assert.Equal(t, testTopic, mockClient.subscribedTopic)
	require.NotNil(t, mockClient.messageHandler)

	// Simulate the client receiving a message by calling the handler.
	expectedPayload := []byte("hello world")
	mockClient.messageHandler(mockClient, &mockMqttMessage{
		topic:     testTopic,
		payload:   expectedPayload,
		messageID: 123,
	})

	select {
	case receivedMsg := <-consumer.Messages():
		assert.Equal(t, expectedPayload, receivedMsg.Payload)
		assert.Equal(t, "123", receivedMsg.ID)
		assert.Equal(t, testTopic, receivedMsg.Topic)
		assert.Equal(t, testTopic, receivedMsg.Attributes[mqttconverter.TopicAttribute])
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for message from consumer")
	}
}

func TestMqttConsumer_PreservesOrder(t *testing.T) {
	consumer, mockClient := newTestConsumer(t, &mqttconverter.MQTTClientConfig{QueueSize: 10})
	require.NoError(t, consumer.Start(context.Background()))
	t.Cleanup(func() { _ = consumer.Stop(context.Background()) })

	for i := uint16(1); i <= 5; i++ {
		mockClient.messageHandler(mockClient, &mockMqttMessage{topic: testTopic, payload: []byte{byte(i)}, messageID: i})
	}
	for i := 1; i <= 5; i++ {
		msg := <-consumer.Messages()
		assert.Equal(t, []byte{byte(i)}, msg.Payload)
	}
}

func TestMqttConsumer_DropOldestPolicy(t *testing.T) {
	consumer, mockClient := newTestConsumer(t, &mqttconverter.MQTTClientConfig{
		QueueSize:   2,
		QueuePolicy: messagepipeline.PolicyDropOldest,
	})
	require.NoError(t, consumer.Start(context.Background()))

	for i := uint16(1); i <= 4; i++ {
		mockClient.messageHandler(mockClient, &mockMqttMessage{topic: testTopic, payload: []byte{byte(i)}, messageID: i})
	}
	assert.Equal(t, uint64(2), consumer.Dropped())

	require.NoError(t, consumer.Stop(context.Background()))
	var got []byte
	for msg := range consumer.Messages() {
		got = append(got, msg.Payload...)
	}
	assert.Equal(t, []byte{3, 4}, got)
}

func TestToMessage_QoS0GetsGeneratedID(t *testing.T) {
	payload := []byte{1, 2, 3}
	msg := mqttconverter.ToMessage(&mockMqttMessage{topic: "a/b", payload: payload}, time.Now())
	assert.NotEmpty(t, msg.ID)
	assert.NotEqual(t, "0", msg.ID)

	payload[0] = 9
	assert.Equal(t, byte(1), msg.Payload[0], "payload is copied")
}

func TestNewMqttConsumer_Validation(t *testing.T) {
	_, err := mqttconverter.NewMqttConsumer(&mockMqttClient{}, &mqttconverter.MQTTClientConfig{Topic: "a/#"}, zerolog.Nop())
	assert.Error(t, err, "broker URL is required")
	_, err = mqttconverter.NewMqttConsumer(&mockMqttClient{}, &mqttconverter.MQTTClientConfig{BrokerURL: "tcp://x:1883"}, zerolog.Nop())
	assert.Error(t, err, "topic is required")
	_, err = mqttconverter.NewMqttConsumer(nil, &mqttconverter.MQTTClientConfig{BrokerURL: "tcp://x:1883", Topic: "a/#"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewMqttConsumerFromConfig(t *testing.T) {
	cfg := mqttconverter.NewDefaultMQTTClientConfig()
	cfg.BrokerURL = "tcp://localhost:1883"
	cfg.Topic = "a/b/c/+/#"
	consumer, err := mqttconverter.NewMqttConsumerFromConfig(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, consumer.IsConnected())
}

func TestMqttConsumer_Stop(t *testing.T) {
	// Arrange
	consumer, mockClient := newTestConsumer(t, &mqttconverter.MQTTClientConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, consumer.Start(ctx))

	// Act
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(stopCancel)
	require.NoError(t, consumer.Stop(stopCtx))

	// Assert
	assert.True(t, mockClient.disconnectCalled, "Disconnect should have been called on the client")
	select {
	case <-consumer.Done():
	default:
		t.Fatal("Done() channel should be closed after Stop()")
	}
	_, ok := <-consumer.Messages()
	assert.False(t, ok)
}
