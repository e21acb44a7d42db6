// Package bridge assembles the running service from a config: registry, sink
// supervisor, one dispatch loop per subscription, and the HTTP surface.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-vizbridge/pkg/config"
	"github.com/illmade-knight/go-vizbridge/pkg/diagnostics"
	"github.com/illmade-knight/go-vizbridge/pkg/handler"
	"github.com/illmade-knight/go-vizbridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-vizbridge/pkg/microservice"
	"github.com/illmade-knight/go-vizbridge/pkg/mqttconverter"
	"github.com/illmade-knight/go-vizbridge/pkg/pixelnorm"
	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/illmade-knight/go-vizbridge/pkg/sink/grpcsink"
	"github.com/illmade-knight/go-vizbridge/pkg/sink/wssink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// SourceFactory builds the consumer for one subscription.
type SourceFactory func(ctx context.Context, sub config.Subscription) (messagepipeline.MessageConsumer, error)

// Option customizes a Bridge.
type Option func(*Bridge)

// WithSourceFactory replaces the sources built from the config.
func WithSourceFactory(f SourceFactory) Option {
	return func(b *Bridge) { b.sources = f }
}

// WithDialFunc replaces the sink dialer chosen by sink.transport.
func WithDialFunc(d sink.DialFunc) Option {
	return func(b *Bridge) { b.dial = d }
}

// WithPubsubOptions are passed to the Pub/Sub client, e.g. to reach an emulator.
func WithPubsubOptions(opts ...option.ClientOption) Option {
	return func(b *Bridge) { b.pubsubOpts = append(b.pubsubOpts, opts...) }
}

// Bridge is one configured instance of the service.
type Bridge struct {
	cfg    *config.Config
	base   zerolog.Logger
	logger zerolog.Logger

	sources    SourceFactory
	dial       sink.DialFunc
	pubsubOpts []option.ClientOption

	registry   *handler.Registry
	supervisor *sink.Supervisor
	services   []*messagepipeline.DispatchService
	running    []*messagepipeline.DispatchService
	metrics    *prometheus.Registry
	server     *microservice.BaseServer

	clientsMu    sync.Mutex
	pubsubClient *pubsub.Client
	redisClient  *redis.Client

	runCtx    context.Context
	cancelRun context.CancelFunc
	stopOnce  sync.Once
}

// New validates cfg and builds every component. The initial sink connection and every
// non-late-binding subscription's handler must resolve; either failure is returned and
// nothing is left running.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	b := &Bridge{
		cfg:     cfg,
		base:    logger,
		logger:  logger.With().Str("component", "Bridge").Logger(),
		metrics: prometheus.NewRegistry(),
	}
	b.sources = b.buildSource
	for _, opt := range opts {
		opt(b)
	}
	if b.dial == nil {
		b.dial = dialerFor(cfg.Sink, logger)
	}

	engine := pixelnorm.NewEngine(cfg.Engine())
	b.registry = handler.NewDefaultRegistry(engine, handler.WithSchemaPrefix(cfg.Prefix()))

	supCfg := sink.SupervisorConfig{
		Target:         cfg.Sink.Address,
		HealthInterval: cfg.Sink.HealthInterval,
		ProbeTimeout:   cfg.Sink.ProbeTimeout,
		ConnectTimeout: cfg.Sink.ConnectTimeout,
	}
	supervisor, err := sink.NewSupervisor(ctx, supCfg, b.dial, logger)
	if err != nil {
		b.closeClients()
		return nil, err
	}
	b.supervisor = supervisor

	b.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		diagnostics.NewSupervisorCollector(supervisor),
	)

	for i, sub := range cfg.Subscriptions {
		if sub.Name == "" {
			sub.Name = fmt.Sprintf("subscription-%d", i)
		}
		svc, err := b.buildDispatch(ctx, sub)
		if err != nil {
			b.abort()
			return nil, err
		}
		b.services = append(b.services, svc)
	}

	b.server = microservice.NewBaseServer(logger, cfg.HTTPPort, b.metrics, b.Ready)
	return b, nil
}

func (b *Bridge) buildDispatch(ctx context.Context, sub config.Subscription) (*messagepipeline.DispatchService, error) {
	consumer, err := b.sources(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("subscription %s: failed to build %s source: %w", sub.Name, sub.Source, err)
	}
	diag := diagnostics.NewCollector(sub.Name)
	svc, err := messagepipeline.NewDispatchService(
		messagepipeline.DispatchConfig{Name: sub.Name, Topic: sub.Topic, LateBinding: sub.LateBinding},
		consumer, b.registry, b.supervisor, b.supervisor, diag, b.base,
	)
	if err != nil {
		return nil, err
	}
	if err := b.metrics.Register(diag); err != nil {
		return nil, fmt.Errorf("subscription %s: %w", sub.Name, err)
	}
	return svc, nil
}

func dialerFor(cfg config.SinkConfig, logger zerolog.Logger) sink.DialFunc {
	if cfg.Transport == config.TransportWebSocket {
		return wssink.NewDialer(wssink.Options{Path: cfg.Path}, logger)
	}
	return grpcsink.NewDialer(grpcsink.Options{
		UseHealthService: cfg.UseHealthService,
		SendTimeout:      cfg.SendTimeout,
	}, logger)
}

// buildSource is the default SourceFactory. Redis and Pub/Sub clients are shared by every
// subscription on that source.
func (b *Bridge) buildSource(ctx context.Context, sub config.Subscription) (messagepipeline.MessageConsumer, error) {
	policy, err := messagepipeline.ParseQueuePolicy(sub.QueuePolicy)
	if err != nil {
		return nil, err
	}

	switch sub.Source {
	case config.SourceMQTT:
		m := b.cfg.MQTT
		mqttCfg := mqttconverter.NewDefaultMQTTClientConfig()
		mqttCfg.BrokerURL = m.BrokerURL
		mqttCfg.Topic = sub.Topic
		mqttCfg.Username, mqttCfg.Password = m.Username, m.Password
		mqttCfg.CACertFile, mqttCfg.ClientCertFile, mqttCfg.ClientKeyFile = m.CACertFile, m.ClientCertFile, m.ClientKeyFile
		mqttCfg.InsecureSkipVerify = m.InsecureSkipVerify
		if m.ClientIDPrefix != "" {
			mqttCfg.ClientIDPrefix = m.ClientIDPrefix
		}
		if m.QoS <= 2 {
			mqttCfg.QoS = m.QoS
		}
		if m.KeepAlive > 0 {
			mqttCfg.KeepAlive = m.KeepAlive
		}
		if m.ConnectTimeout > 0 {
			mqttCfg.ConnectTimeout = m.ConnectTimeout
		}
		mqttCfg.QueueSize, mqttCfg.QueuePolicy = sub.QueueSize, policy
		return mqttconverter.NewMqttConsumerFromConfig(mqttCfg, b.base)

	case config.SourceRedis:
		return messagepipeline.NewRedisConsumer(messagepipeline.RedisConsumerConfig{
			Pattern:     sub.Topic,
			QueueSize:   sub.QueueSize,
			QueuePolicy: policy,
		}, b.redis(), b.base)

	case config.SourcePubsub:
		client, err := b.pubsub(ctx)
		if err != nil {
			return nil, err
		}
		psCfg := messagepipeline.NewGooglePubsubConsumerDefaults(sub.SubscriptionID)
		psCfg.ProjectID = b.cfg.Pubsub.ProjectID
		psCfg.TopicAttribute = b.cfg.Pubsub.TopicAttribute
		psCfg.FallbackTopic = sub.Topic
		if b.cfg.Pubsub.MaxOutstanding > 0 {
			psCfg.MaxOutstandingMessages = b.cfg.Pubsub.MaxOutstanding
		}
		psCfg.QueueSize, psCfg.QueuePolicy = sub.QueueSize, policy
		return messagepipeline.NewGooglePubsubConsumer(psCfg, client, b.base)
	}
	return nil, fmt.Errorf("unknown source %q", sub.Source)
}

func (b *Bridge) redis() *redis.Client {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()
	if b.redisClient == nil {
		b.redisClient = redis.NewClient(&redis.Options{
			Addr:     b.cfg.Redis.Addr,
			Password: b.cfg.Redis.Password,
			DB:       b.cfg.Redis.DB,
		})
	}
	return b.redisClient
}

func (b *Bridge) pubsub(ctx context.Context) (*pubsub.Client, error) {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()
	if b.pubsubClient == nil {
		client, err := pubsub.NewClient(ctx, b.cfg.Pubsub.ProjectID, b.pubsubOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		b.pubsubClient = client
	}
	return b.pubsubClient, nil
}

// Registry exposes the handler registry, e.g. for topic diagnostics.
func (b *Bridge) Registry() *handler.Registry { return b.registry }

// Supervisor exposes the sink supervisor.
func (b *Bridge) Supervisor() *sink.Supervisor { return b.supervisor }

// Services returns the dispatch loops in subscription order.
func (b *Bridge) Services() []*messagepipeline.DispatchService { return b.services }

// HTTPPort is the port the HTTP server listens on once started.
func (b *Bridge) HTTPPort() string { return b.server.GetHTTPPort() }

// Ready reports whether the sink connection is usable.
func (b *Bridge) Ready() (bool, string) {
	state := b.supervisor.Snapshot()
	if state.Status != sink.StatusConnected {
		return false, "sink " + state.String()
	}
	return true, ""
}

// Start starts every dispatch loop, then the HTTP server. The loops run on their own
// context so that a shutdown can drain them.
func (b *Bridge) Start() error {
	b.runCtx, b.cancelRun = context.WithCancel(context.Background())
	for i, svc := range b.services {
		if err := svc.Start(b.runCtx); err != nil {
			b.logger.Error().Err(err).Str("subscription", b.cfg.Subscriptions[i].Name).Msg("Failed to start dispatch loop.")
			return errors.Join(err, b.Shutdown(context.Background()))
		}
		b.running = append(b.running, svc)
	}
	if err := b.server.Start(); err != nil {
		return errors.Join(err, b.Shutdown(context.Background()))
	}
	b.logger.Info().Int("subscriptions", len(b.services)).Str("sink", b.cfg.Sink.Address).Msg("Bridge started.")
	return nil
}

// Shutdown stops the sources, waits for the loops to drain within ctx, then closes the
// sink and the bus clients.
func (b *Bridge) Shutdown(ctx context.Context) error {
	var errs []error
	b.stopOnce.Do(func() {
		b.logger.Info().Msg("Shutting down bridge...")
		if b.server != nil {
			if err := b.server.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		for _, svc := range b.running {
			if err := svc.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if b.cancelRun != nil {
			b.cancelRun()
		}
		if err := b.supervisor.Close(); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, b.closeClients())
		b.logger.Info().Msg("Bridge stopped.")
	})
	return errors.Join(errs...)
}

// abort releases what New built before failing.
func (b *Bridge) abort() {
	if b.supervisor != nil {
		_ = b.supervisor.Close()
	}
	_ = b.closeClients()
}

func (b *Bridge) closeClients() error {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()
	var errs []error
	if b.redisClient != nil {
		errs = append(errs, b.redisClient.Close())
		b.redisClient = nil
	}
	if b.pubsubClient != nil {
		errs = append(errs, b.pubsubClient.Close())
		b.pubsubClient = nil
	}
	return errors.Join(errs...)
}
