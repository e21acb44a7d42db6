package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/diagnostics"
	"github.com/illmade-knight/go-vizbridge/pkg/handler"
	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/illmade-knight/go-vizbridge/pkg/types"
	"github.com/rs/zerolog"
)

// DispatchConfig configures one dispatch loop.
type DispatchConfig struct {
	// Name labels logs and metrics.
	Name string
	// Topic is the subscription topic. Messages that arrive without a topic are treated
	// as published on it.
	Topic string
	// LateBinding resolves the handler from every message's own topic instead of once
	// from Topic. It is implied when Topic has a wildcard where the schema type goes.
	LateBinding bool
	// ResolverCacheSize bounds the late-binding topic cache.
	ResolverCacheSize int
}

// DispatchService runs the per-subscription loop: take the next message, hand it to the
// handler, drive the sink supervisor's health cadence. Messages are handled one at a
// time in arrival order. A failing message is logged, counted and skipped.
type DispatchService struct {
	cfg      DispatchConfig
	consumer MessageConsumer
	stream   sink.Stream
	health   HealthChecker
	diag     *diagnostics.Collector
	logger   zerolog.Logger

	fixed      handler.Handler
	schemaType string
	resolver   *handler.CachedResolver

	done chan struct{}
}

// NewDispatchService resolves the subscription's handler. An unroutable topic is
// returned as an ErrRouting error, since there would be nothing to run.
func NewDispatchService(
	cfg DispatchConfig,
	consumer MessageConsumer,
	registry *handler.Registry,
	stream sink.Stream,
	health HealthChecker,
	diag *diagnostics.Collector,
	logger zerolog.Logger,
) (*DispatchService, error) {
	if consumer == nil {
		return nil, errors.New("consumer cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if stream == nil {
		return nil, errors.New("stream cannot be nil")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Topic
	}
	if diag == nil {
		diag = diagnostics.NewCollector(cfg.Name)
	}

	s := &DispatchService{
		cfg:      cfg,
		consumer: consumer,
		stream:   stream,
		health:   health,
		diag:     diag,
		logger:   logger.With().Str("component", "DispatchService").Str("subscription", cfg.Name).Logger(),
		done:     make(chan struct{}),
	}

	if cfg.LateBinding || needsLateBinding(registry, cfg.Topic) {
		size := cfg.ResolverCacheSize
		if size <= 0 {
			size = 256
		}
		resolver, err := handler.NewCachedResolver(registry, size)
		if err != nil {
			return nil, err
		}
		s.resolver = resolver
		s.cfg.LateBinding = true
		s.logger.Info().Str("topic", cfg.Topic).Msg("Handlers will be resolved per message topic.")
		return s, nil
	}

	schemaType, h, err := registry.Route(cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("subscription %s: %w", cfg.Name, err)
	}
	s.fixed, s.schemaType = h, schemaType
	s.logger.Info().Str("topic", cfg.Topic).Str("schema_type", schemaType).Msg("Resolved subscription handler.")
	return s, nil
}

func needsLateBinding(registry *handler.Registry, topic string) bool {
	if schemaType, ok := registry.ExtractSchemaType(topic); ok {
		return handler.IsWildcard(schemaType)
	}
	return handler.IsWildcard(topic)
}

// LateBinding reports whether handlers are resolved per message.
func (s *DispatchService) LateBinding() bool { return s.cfg.LateBinding }

// Diagnostics returns the loop's collector.
func (s *DispatchService) Diagnostics() *diagnostics.Collector { return s.diag }

// Start starts the consumer and the loop. The loop runs until the consumer's channel is
// closed or ctx ends.
func (s *DispatchService) Start(ctx context.Context) error {
	s.logger.Info().Msg("Starting dispatch service...")
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message consumer: %w", err)
	}
	go s.run(ctx)
	return nil
}

// Stop stops the consumer and waits for the loop to drain what was already queued.
func (s *DispatchService) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping dispatch service...")
	if err := s.consumer.Stop(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Error during consumer stop, continuing shutdown.")
	}
	select {
	case <-s.done:
		s.logger.Info().Msg("Dispatch service stopped.")
		return nil
	case <-ctx.Done():
		s.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for dispatch loop to finish.")
		return ctx.Err()
	}
}

// Done is closed when the loop has exited.
func (s *DispatchService) Done() <-chan struct{} { return s.done }

func (s *DispatchService) run(ctx context.Context) {
	defer close(s.done)

	var tick <-chan time.Time
	if s.health != nil {
		ticker := time.NewTicker(s.health.HealthInterval())
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Dispatch loop shutting down due to context cancellation.")
			return
		case <-tick:
			s.checkHealth(ctx)
		case msg, ok := <-s.consumer.Messages():
			if !ok {
				s.logger.Info().Msg("Consumer channel closed, dispatch loop exiting.")
				return
			}
			s.Process(ctx, msg)
			// A busy subscription starves the ticker case; CheckIfDue keeps the cadence.
			s.checkHealth(ctx)
		}
	}
}

func (s *DispatchService) checkHealth(ctx context.Context) {
	if s.health == nil {
		return
	}
	if st := s.health.CheckIfDue(ctx); st.Status != sink.StatusConnected {
		s.logger.Debug().Str("sink_state", st.String()).Msg("Sink not connected.")
	}
}

// Process handles one message. Failures never escape: they are logged by class, counted
// and the message is skipped. Forwarding failures are nacked so a redelivering broker
// may retry; everything else is acked.
func (s *DispatchService) Process(ctx context.Context, msg Message) {
	start := time.Now()
	s.diag.Received(len(msg.Payload))

	topic := msg.Topic
	if topic == "" {
		topic = s.cfg.Topic
	}

	h, schemaType, err := s.handlerFor(ctx, topic)
	var res handler.Result
	if err == nil {
		res, err = safeHandle(ctx, h, msg.Payload, s.stream)
	}
	s.diag.ObserveDuration(time.Since(start))

	if err != nil {
		class := types.Classify(err)
		s.diag.Skipped(class)
		s.logFailure(err, class, msg, topic, schemaType)
		if class == types.ClassForward || class == types.ClassConnection {
			msg.nack()
		} else {
			msg.ack()
		}
		return
	}

	s.diag.Forwarded(res.Forwarded)
	if res.HasHeader {
		if missed := s.diag.ObserveSequence(res.Path, res.ReferenceID); missed > 0 {
			s.logger.Debug().Str("path", res.Path).Int64("reference_id", res.ReferenceID).Int64("missed", missed).Msg("Frame gap detected.")
		}
	}
	msg.ack()
}

func (s *DispatchService) handlerFor(ctx context.Context, topic string) (handler.Handler, string, error) {
	if s.resolver == nil {
		return s.fixed, s.schemaType, nil
	}
	resolved, err := s.resolver.Resolve(ctx, topic)
	if err != nil {
		return nil, "", err
	}
	return resolved.Handler, resolved.SchemaType, nil
}

// safeHandle turns a handler panic into an error so one bad payload cannot stop the loop.
func safeHandle(ctx context.Context, h handler.Handler, payload []byte, stream sink.Stream) (res handler.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, payload, stream)
}

func (s *DispatchService) logFailure(err error, class types.ErrorClass, msg Message, topic, schemaType string) {
	var event *zerolog.Event
	switch class {
	case types.ClassUnsupported:
		event = s.logger.Warn()
	case types.ClassRouting:
		event = s.logger.Debug()
	default:
		event = s.logger.Error()
	}
	event.Err(err).
		Str("class", string(class)).
		Str("topic", topic).
		Str("schema_type", schemaType).
		Str("msg_id", msg.ID).
		Msg("Skipping message.")
}
