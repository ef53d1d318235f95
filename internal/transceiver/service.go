package transceiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/mqtt"
)

// Transport is the MQTT surface the service runs on.
type Transport interface {
	Publisher
	PublishString(topic, payload string, qos byte, retained bool) error
	Reconnect(ctx context.Context) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Unsubscribe(topic string) error
}

// Backend is the HTTP surface the service runs on.
type Backend interface {
	ReadingBackend
	ConfigSource
	BackendChecker
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Transport and Backend are required.
	Transport Transport
	Backend   Backend

	// Devices are pushed on every cycle, in order.
	Devices []string

	// SensorTopic is the subscription for reading batches.
	// Default: values/sensors/#.
	SensorTopic string

	// QoS for subscriptions and commands.
	QoS byte

	PushInterval   time.Duration
	HealthInterval time.Duration
	Version        string

	Observer Observer
	Logger   Logger
}

// Service owns the identity cache and runs the relay and push duties.
//
// Inbound readings flow Router -> Reconciler -> backend; configuration
// flows Scheduler -> Pusher -> MQTT. The health reporter observes both.
type Service struct {
	transport Transport
	topic     string
	qos       byte
	logger    Logger

	cache      *IdentityCache
	stats      *Stats
	reconciler *Reconciler
	pusher     *Pusher
	scheduler  *Scheduler
	router     *Router
	health     *HealthReporter

	// Lifecycle
	mu      sync.Mutex
	running bool
	// cancel ends in-flight reading batches on Stop.
	cancel context.CancelFunc
}

// NewService builds every component of the transceiver. Call Start to run it.
//
// Parameters:
//   - opts: Transport and Backend are required; everything else has defaults
//
// Returns:
//   - *Service: Wired service, not yet subscribed or scheduling
//   - error: If a required dependency is missing or a component rejects its options
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Transport == nil {
		return nil, errors.New("service: transport is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("service: backend is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	topic := opts.SensorTopic
	if topic == "" {
		topic = mqtt.Topics{}.AllSensorValues()
	}

	s := &Service{
		transport: opts.Transport,
		topic:     topic,
		qos:       opts.QoS,
		logger:    logger,
		cache:     NewIdentityCache(),
		stats:     &Stats{},
	}

	// Components share the cache and counters; order follows the data flow.
	var err error
	s.reconciler, err = NewReconciler(ReconcilerOptions{
		Cache:    s.cache,
		Backend:  opts.Backend,
		Stats:    s.stats,
		Observer: opts.Observer,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	s.pusher, err = NewPusher(PusherOptions{
		Source:    opts.Backend,
		Publisher: opts.Transport,
		QoS:       opts.QoS,
		Stats:     s.stats,
		Observer:  opts.Observer,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	s.scheduler, err = NewScheduler(SchedulerOptions{
		Pusher:     s.pusher,
		Connection: opts.Transport,
		Devices:    opts.Devices,
		Interval:   opts.PushInterval,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	s.router, err = NewRouter(RouterOptions{
		Reconciler: s.reconciler,
		Pushes:     s.scheduler,
		Stats:      s.stats,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	s.health = NewHealthReporter(HealthReporterOptions{
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.Transport,
		Backend:   opts.Backend,
		Cache:     s.cache,
		Stats:     s.stats,
		Devices:   opts.Devices,
		Logger:    logger,
	})

	return s, nil
}

// Start subscribes to the sensor topic and starts the push cycle and the
// health reporter.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("service: already running")
	}

	if err := s.health.PublishStarting(); err != nil {
		s.logger.Debug("starting status not published", "error", err)
	}

	// Every batch, push cycle and report derives from runCtx so Stop can end them.
	runCtx, cancel := context.WithCancel(ctx)
	s.router.setBaseContext(runCtx)

	if err := s.transport.Subscribe(s.topic, s.qos, s.router.HandleMessage); err != nil {
		cancel()
		return fmt.Errorf("subscribing to %s: %w", s.topic, err)
	}

	s.scheduler.Start(runCtx)
	s.health.Start(runCtx)
	s.cancel = cancel
	s.running = true

	s.logger.Info("transceiver started",
		"topic", s.topic,
		"devices", s.scheduler.Devices(),
		"push_interval", s.scheduler.Interval().String(),
	)
	return nil
}

// Stop unsubscribes and waits for the push cycle and reporter to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	if err := s.transport.Unsubscribe(s.topic); err != nil {
		s.logger.Debug("unsubscribe failed", "topic", s.topic, "error", err)
	}
	// No new batch can start now; end the ones in flight.
	s.cancel()
	s.scheduler.Stop()
	s.health.Stop()

	s.logger.Info("transceiver stopped")
}

// PushNow pushes device's configuration synchronously.
func (s *Service) PushNow(ctx context.Context, device string) (PushResult, error) {
	return s.pusher.PushConfig(ctx, device, TriggerAPI)
}

// HandleMessage feeds one inbound message through the router.
func (s *Service) HandleMessage(topic string, payload []byte) error {
	return s.router.HandleMessage(topic, payload)
}

// Health evaluates the current health report.
func (s *Service) Health(ctx context.Context) HealthMessage {
	return s.health.Current(ctx)
}

// Cache returns the identity cache.
func (s *Service) Cache() *IdentityCache { return s.cache }

// Stats returns the service counters.
func (s *Service) Stats() *Stats { return s.stats }

// Devices returns the managed devices in push order.
func (s *Service) Devices() []string { return s.scheduler.Devices() }
