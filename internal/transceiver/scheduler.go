package transceiver

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	defaultPushInterval = 300 * time.Second

	// reconnectFloor is the least time between two failed reconnect attempts.
	reconnectFloor = time.Second

	// triggerQueueSize bounds pending on-demand pushes.
	triggerQueueSize = 32
)

// Connection is the broker link the scheduler watches.
type Connection interface {
	IsConnected() bool
	Reconnect(ctx context.Context) error
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Pusher and Connection are required.
	Pusher     *Pusher
	Connection Connection

	// Devices are pushed in this order on every cycle.
	Devices []string

	// Interval is the pause after each cycle. Default: 300s.
	Interval time.Duration

	Logger Logger
}

// Scheduler pushes configuration to the managed devices on a fixed cycle
// and serves on-demand push requests.
//
// While the broker link is down it only tries to reconnect; no pushes are
// made and the interval is not slept. A reconnect attempt that fails
// quickly is followed by a short pause (reconnectFloor, one second) so a
// refusing broker is not hammered in a tight loop. An attempt that took
// longer than the floor is retried immediately.
type Scheduler struct {
	pusher   *Pusher
	conn     Connection
	devices  []string
	interval time.Duration
	logger   Logger

	triggers chan string
	pending  map[string]bool
	pendMu   sync.Mutex

	// Shutdown coordination
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler validates opts and returns a Scheduler. Call Start to run it.
func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Pusher == nil {
		return nil, errors.New("scheduler: pusher is required")
	}
	if opts.Connection == nil {
		return nil, errors.New("scheduler: connection is required")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPushInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Scheduler{
		pusher:   opts.Pusher,
		conn:     opts.Connection,
		devices:  append([]string(nil), opts.Devices...),
		interval: interval,
		logger:   logger,
		triggers: make(chan string, triggerQueueSize),
		pending:  make(map[string]bool),
	}, nil
}

// Devices returns the managed device names in push order.
func (s *Scheduler) Devices() []string {
	return append([]string(nil), s.devices...)
}

// Interval returns the pause between cycles.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start runs the push cycle and the on-demand worker until Stop or until
// ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.serveTriggers(ctx)
	}()
}

// Stop cancels the loops and waits for in-flight pushes to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// Trigger queues an on-demand push for device. A device already waiting
// in the queue is not queued twice. It returns ErrQueueFull when the queue
// has no room.
func (s *Scheduler) Trigger(device string) error {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()

	// Coalesce: one queued push already covers this device.
	if s.pending[device] {
		return nil
	}
	// Never block the MQTT callback that called us.
	select {
	case s.triggers <- device:
		s.pending[device] = true
		return nil
	default:
		return ErrQueueFull
	}
}

// Run is the push cycle. It blocks until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("push cycle started", "devices", s.devices, "interval", s.interval.String())

	for ctx.Err() == nil {
		// Offline: reconnect only, no pushes and no interval sleep.
		if !s.conn.IsConnected() {
			s.reconnect(ctx)
			continue
		}

		s.RunCycle(ctx, TriggerScheduled)

		// The interval is measured from the end of the cycle.

		if !sleepCtx(ctx, s.interval) {
			break
		}
	}

	s.logger.Info("push cycle stopped")
}

// RunCycle pushes every managed device once, in order. Failures are
// logged by the pusher and do not stop the cycle.
func (s *Scheduler) RunCycle(ctx context.Context, trigger Trigger) int {
	ok := 0
	for _, device := range s.devices {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.pusher.PushConfig(ctx, device, trigger); err == nil {
			ok++
		}
	}
	return ok
}

// reconnect makes one attempt. A quick failure is padded to reconnectFloor.
func (s *Scheduler) reconnect(ctx context.Context) {
	start := time.Now()
	err := s.conn.Reconnect(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}

	s.logger.Warn("broker reconnect failed", "error", err)
	if wait := reconnectFloor - time.Since(start); wait > 0 {
		sleepCtx(ctx, wait)
	}
}

// serveTriggers runs queued on-demand pushes one at a time.
func (s *Scheduler) serveTriggers(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case device := <-s.triggers:
			s.pendMu.Lock()
			delete(s.pending, device)
			s.pendMu.Unlock()

			// Errors are logged and recorded by the pusher.
			_, _ = s.pusher.PushConfig(ctx, device, TriggerOnDemand)
		}
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
