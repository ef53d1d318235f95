package transceiver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/mqtt"
)

const (
	defaultHealthInterval = 30 * time.Second

	// backendProbeTimeout bounds the backend check made for each report.
	backendProbeTimeout = 3 * time.Second

	serviceName = "transceiver"
)

// BackendChecker probes backend reachability.
type BackendChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthReporterOptions configures a HealthReporter.
type HealthReporterOptions struct {
	Version string

	// Interval is how often to publish health status. Default: 30 seconds.
	Interval time.Duration

	// Publisher is required.
	Publisher Publisher

	// Backend is probed on every report when set.
	Backend BackendChecker

	// Cache and Stats feed the report body; fresh ones are used when nil.
	Cache *IdentityCache
	Stats *Stats

	// Devices is listed as managed_devices.
	Devices []string
	Logger  Logger
}

// HealthReporter publishes a retained health message at a fixed interval.
//
// The report is degraded while the broker link is down or the backend does
// not answer its health probe. Each publish replaces the retained message
// on transceiver/health, so a late subscriber always sees the latest state.
//
// Thread Safety: All methods are safe for concurrent use.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	publisher Publisher
	backend   BackendChecker
	cache     *IdentityCache
	stats     *Stats
	devices   []string
	logger    Logger

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter returns a reporter ready to Start.
func NewHealthReporter(opts HealthReporterOptions) *HealthReporter {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	h := &HealthReporter{
		version:   opts.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: opts.Publisher,
		backend:   opts.Backend,
		cache:     opts.Cache,
		stats:     opts.Stats,
		devices:   append([]string(nil), opts.Devices...),
		logger:    opts.Logger,
		done:      make(chan struct{}),
	}
	if h.cache == nil {
		h.cache = NewIdentityCache()
	}
	if h.stats == nil {
		h.stats = &Stats{}
	}
	if h.logger == nil {
		h.logger = nopLogger{}
	}
	return h
}

// Start begins periodic reporting. Call Stop to shut down.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// The final report goes out after the loop so it is the last retained.
		//nolint:errcheck // Best-effort during shutdown
		h.publish(h.build(context.Background(), HealthStopping, "shutting down", false))
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(h.build(context.Background(), HealthStarting, "transceiver starting", false))
}

// PublishNow evaluates and publishes the current health immediately.
func (h *HealthReporter) PublishNow(ctx context.Context) error {
	return h.publish(h.Current(ctx))
}

// Current evaluates the health of the transceiver without publishing it.
func (h *HealthReporter) Current(ctx context.Context) HealthMessage {
	msg := h.build(ctx, "", "", true)

	// MQTT outranks the backend: without the broker nothing flows at all.
	switch {
	case !msg.MQTTConnected:
		msg.Status, msg.Reason = HealthDegraded, "MQTT disconnected"
	case msg.BackendOnline != nil && !*msg.BackendOnline:
		msg.Status, msg.Reason = HealthDegraded, "backend unreachable"
	default:
		msg.Status = HealthHealthy
	}
	return msg
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// Publish immediately on start so the status is available at once.
	if err := h.PublishNow(ctx); err != nil {
		h.logger.Warn("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(ctx); err != nil {
				h.logger.Warn("failed to publish health", "error", err)
			}
		}
	}
}

// build assembles a report. With probe set the backend is checked, which
// may block for up to backendProbeTimeout.
func (h *HealthReporter) build(ctx context.Context, status HealthStatus, reason string, probe bool) HealthMessage {
	msg := HealthMessage{
		Service:        serviceName,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        h.version,
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
		KnownSensors:   h.cache.Len(),
		ManagedDevices: h.devices,
		Statistics:     h.stats.Snapshot(),
		Reason:         reason,
	}
	if h.publisher != nil {
		msg.MQTTConnected = h.publisher.IsConnected()
	}
	if probe && h.backend != nil {
		probeCtx, cancel := context.WithTimeout(ctx, backendProbeTimeout)
		online := h.backend.HealthCheck(probeCtx) == nil
		cancel()
		msg.BackendOnline = &online
	}
	return msg
}

// publish sends msg retained at QoS 1.
func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.publisher == nil {
		return nil
	}
	// Don't queue reports inside paho while offline; the next tick retries.
	if !h.publisher.IsConnected() {
		return ErrTransportUnavailable
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling health: %w", err)
	}
	return h.publisher.Publish(mqtt.Topics{}.Health(), payload, 1, true)
}
