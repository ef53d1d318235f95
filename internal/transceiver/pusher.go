package transceiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConfigSource supplies device configuration.
type ConfigSource interface {
	FetchDeviceConfig(ctx context.Context, device string) ([]DeviceConfigItem, error)
}

// Publisher sends JSON messages over MQTT, such as the health report.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// CommandPublisher sends device commands. Commands are plain text.
type CommandPublisher interface {
	PublishString(topic, payload string, qos byte, retained bool) error
	IsConnected() bool
}

// PusherOptions configures a Pusher.
type PusherOptions struct {
	// Source and Publisher are required.
	Source    ConfigSource
	Publisher CommandPublisher

	// QoS for command messages.
	QoS byte

	Stats    *Stats
	Observer Observer
	Logger   Logger
}

// PushResult summarises one PushConfig call.
type PushResult struct {
	RunID     string `json:"run_id"`
	Device    string `json:"device"`
	Items     int    `json:"items"`
	Published int    `json:"published"`
}

// Pusher fetches a device's configuration and publishes it as commands.
//
// Pushes for the same device never overlap; pushes for different devices
// run independently.
type Pusher struct {
	source    ConfigSource
	publisher CommandPublisher
	qos       byte
	stats     *Stats
	observer  Observer
	logger    Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewPusher validates opts and returns a Pusher.
func NewPusher(opts PusherOptions) (*Pusher, error) {
	if opts.Source == nil {
		return nil, errors.New("pusher: config source is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("pusher: publisher is required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("pusher: invalid QoS %d", opts.QoS)
	}

	p := &Pusher{
		source:    opts.Source,
		publisher: opts.Publisher,
		qos:       opts.QoS,
		stats:     opts.Stats,
		observer:  opts.Observer,
		logger:    opts.Logger,
		locks:     make(map[string]*sync.Mutex),
	}
	if p.stats == nil {
		p.stats = &Stats{}
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	if p.logger == nil {
		p.logger = nopLogger{}
	}
	return p, nil
}

// PushConfig fetches device's configuration and publishes one command per
// item, in the order the backend returned them.
//
// A failed fetch abandons the push; nothing is published. A failed publish
// stops the push at that item. An empty configuration is a successful push
// of zero commands.
func (p *Pusher) PushConfig(ctx context.Context, device string, trigger Trigger) (PushResult, error) {
	// One push per device at a time; other devices are not blocked.
	lock := p.deviceLock(device)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	result := PushResult{RunID: uuid.NewString(), Device: device}

	// Reserved for a future self-update; today it is just another device.
	if device == ReservedSelfDevice {
		p.logger.Info("self-update requested; pushing as an ordinary device", "device", device)
	}

	err := p.push(ctx, device, &result)

	// Record and notify for both outcomes
	p.stats.recordPush(err, result.Published, start)
	p.observer.ConfigPushed(PushEvent{
		RunID:     result.RunID,
		Device:    device,
		Trigger:   trigger,
		Items:     result.Items,
		Published: result.Published,
		Err:       err,
		Duration:  time.Since(start),
		Timestamp: start.UTC(),
	})

	if err != nil {
		p.logger.Warn("config push abandoned",
			"device", device,
			"trigger", string(trigger),
			"run_id", result.RunID,
			"published", result.Published,
			"items", result.Items,
			"error", err,
		)
		return result, err
	}

	p.logger.Info("config pushed",
		"device", device,
		"trigger", string(trigger),
		"run_id", result.RunID,
		"commands", result.Published,
	)
	return result, nil
}

// push fetches the configuration and publishes it item by item, filling
// result as it goes so a partial push is still reported accurately.
func (p *Pusher) push(ctx context.Context, device string, result *PushResult) error {
	items, err := p.source.FetchDeviceConfig(ctx, device)
	if err != nil {
		return fmt.Errorf("fetching config for %s: %w", device, err)
	}
	result.Items = len(items)

	for _, item := range items {
		cmd := Encode(device, item)
		if err := p.publisher.PublishString(cmd.Topic, cmd.Payload, p.qos, false); err != nil {
			// A dropped link is reported as such so callers can map it to 503.
			if !p.publisher.IsConnected() {
				return fmt.Errorf("%w: publishing %s: %w", ErrTransportUnavailable, item.Name, err)
			}
			return fmt.Errorf("publishing %s: %w", item.Name, err)
		}
		result.Published++
		p.logger.Debug("command published", "topic", cmd.Topic, "payload", cmd.Payload)
	}
	return nil
}

// deviceLock returns the mutex for device, creating it on first use.
// Locks are never removed.
func (p *Pusher) deviceLock(device string) *sync.Mutex {
	p.locksMu.Lock()
	defer p.locksMu.Unlock()

	l, ok := p.locks[device]
	if !ok {
		l = &sync.Mutex{}
		p.locks[device] = l
	}
	return l
}
