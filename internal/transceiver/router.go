package transceiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// defaultBatchTimeout bounds the reconciliation of one inbound message.
const defaultBatchTimeout = 2 * time.Minute

// PushTrigger queues an on-demand configuration push.
type PushTrigger interface {
	Trigger(device string) error
}

// RouterOptions configures a Router.
type RouterOptions struct {
	// Reconciler and Pushes are required.
	Reconciler *Reconciler
	Pushes     PushTrigger

	// BatchTimeout bounds one message's reconciliation. Default: 2 minutes.
	BatchTimeout time.Duration

	Stats  *Stats
	Logger Logger
}

// Router dispatches inbound sensor messages.
//
// A message with "config": true requests a configuration push for its
// espName; any other message carries readings for the reconciler.
type Router struct {
	reconciler   *Reconciler
	pushes       PushTrigger
	batchTimeout time.Duration
	stats        *Stats
	logger       Logger

	// Parent of every batch context; replaced by the service on Start.
	baseMu sync.RWMutex
	base   context.Context
}

// NewRouter validates opts and returns a Router.
func NewRouter(opts RouterOptions) (*Router, error) {
	if opts.Reconciler == nil {
		return nil, errors.New("router: reconciler is required")
	}
	if opts.Pushes == nil {
		return nil, errors.New("router: push trigger is required")
	}

	r := &Router{
		reconciler:   opts.Reconciler,
		pushes:       opts.Pushes,
		batchTimeout: opts.BatchTimeout,
		stats:        opts.Stats,
		logger:       opts.Logger,
		base:         context.Background(),
	}
	if r.batchTimeout <= 0 {
		r.batchTimeout = defaultBatchTimeout
	}
	if r.stats == nil {
		r.stats = &Stats{}
	}
	if r.logger == nil {
		r.logger = nopLogger{}
	}
	return r, nil
}

// HandleMessage is the MQTT callback for the sensor topic.
//
// A payload that is not a valid envelope is dropped whole and
// ErrMalformedPayload is returned. Readings are reconciled on the calling
// goroutine; pushes are only queued.
func (r *Router) HandleMessage(topic string, payload []byte) error {
	r.stats.messagesReceived.Add(1)

	// Any bad reading fails the whole envelope; nothing is dispatched.
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.stats.messagesDropped.Add(1)
		r.logger.Warn("dropping malformed message", "topic", topic, "error", err)
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	// Config requests ignore any sensors in the same message.
	if env.Config {
		return r.requestPush(topic, env.ESPName)
	}

	ctx, cancel := context.WithTimeout(r.baseContext(), r.batchTimeout)
	defer cancel()

	result := r.reconciler.Reconcile(ctx, env.Sensors)
	r.logger.Debug("batch reconciled",
		"topic", topic,
		"readings", result.Total(),
		"created", result.Created,
		"updated", result.Updated,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return nil
}

// setBaseContext makes batches started after the call end when ctx does.
func (r *Router) setBaseContext(ctx context.Context) {
	r.baseMu.Lock()
	r.base = ctx
	r.baseMu.Unlock()
}

func (r *Router) baseContext() context.Context {
	r.baseMu.RLock()
	defer r.baseMu.RUnlock()
	return r.base
}

// requestPush queues an on-demand push; espName must not be blank.
func (r *Router) requestPush(topic, device string) error {
	device = strings.TrimSpace(device)
	if device == "" {
		r.stats.messagesDropped.Add(1)
		r.logger.Warn("config request without espName", "topic", topic)
		return fmt.Errorf("%w: config request without espName", ErrMalformedPayload)
	}

	if err := r.pushes.Trigger(device); err != nil {
		r.logger.Warn("config push not queued", "device", device, "error", err)
		return fmt.Errorf("queueing push for %s: %w", device, err)
	}
	r.logger.Info("config push requested", "device", device, "topic", topic)
	return nil
}
