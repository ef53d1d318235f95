package transceiver

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ReadingBackend is the backend surface the reconciler needs.
type ReadingBackend interface {
	// CreateReading offers a reading the backend has not confirmed yet.
	CreateReading(ctx context.Context, r Reading) (Ack, error)

	// UpdateReading attaches a reading to an id the backend assigned before.
	UpdateReading(ctx context.Context, r Reading) (Ack, error)
}

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	// Cache is required.
	Cache *IdentityCache

	// Backend is required.
	Backend ReadingBackend

	// Stats, Observer and Logger are optional.
	Stats    *Stats
	Observer Observer
	Logger   Logger
}

// BatchResult summarises one Reconcile call.
type BatchResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Total returns the number of readings the batch contained.
func (b BatchResult) Total() int {
	return b.Created + b.Updated + b.Failed + b.Skipped
}

// Reconciler relays reading batches to the backend.
//
// Batches are processed one at a time; within a batch readings are handled
// in order and independently, so one failure never stops the rest.
type Reconciler struct {
	cache    *IdentityCache
	backend  ReadingBackend
	stats    *Stats
	observer Observer
	logger   Logger

	// batchMu serialises batches against the shared cache.
	batchMu sync.Mutex
}

// NewReconciler validates opts and returns a Reconciler.
func NewReconciler(opts ReconcilerOptions) (*Reconciler, error) {
	if opts.Cache == nil {
		return nil, errors.New("reconciler: cache is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("reconciler: backend is required")
	}

	r := &Reconciler{
		cache:    opts.Cache,
		backend:  opts.Backend,
		stats:    opts.Stats,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	if r.stats == nil {
		r.stats = &Stats{}
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	if r.logger == nil {
		r.logger = nopLogger{}
	}
	return r, nil
}

// Reconcile classifies every reading and dispatches it to the backend.
//
// A reading with no confirmed id is created, otherwise updated. The id in
// a successful answer is recorded against the sensor name the backend
// returns. Failures are logged and counted; there is no retry, the next
// reading for that sensor is the retry.
//
// If ctx ends mid-batch the remaining readings are skipped.
func (r *Reconciler) Reconcile(ctx context.Context, readings []Reading) BatchResult {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	var result BatchResult
	for i, reading := range readings {
		// Shutdown or timeout: count the rest as skipped and stop.
		if err := ctx.Err(); err != nil {
			skipped := len(readings) - i
			result.Skipped += skipped
			r.stats.readingsSkipped.Add(uint64(skipped))
			r.logger.Warn("batch interrupted", "skipped", skipped, "error", err)
			break
		}

		switch r.reconcileOne(ctx, reading) {
		case ActionCreate:
			result.Created++
		case ActionUpdate:
			result.Updated++
		case ActionSkip:
			result.Skipped++
		default:
			result.Failed++
		}
	}

	return result
}

// reconcileOne classifies, dispatches and records a single reading.
//
// Returns:
//   - ActionCreate or ActionUpdate when the backend accepted the reading
//   - ActionSkip when the reading has no sensor name
//   - "" when the backend call failed
func (r *Reconciler) reconcileOne(ctx context.Context, reading Reading) Action {
	if reading.SensorName == "" {
		r.stats.readingsSkipped.Add(1)
		r.logger.Warn("reading without sensorName skipped", "value", reading.SensorValue)
		r.observer.ReadingDispatched(DispatchEvent{
			Value:     reading.SensorValue,
			Action:    ActionSkip,
			Timestamp: time.Now().UTC(),
		})
		return ActionSkip
	}

	// Classify against the cache; only a repeated value reuses the known id.
	class := r.cache.Classify(reading.SensorName, reading.SensorValue)
	reading.ID = class.KnownID

	// id < 1 means the backend has not confirmed this sensor+value yet.
	action := ActionUpdate
	if reading.ID < 1 {
		action = ActionCreate
	}

	// Single attempt; the next reading for the sensor acts as the retry.
	start := time.Now()
	var (
		ack Ack
		err error
	)
	if action == ActionCreate {
		ack, err = r.backend.CreateReading(ctx, reading)
	} else {
		ack, err = r.backend.UpdateReading(ctx, reading)
	}

	ev := DispatchEvent{
		SensorName: reading.SensorName,
		Value:      reading.SensorValue,
		Action:     action,
		RequestID:  reading.ID,
		Err:        err,
		Duration:   time.Since(start),
		Timestamp:  start.UTC(),
	}

	if err != nil {
		r.stats.readingsFailed.Add(1)
		r.logger.Warn("reading not delivered",
			"sensor", reading.SensorName,
			"value", reading.SensorValue,
			"action", string(action),
			"error", err,
		)
		r.observer.ReadingDispatched(ev)
		return ""
	}

	// Record under the name the backend answered with, not the one sent.
	if !r.cache.RecordBackendID(ack.SensorName, ack.ID) {
		r.logger.Debug("backend acknowledged an unknown sensor",
			"sensor", reading.SensorName,
			"ack_sensor", ack.SensorName,
		)
	}
	ev.BackendID = ack.ID

	if action == ActionCreate {
		r.stats.readingsCreated.Add(1)
	} else {
		r.stats.readingsUpdated.Add(1)
	}
	r.logger.Debug("reading delivered",
		"sensor", reading.SensorName,
		"value", reading.SensorValue,
		"action", string(action),
		"id", ack.ID,
		"new_sensor", class.IsNewSensor,
	)
	r.observer.ReadingDispatched(ev)
	return action
}
