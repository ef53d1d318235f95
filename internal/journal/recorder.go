package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-transceiver/internal/transceiver"
)

const (
	defaultQueueSize     = 256
	defaultPruneInterval = time.Hour
	writeTimeout         = 5 * time.Second
)

// Logger is the logging interface the recorder needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Retention is how long entries are kept. Zero disables pruning.
	Retention time.Duration

	// QueueSize bounds pending writes. Default: 256.
	QueueSize int

	// PruneInterval is how often old entries are removed. Default: 1h.
	PruneInterval time.Duration

	Logger Logger
}

// Recorder writes transceiver events to the journal in the background.
// It implements transceiver.Observer.
type Recorder struct {
	repo          *Repository
	retention     time.Duration
	pruneInterval time.Duration
	logger        Logger

	queue   chan Entry
	dropped atomic.Uint64

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRecorder starts the writer goroutine. Call Close to flush and stop it.
func NewRecorder(repo *Repository, opts RecorderOptions) *Recorder {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	interval := opts.PruneInterval
	if interval <= 0 {
		interval = defaultPruneInterval
	}

	r := &Recorder{
		repo:          repo,
		retention:     opts.Retention,
		pruneInterval: interval,
		logger:        opts.Logger,
		queue:         make(chan Entry, size),
		done:          make(chan struct{}),
	}

	r.wg.Add(1)
	go r.run()
	return r
}

// ReadingDispatched queues a reading entry.
func (r *Recorder) ReadingDispatched(ev transceiver.DispatchEvent) {
	value := ev.Value
	e := Entry{
		Kind:      KindReading,
		Subject:   ev.SensorName,
		Action:    string(ev.Action),
		Value:     &value,
		Success:   ev.Err == nil && ev.Action != transceiver.ActionSkip,
		Duration:  ev.Duration.Milliseconds(),
		CreatedAt: ev.Timestamp,
	}
	if e.Subject == "" {
		e.Subject = "(unnamed)"
	}
	if ev.BackendID != 0 {
		id := ev.BackendID
		e.BackendID = &id
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	r.enqueue(e)
}

// ConfigPushed queues a push entry.
func (r *Recorder) ConfigPushed(ev transceiver.PushEvent) {
	items, published := ev.Items, ev.Published
	e := Entry{
		Kind:      KindPush,
		Subject:   ev.Device,
		Action:    string(ev.Trigger),
		RunID:     ev.RunID,
		Items:     &items,
		Published: &published,
		Success:   ev.Err == nil,
		Duration:  ev.Duration.Milliseconds(),
		CreatedAt: ev.Timestamp,
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	r.enqueue(e)
}

// Dropped returns how many events were lost to a full queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close writes what is queued and stops the writer. Events arriving after
// Close are dropped.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) enqueue(e Entry) {
	select {
	case <-r.done:
		r.dropped.Add(1)
		return
	default:
	}

	select {
	case r.queue <- e:
	default:
		if r.dropped.Add(1) == 1 && r.logger != nil {
			r.logger.Warn("journal queue full, dropping entries")
		}
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-ticker.C:
			r.prune()
		case <-r.done:
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.Insert(ctx, e); err != nil && r.logger != nil {
		r.logger.Warn("journal write failed", "kind", e.Kind, "subject", e.Subject, "error", err)
	}
}

func (r *Recorder) prune() {
	if r.retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	n, err := r.repo.Prune(ctx, r.retention)
	if r.logger == nil {
		return
	}
	if err != nil {
		r.logger.Warn("journal prune failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("journal pruned", "deleted", n)
	}
}

var _ transceiver.Observer = (*Recorder)(nil)
