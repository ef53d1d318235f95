package transceiver

import "time"

// DispatchEvent describes one reading sent (or not) to the backend.
type DispatchEvent struct {
	SensorName string
	Value      int64
	Action     Action
	// RequestID is the id attached to the outgoing reading.
	RequestID int64
	// BackendID is the id from the backend's answer; zero on failure.
	BackendID int64
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// PushEvent describes one configuration push to a device.
type PushEvent struct {
	RunID     string
	Device    string
	Trigger   Trigger
	Items     int
	Published int
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// Observer receives an event for every dispatch and push.
//
// Implementations must not block; they run on the reconciliation and push
// goroutines. The journal, the metrics writer and the WebSocket hub are
// attached this way in main.
type Observer interface {
	ReadingDispatched(ev DispatchEvent)
	ConfigPushed(ev PushEvent)
}

// Observers fans events out to several observers in order.
type Observers []Observer

// ReadingDispatched forwards ev to every observer.
func (o Observers) ReadingDispatched(ev DispatchEvent) {
	for _, obs := range o {
		obs.ReadingDispatched(ev)
	}
}

// ConfigPushed forwards ev to every observer.
func (o Observers) ConfigPushed(ev PushEvent) {
	for _, obs := range o {
		obs.ConfigPushed(ev)
	}
}

type nopObserver struct{}

func (nopObserver) ReadingDispatched(DispatchEvent) {}
func (nopObserver) ConfigPushed(PushEvent)          {}

// Logger is the logging interface used across the package.
// It is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
