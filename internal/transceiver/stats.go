package transceiver

import (
	"sync/atomic"
	"time"
)

// Stats counts what the transceiver has done since start.
// The zero value is ready to use and safe for concurrent use.
type Stats struct {
	// Inbound messages on the sensor topic
	messagesReceived atomic.Uint64
	messagesDropped  atomic.Uint64 // malformed, dropped whole

	// Per-reading outcomes
	readingsCreated atomic.Uint64
	readingsUpdated atomic.Uint64
	readingsFailed  atomic.Uint64
	readingsSkipped atomic.Uint64 // unnamed, or batch interrupted

	// Configuration pushes
	pushesSucceeded   atomic.Uint64
	pushesFailed      atomic.Uint64
	commandsPublished atomic.Uint64 // includes commands from partial pushes
	lastPushUnix      atomic.Int64  // nanoseconds; 0 until the first success
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	MessagesReceived  uint64     `json:"messages_received"`
	MessagesDropped   uint64     `json:"messages_dropped"`
	ReadingsCreated   uint64     `json:"readings_created"`
	ReadingsUpdated   uint64     `json:"readings_updated"`
	ReadingsFailed    uint64     `json:"readings_failed"`
	ReadingsSkipped   uint64     `json:"readings_skipped"`
	PushesSucceeded   uint64     `json:"pushes_succeeded"`
	PushesFailed      uint64     `json:"pushes_failed"`
	CommandsPublished uint64     `json:"commands_published"`
	LastPush          *time.Time `json:"last_push,omitempty"`
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		MessagesReceived:  s.messagesReceived.Load(),
		MessagesDropped:   s.messagesDropped.Load(),
		ReadingsCreated:   s.readingsCreated.Load(),
		ReadingsUpdated:   s.readingsUpdated.Load(),
		ReadingsFailed:    s.readingsFailed.Load(),
		ReadingsSkipped:   s.readingsSkipped.Load(),
		PushesSucceeded:   s.pushesSucceeded.Load(),
		PushesFailed:      s.pushesFailed.Load(),
		CommandsPublished: s.commandsPublished.Load(),
	}
	if ts := s.lastPushUnix.Load(); ts != 0 {
		t := time.Unix(0, ts).UTC()
		snap.LastPush = &t
	}
	return snap
}

// recordPush counts one finished push. Only a successful push moves LastPush.
func (s *Stats) recordPush(err error, published int, at time.Time) {
	s.commandsPublished.Add(uint64(published))
	if err != nil {
		s.pushesFailed.Add(1)
		return
	}
	s.pushesSucceeded.Add(1)
	s.lastPushUnix.Store(at.UnixNano())
}
