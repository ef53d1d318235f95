// Package journal keeps a SQLite record of every reading dispatched to the
// backend and every configuration push to a device.
//
// The Recorder is attached to the transceiver as an Observer. Events are
// queued and written by a single goroutine so the relay never waits on disk;
// when the queue is full the event is dropped and counted.
package journal
