package transceiver

import (
	"errors"

	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/backend"
)

// Domain errors for the transceiver. Every one of them is scoped to a single
// reading, device push or inbound message; none stops the process.
var (
	// ErrTransportUnavailable means the broker link was down when a publish
	// was attempted. The push is abandoned until the next cycle.
	ErrTransportUnavailable = errors.New("transceiver: transport unavailable")

	// ErrBackendUnreachable means a backend request got no answer.
	ErrBackendUnreachable = backend.ErrUnreachable

	// ErrBackendRejected means the backend answered with a non-success status.
	ErrBackendRejected = backend.ErrRejected

	// ErrMalformedPayload means an inbound message could not be parsed.
	// The whole message is dropped.
	ErrMalformedPayload = errors.New("transceiver: malformed payload")

	// ErrQueueFull means an on-demand push request could not be queued.
	ErrQueueFull = errors.New("transceiver: push queue full")
)
