package broker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// ErrAddressRequired is returned when no listen address is configured.
var ErrAddressRequired = errors.New("broker: listen address is required")

// Options configures an embedded broker.
type Options struct {
	// Address is the TCP listen address, e.g. ":1883" or "127.0.0.1:18830".
	Address string

	// Logger receives the broker's own log output. Optional.
	Logger *slog.Logger
}

// Broker is an in-process MQTT broker accepting anonymous clients.
type Broker struct {
	server  *mqttserver.Server
	address string

	closeOnce sync.Once
	closeErr  error
}

// New creates a broker bound to opts.Address.
// The listener is bound immediately; clients are accepted after Start.
func New(opts Options) (*Broker, error) {
	if opts.Address == "" {
		return nil, ErrAddressRequired
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	server := mqttserver.New(&mqttserver.Options{
		Logger:       logger.With(slog.String("component", "mqtt-broker")),
		InlineClient: true,
	})

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: opts.Address})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("broker: adding listener %s: %w", opts.Address, err)
	}

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("broker: adding auth hook: %w", err)
	}

	return &Broker{server: server, address: opts.Address}, nil
}

// Start begins accepting client connections. It does not block.
func (b *Broker) Start() error {
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("broker: serve: %w", err)
	}
	return nil
}

// Address returns the configured listen address.
func (b *Broker) Address() string {
	return b.address
}

// Publish injects a message as if a client had published it.
func (b *Broker) Publish(topic string, payload []byte, retain bool, qos byte) error {
	return b.server.Publish(topic, payload, retain, qos)
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	return b.server.Clients.Len()
}

// Close stops all listeners and disconnects clients. Safe to call twice.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.server.Close()
	})
	return b.closeErr
}
