package transceiver

import (
	"context"
	"errors"
	"sync"
)

// mockBackend implements Backend for testing.
type mockBackend struct {
	mu sync.Mutex

	// nextID is handed out by successful creates.
	nextID    int64
	createErr error
	updateErr error
	// ackName overrides the sensor name in acks when set.
	ackName string
	// blockCreates holds every create until its context ends.
	blockCreates bool

	configs   map[string][]DeviceConfigItem
	configErr error
	healthErr error

	creates []Reading
	updates []Reading
	fetches []string
}

func newMockBackend() *mockBackend {
	return &mockBackend{nextID: 100, configs: make(map[string][]DeviceConfigItem)}
}

func (m *mockBackend) CreateReading(ctx context.Context, r Reading) (Ack, error) {
	m.mu.Lock()
	m.creates = append(m.creates, r)
	block := m.blockCreates
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return Ack{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return Ack{}, m.createErr
	}
	m.nextID++
	return Ack{SensorName: m.ackSensor(r), ID: m.nextID}, nil
}

func (m *mockBackend) UpdateReading(_ context.Context, r Reading) (Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, r)
	if m.updateErr != nil {
		return Ack{}, m.updateErr
	}
	return Ack{SensorName: m.ackSensor(r), ID: r.ID}, nil
}

func (m *mockBackend) ackSensor(r Reading) string {
	if m.ackName != "" {
		return m.ackName
	}
	return r.SensorName
}

func (m *mockBackend) FetchDeviceConfig(_ context.Context, device string) ([]DeviceConfigItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches = append(m.fetches, device)
	if m.configErr != nil {
		return nil, m.configErr
	}
	return m.configs[device], nil
}

func (m *mockBackend) HealthCheck(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthErr
}

func (m *mockBackend) calls() (creates, updates []Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Reading(nil), m.creates...), append([]Reading(nil), m.updates...)
}

func (m *mockBackend) fetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetches...)
}

type publishedMessage struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// mockTransport implements Transport for testing.
type mockTransport struct {
	mu        sync.Mutex
	connected bool
	// failAfter makes publishes fail once this many have succeeded; -1 never.
	failAfter  int
	reconnects int
	// connectOnReconnect brings the link up on the next Reconnect call.
	connectOnReconnect bool

	messages []publishedMessage
	handlers map[string]func(string, []byte) error
}

func newMockTransport(connected bool) *mockTransport {
	return &mockTransport{
		connected: connected,
		failAfter: -1,
		handlers:  make(map[string]func(string, []byte) error),
	}
}

func (m *mockTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return errors.New("not connected")
	}
	if m.failAfter >= 0 && len(m.messages) >= m.failAfter {
		return errors.New("publish failed")
	}
	m.messages = append(m.messages, publishedMessage{
		topic:    topic,
		payload:  string(payload),
		qos:      qos,
		retained: retained,
	})
	return nil
}

func (m *mockTransport) PublishString(topic, payload string, qos byte, retained bool) error {
	return m.Publish(topic, []byte(payload), qos, retained)
}

func (m *mockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) Reconnect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects++
	if m.connectOnReconnect {
		m.connected = true
		return nil
	}
	return errors.New("broker unreachable")
}

func (m *mockTransport) Subscribe(topic string, _ byte, handler func(string, []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockTransport) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *mockTransport) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *mockTransport) getMessages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedMessage(nil), m.messages...)
}

// messagesOn returns the payloads published to topic.
func (m *mockTransport) messagesOn(topic string) []string {
	var out []string
	for _, msg := range m.getMessages() {
		if msg.topic == topic {
			out = append(out, msg.payload)
		}
	}
	return out
}

func (m *mockTransport) reconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

func (m *mockTransport) handler(topic string) func(string, []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[topic]
}

// recordingObserver collects events.
type recordingObserver struct {
	mu         sync.Mutex
	dispatches []DispatchEvent
	pushes     []PushEvent
}

func (o *recordingObserver) ReadingDispatched(ev DispatchEvent) {
	o.mu.Lock()
	o.dispatches = append(o.dispatches, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) ConfigPushed(ev PushEvent) {
	o.mu.Lock()
	o.pushes = append(o.pushes, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) events() ([]DispatchEvent, []PushEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]DispatchEvent(nil), o.dispatches...), append([]PushEvent(nil), o.pushes...)
}

// recordingLogger keeps the messages logged at Info level and above.
type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(string, ...any)       {}
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record(msg) }

func (l *recordingLogger) contains(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if m == msg {
			return true
		}
	}
	return false
}
