package mqtt

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/broker"
	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/config"
)

// startBroker runs an embedded broker on a free loopback port for the test.
func startBroker(t *testing.T) (*broker.Broker, int) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	b, err := broker.New(broker.Options{Address: "127.0.0.1:" + strconv.Itoa(port)})
	if err != nil {
		t.Fatalf("broker.New() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("broker.Start() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })

	return b, port
}

func testConfig(port int) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     port,
			ClientID: "TRC_TEST",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     2,
		},
	}
}

func connectTest(t *testing.T) (*Client, *broker.Broker) {
	t.Helper()
	b, port := startBroker(t)
	client, err := Connect(testConfig(port))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, b
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Info(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns), len(l.errors)
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client, _ := connectTest(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}
}

func TestConnectInvalidBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the full connect timeout")
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	_, err = Connect(testConfig(port))
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	client, _ := connectTest(t)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client, _ := connectTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestReconnectAfterClose(t *testing.T) {
	client, _ := connectTest(t)
	client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Reconnect()")
	}
}

func TestReconnectWhenConnected(t *testing.T) {
	client, _ := connectTest(t)

	if err := client.Reconnect(context.Background()); err != nil {
		t.Errorf("Reconnect() on a live link error = %v, want nil", err)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish(t *testing.T) {
	client, _ := connectTest(t)

	tests := []struct {
		name    string
		topic   string
		qos     byte
		wantErr error
	}{
		{"params command", Topics{}.DeviceParams("esp001"), 1, nil},
		{"qos 0", Topics{}.DeviceParams("esp002"), 0, nil},
		{"empty topic", "", 1, ErrInvalidTopic},
		{"invalid qos", "params/esp001", 3, ErrInvalidQoS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.PublishString(tt.topic, "s2##0_300_0000_0000_00000_86400", tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("PublishString() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishTooLarge(t *testing.T) {
	client, _ := connectTest(t)

	err := client.Publish("params/esp001", make([]byte, maxPayloadSize+1), 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishRetained(t *testing.T) {
	client, _ := connectTest(t)

	if err := client.Publish(Topics{}.Health(), []byte(`{"status":"healthy"}`), 1, true); err != nil {
		t.Errorf("Publish() retained error = %v", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	client, _ := connectTest(t)
	client.Close()

	err := client.Publish("params/esp001", []byte("x"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Subscribe Tests
// =============================================================================

func TestSubscribeReceivesMessages(t *testing.T) {
	client, b := connectTest(t)

	received := make(chan string, 1)
	err := client.Subscribe(Topics{}.AllSensorValues(), 1, func(topic string, payload []byte) error {
		received <- topic + " " + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := b.Publish(TopicPrefixSensors+"/esp001", []byte(`{"config":false}`), false, 0); err != nil {
		t.Fatalf("broker Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if want := `values/sensors/esp001 {"config":false}`; got != want {
			t.Errorf("received %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestSubscribeHandlerFailuresAreContained(t *testing.T) {
	client, b := connectTest(t)
	logger := &recordingLogger{}
	client.SetLogger(logger)

	done := make(chan struct{}, 2)
	err := client.Subscribe("values/sensors/#", 0, func(topic string, _ []byte) error {
		defer func() { done <- struct{}{} }()
		if topic == "values/sensors/panic" {
			panic("boom")
		}
		return errors.New("handler failed")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b.Publish("values/sensors/panic", []byte("{}"), false, 0)
	b.Publish("values/sensors/error", []byte("{}"), false, 0)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("handler not invoked")
		}
	}

	// The logger is called after the handler's deferred send; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if warns, errs := logger.counts(); warns >= 1 && errs >= 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	warns, errs := logger.counts()
	t.Errorf("logged warns=%d errors=%d, want at least 1 of each", warns, errs)
}

func TestSubscribeValidation(t *testing.T) {
	client, _ := connectTest(t)
	noop := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Subscribe("a/b", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3 error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	client, _ := connectTest(t)

	topic := Topics{}.AllSensorValues()
	if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 1 {
		t.Fatalf("subscription not tracked")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Unsubscribe(), want 0", client.SubscriptionCount())
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscriptionRestoredAfterReconnect(t *testing.T) {
	client, b := connectTest(t)

	received := make(chan struct{}, 1)
	err := client.Subscribe(Topics{}.AllSensorValues(), 1, func(string, []byte) error {
		received <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := client.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}

	// handleConnect restores subscriptions asynchronously.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		b.Publish("values/sensors/esp002", []byte("{}"), false, 0)
		select {
		case <-received:
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("subscription not restored after reconnect")
		}
	}
}
