package transceiver

import (
	"context"
	"testing"
	"time"
)

func newTestService(t *testing.T, be *mockBackend, tr *mockTransport) *Service {
	t.Helper()
	s, err := NewService(ServiceOptions{
		Transport:      tr,
		Backend:        be,
		Devices:        []string{"esp001", "esp002"},
		QoS:            1,
		PushInterval:   time.Hour,
		HealthInterval: time.Hour,
		Version:        "test",
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return s
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(ServiceOptions{Backend: newMockBackend()}); err == nil {
		t.Error("NewService() without transport: want error")
	}
	if _, err := NewService(ServiceOptions{Transport: newMockTransport(true)}); err == nil {
		t.Error("NewService() without backend: want error")
	}
}

func TestService_EndToEnd(t *testing.T) {
	be := newMockBackend()
	be.configs["esp001"] = []DeviceConfigItem{{Name: "t1", IsActive: true, IntervalSeconds: 5}}
	be.configs["esp003"] = []DeviceConfigItem{{Name: "x", IntervalSeconds: 60}}
	tr := newMockTransport(true)
	s := newTestService(t, be, tr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start() error = nil, want error")
	}

	// The first cycle runs right away.
	if !waitFor(t, 2*time.Second, func() bool { return len(tr.messagesOn("params/esp001")) == 1 }) {
		t.Fatal("scheduled push for esp001 not published")
	}

	handler := tr.handler("values/sensors/#")
	if handler == nil {
		t.Fatal("sensor topic not subscribed")
	}

	if err := handler("values/sensors/esp001", []byte(`{"sensors":[{"sensorName":"t1","sensorValue":4}]}`)); err != nil {
		t.Fatalf("handler() error = %v", err)
	}
	if e, ok := s.Cache().Lookup("t1"); !ok || e.BackendID == 0 {
		t.Errorf("cache entry = %+v, want confirmed t1", e)
	}

	if err := handler("values/sensors/esp003", []byte(`{"config":true,"espName":"esp003"}`)); err != nil {
		t.Fatalf("handler() error = %v", err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return len(tr.messagesOn("params/esp003")) == 1 }) {
		t.Error("on-demand push for esp003 not published")
	}

	s.Stop()
	if tr.handler("values/sensors/#") != nil {
		t.Error("sensor topic still subscribed after Stop")
	}
	if len(tr.messagesOn("transceiver/health")) == 0 {
		t.Error("no health published")
	}
}

func TestService_PushNow(t *testing.T) {
	be := newMockBackend()
	be.configs["esp002"] = []DeviceConfigItem{{Name: "a"}, {Name: "b"}}
	tr := newMockTransport(true)
	s := newTestService(t, be, tr)

	res, err := s.PushNow(context.Background(), "esp002")
	if err != nil {
		t.Fatalf("PushNow() error = %v", err)
	}
	if res.Published != 2 {
		t.Errorf("Published = %d, want 2", res.Published)
	}
	if s.Stats().Snapshot().PushesSucceeded != 1 {
		t.Error("push not counted")
	}
	if got := s.Devices(); len(got) != 2 {
		t.Errorf("Devices() = %v", got)
	}
}

func TestService_StopCancelsInFlightBatch(t *testing.T) {
	be := newMockBackend()
	be.blockCreates = true
	tr := newMockTransport(true)
	s := newTestService(t, be, tr)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	handler := tr.handler("values/sensors/#")
	if handler == nil {
		t.Fatal("sensor topic not subscribed")
	}

	done := make(chan struct{})
	go func() {
		//nolint:errcheck // outcome is asserted through the backend mock
		handler("values/sensors/esp001", []byte(`{"sensors":[{"sensorName":"t1","sensorValue":1}]}`))
		close(done)
	}()

	if !waitFor(t, 2*time.Second, func() bool { creates, _ := be.calls(); return len(creates) == 1 }) {
		t.Fatal("create not attempted")
	}
	s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight batch not cancelled by Stop")
	}
}
