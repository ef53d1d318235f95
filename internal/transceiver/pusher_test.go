package transceiver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/backend"
)

func newTestPusher(t *testing.T, be *mockBackend, tr *mockTransport) (*Pusher, *Stats, *recordingObserver, *recordingLogger) {
	t.Helper()
	stats := &Stats{}
	obs := &recordingObserver{}
	log := &recordingLogger{}
	p, err := NewPusher(PusherOptions{
		Source:    be,
		Publisher: tr,
		QoS:       1,
		Stats:     stats,
		Observer:  obs,
		Logger:    log,
	})
	if err != nil {
		t.Fatalf("NewPusher() error = %v", err)
	}
	return p, stats, obs, log
}

func sampleItems() []DeviceConfigItem {
	return []DeviceConfigItem{
		{Name: "t1", IsActive: true, IntervalSeconds: 5, PositiveThreshold: 12, NegativeThreshold: -3, WindowStart: 800, WindowEnd: 1800},
		{Name: "s2", IntervalSeconds: 300, WindowEnd: 86400},
	}
}

func TestNewPusherValidation(t *testing.T) {
	tests := []struct {
		name string
		opts PusherOptions
	}{
		{"no source", PusherOptions{Publisher: newMockTransport(true)}},
		{"no publisher", PusherOptions{Source: newMockBackend()}},
		{"bad qos", PusherOptions{Source: newMockBackend(), Publisher: newMockTransport(true), QoS: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPusher(tt.opts); err == nil {
				t.Error("NewPusher() error = nil, want error")
			}
		})
	}
}

func TestPushConfig_PublishesInOrder(t *testing.T) {
	be := newMockBackend()
	be.configs["esp001"] = sampleItems()
	tr := newMockTransport(true)
	p, stats, obs, _ := newTestPusher(t, be, tr)

	res, err := p.PushConfig(context.Background(), "esp001", TriggerScheduled)
	if err != nil {
		t.Fatalf("PushConfig() error = %v", err)
	}
	if res.Items != 2 || res.Published != 2 || res.RunID == "" {
		t.Errorf("result = %+v", res)
	}

	msgs := tr.getMessages()
	want := []string{"t1##1_005_0012_-003_00800_01800", "s2##0_300_0000_0000_00000_86400"}
	if len(msgs) != len(want) {
		t.Fatalf("published %d messages, want %d", len(msgs), len(want))
	}
	for i, m := range msgs {
		if m.topic != "params/esp001" || m.payload != want[i] {
			t.Errorf("msg[%d] = %s %q, want params/esp001 %q", i, m.topic, m.payload, want[i])
		}
		if m.qos != 1 || m.retained {
			t.Errorf("msg[%d] qos=%d retained=%v, want qos 1 not retained", i, m.qos, m.retained)
		}
	}

	snap := stats.Snapshot()
	if snap.PushesSucceeded != 1 || snap.CommandsPublished != 2 || snap.LastPush == nil {
		t.Errorf("stats = %+v", snap)
	}
	_, pushes := obs.events()
	if len(pushes) != 1 || pushes[0].Trigger != TriggerScheduled || pushes[0].RunID != res.RunID {
		t.Errorf("push events = %+v", pushes)
	}
}

func TestPushConfig_EmptyConfig(t *testing.T) {
	be := newMockBackend()
	tr := newMockTransport(true)
	p, stats, _, _ := newTestPusher(t, be, tr)

	res, err := p.PushConfig(context.Background(), "esp009", TriggerScheduled)
	if err != nil {
		t.Fatalf("PushConfig() error = %v, want success", err)
	}
	if res.Published != 0 || len(tr.getMessages()) != 0 {
		t.Errorf("published %d, want 0", res.Published)
	}
	if stats.Snapshot().PushesSucceeded != 1 {
		t.Error("empty push not counted as success")
	}
}

func TestPushConfig_FetchFailureAbandons(t *testing.T) {
	be := newMockBackend()
	be.configs["esp001"] = sampleItems()
	be.configErr = &backend.StatusError{StatusCode: 404}
	tr := newMockTransport(true)
	p, stats, _, _ := newTestPusher(t, be, tr)

	_, err := p.PushConfig(context.Background(), "esp001", TriggerScheduled)
	if !errors.Is(err, ErrBackendRejected) {
		t.Fatalf("PushConfig() error = %v, want ErrBackendRejected", err)
	}
	if len(tr.getMessages()) != 0 {
		t.Error("commands published after a failed fetch")
	}
	if stats.Snapshot().PushesFailed != 1 {
		t.Error("failed push not counted")
	}
}

func TestPushConfig_PublishFailureStops(t *testing.T) {
	be := newMockBackend()
	be.configs["esp001"] = append(sampleItems(), DeviceConfigItem{Name: "x3"})
	tr := newMockTransport(true)
	tr.failAfter = 1
	p, stats, _, _ := newTestPusher(t, be, tr)

	res, err := p.PushConfig(context.Background(), "esp001", TriggerScheduled)
	if err == nil {
		t.Fatal("PushConfig() error = nil, want publish error")
	}
	if errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("error = %v, transport was connected", err)
	}
	if res.Published != 1 || res.Items != 3 {
		t.Errorf("result = %+v, want 1 of 3 published", res)
	}
	snap := stats.Snapshot()
	if snap.PushesFailed != 1 || snap.CommandsPublished != 1 {
		t.Errorf("stats = %+v", snap)
	}
}

func TestPushConfig_Disconnected(t *testing.T) {
	be := newMockBackend()
	be.configs["esp001"] = sampleItems()
	p, _, _, _ := newTestPusher(t, be, newMockTransport(false))

	_, err := p.PushConfig(context.Background(), "esp001", TriggerOnDemand)
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("PushConfig() error = %v, want ErrTransportUnavailable", err)
	}
}

func TestPushConfig_ReservedDeviceIsLogged(t *testing.T) {
	be := newMockBackend()
	be.configs[ReservedSelfDevice] = []DeviceConfigItem{{Name: "fw"}}
	tr := newMockTransport(true)
	p, _, _, log := newTestPusher(t, be, tr)

	if _, err := p.PushConfig(context.Background(), ReservedSelfDevice, TriggerScheduled); err != nil {
		t.Fatalf("PushConfig() error = %v", err)
	}
	if !log.contains("self-update requested; pushing as an ordinary device") {
		t.Error("reserved device push was not logged")
	}
	if got := tr.messagesOn("params/transc"); len(got) != 1 {
		t.Errorf("params/transc messages = %v, want 1", got)
	}
}

func TestPushConfig_ConcurrentSameDevice(t *testing.T) {
	be := newMockBackend()
	be.configs["esp001"] = sampleItems()
	tr := newMockTransport(true)
	p, _, _, _ := newTestPusher(t, be, tr)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.PushConfig(context.Background(), "esp001", TriggerOnDemand)
		}()
	}
	wg.Wait()

	// Pushes never interleave, so each item pair stays adjacent.
	msgs := tr.getMessages()
	if len(msgs) != 8 {
		t.Fatalf("published %d, want 8", len(msgs))
	}
	for i := 0; i < len(msgs); i += 2 {
		if msgs[i].payload[:2] != "t1" || msgs[i+1].payload[:2] != "s2" {
			t.Errorf("messages %d,%d out of order: %q %q", i, i+1, msgs[i].payload, msgs[i+1].payload)
		}
	}
}
