package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/config"
)

// fakeInflux answers /ping and records line protocol sent to /api/v2/write.
type fakeInflux struct {
	mu      sync.Mutex
	lines   []string
	healthy bool
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		f.mu.Lock()
		healthy := f.healthy
		f.mu.Unlock()
		if healthy {
			w.WriteHeader(http.StatusNoContent)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func startFake(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	fake := &fakeInflux{healthy: true}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return fake, config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "test-org",
		Bucket:        "transceiver",
		BatchSize:     100,
		FlushInterval: 60,
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := Connect(config.InfluxDBConfig{Enabled: true, URL: url})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	fake, cfg := startFake(t)
	fake.healthy = false

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteAndFlush(t *testing.T) {
	fake, cfg := startFake(t)

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	at := time.Unix(1700000000, 0)
	client.WriteReading("t1", 21, "create", true, 12*time.Millisecond, at)
	client.WritePush("esp001", "scheduled", 2, 2, true, 40*time.Millisecond, at)
	client.Flush()

	lines := fake.written()
	if len(lines) != 2 {
		t.Fatalf("written %d lines, want 2: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "sensor_reading,action=create,sensor=t1 ") {
		t.Errorf("reading line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "config_push,device=esp001,trigger=scheduled ") {
		t.Errorf("push line = %q", lines[1])
	}
}

func TestCloseStopsWrites(t *testing.T) {
	fake, cfg := startFake(t)

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	client.WriteReading("t1", 1, "update", true, 0, time.Now())
	client.Flush()

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if !errors.Is(client.HealthCheck(context.Background()), ErrNotConnected) {
		t.Error("HealthCheck() after Close: want ErrNotConnected")
	}
	if n := len(fake.written()); n != 0 {
		t.Errorf("written %d lines after Close, want 0", n)
	}
}

func TestPointFields(t *testing.T) {
	at := time.Unix(1700000000, 0)

	tests := []struct {
		name  string
		point *write.Point
		want  []string
	}{
		{
			name:  "reading",
			point: readingPoint("hum", -4, "update", false, 1500*time.Microsecond, at),
			want:  []string{"value=-4i", "success=false", "latency_ms=1i"},
		},
		{
			name:  "push",
			point: pushPoint("transc", "api", 3, 1, false, time.Second, at),
			want:  []string{"items=3i", "published=1i", "latency_ms=1000i"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := write.PointToLineProtocol(tt.point, time.Second)
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("line %q missing %q", line, w)
				}
			}
			if !strings.HasSuffix(strings.TrimSpace(line), " 1700000000") {
				t.Errorf("line %q does not end with the timestamp", line)
			}
		})
	}
}
