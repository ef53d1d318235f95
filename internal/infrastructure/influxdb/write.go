package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementReading = "sensor_reading"
	MeasurementPush    = "config_push"
)

// WriteReading records one reading dispatched to the backend.
//
//	client.WriteReading("t1", 21, "create", true, 12*time.Millisecond, time.Now())
func (c *Client) WriteReading(sensor string, value int64, action string, ok bool, latency time.Duration, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(readingPoint(sensor, value, action, ok, latency, at))
}

// WritePush records one configuration push.
func (c *Client) WritePush(device, trigger string, items, published int, ok bool, latency time.Duration, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(pushPoint(device, trigger, items, published, ok, latency, at))
}

func readingPoint(sensor string, value int64, action string, ok bool, latency time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementReading,
		map[string]string{
			"sensor": sensor,
			"action": action,
		},
		map[string]interface{}{
			"value":      value,
			"success":    ok,
			"latency_ms": latency.Milliseconds(),
		},
		at,
	)
}

func pushPoint(device, trigger string, items, published int, ok bool, latency time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementPush,
		map[string]string{
			"device":  device,
			"trigger": trigger,
		},
		map[string]interface{}{
			"items":      items,
			"published":  published,
			"success":    ok,
			"latency_ms": latency.Milliseconds(),
		},
		at,
	)
}
