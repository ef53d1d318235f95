package main

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-transceiver/internal/transceiver"
)

// mqttTransport adapts *mqtt.Client to transceiver.Transport.
type mqttTransport struct {
	client *mqtt.Client
}

func (t mqttTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return t.client.Publish(topic, payload, qos, retained)
}

func (t mqttTransport) PublishString(topic, payload string, qos byte, retained bool) error {
	return t.client.PublishString(topic, payload, qos, retained)
}

func (t mqttTransport) IsConnected() bool {
	return t.client.IsConnected()
}

func (t mqttTransport) Reconnect(ctx context.Context) error {
	return t.client.Reconnect(ctx)
}

func (t mqttTransport) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return t.client.Subscribe(topic, qos, handler)
}

func (t mqttTransport) Unsubscribe(topic string) error {
	return t.client.Unsubscribe(topic)
}

// metricsWriter is the part of *influxdb.Client used for event metrics.
type metricsWriter interface {
	WriteReading(sensor string, value int64, action string, ok bool, latency time.Duration, at time.Time)
	WritePush(device, trigger string, items, published int, ok bool, latency time.Duration, at time.Time)
}

// metricsObserver mirrors transceiver events into InfluxDB.
type metricsObserver struct {
	client metricsWriter
}

func (m metricsObserver) ReadingDispatched(ev transceiver.DispatchEvent) {
	if ev.Action == transceiver.ActionSkip {
		return
	}
	m.client.WriteReading(ev.SensorName, ev.Value, string(ev.Action), ev.Err == nil, ev.Duration, ev.Timestamp)
}

func (m metricsObserver) ConfigPushed(ev transceiver.PushEvent) {
	m.client.WritePush(ev.Device, string(ev.Trigger), ev.Items, ev.Published, ev.Err == nil, ev.Duration, ev.Timestamp)
}

var (
	_ transceiver.Transport = mqttTransport{}
	_ transceiver.Observer  = metricsObserver{}
	_ metricsWriter         = (*influxdb.Client)(nil)
)
