package transceiver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ReservedSelfDevice is the device name kept for a future self-update of
// the transceiver. Pushes for it are currently handled like any device.
const ReservedSelfDevice = "transc"

// Envelope is the body of a message on values/sensors/#.
//
// With Config set the message asks for a configuration push to ESPName;
// otherwise Sensors carries a batch of readings.
type Envelope struct {
	Config  bool      `json:"config"`
	ESPName string    `json:"espName"`
	Sensors []Reading `json:"sensors"`
}

// Reading is one sensor observation.
//
// ID is the backend identifier attached before dispatch; values below 1
// mean "not yet known". Fields the transceiver does not interpret are kept
// in Extra and forwarded to the backend unchanged.
type Reading struct {
	SensorName  string
	SensorValue int64
	ID          int64
	Extra       map[string]json.RawMessage
}

// MarshalJSON writes the reading in the backend wire format,
// {sensorName, sensorValue, id} plus any extra fields.
func (r Reading) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["sensorName"] = r.SensorName
	out["sensorValue"] = r.SensorValue
	out["id"] = r.ID
	return json.Marshal(out)
}

// UnmarshalJSON reads a device reading. sensorValue must be an integer.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("reading: %w", err)
	}

	var parsed Reading
	if v, ok := raw["sensorName"]; ok {
		if err := json.Unmarshal(v, &parsed.SensorName); err != nil {
			return fmt.Errorf("reading: sensorName: %w", err)
		}
		delete(raw, "sensorName")
	}

	// A JSON null decodes into an int64 as a silent no-op, so it is
	// rejected here rather than read as 0.
	v, ok := raw["sensorValue"]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return fmt.Errorf("reading %q: sensorValue missing", parsed.SensorName)
	}
	if err := json.Unmarshal(v, &parsed.SensorValue); err != nil {
		return fmt.Errorf("reading %q: sensorValue: %w", parsed.SensorName, err)
	}
	delete(raw, "sensorValue")

	if v, ok := raw["id"]; ok {
		// Devices may send null or omit the id; only a number is kept.
		_ = json.Unmarshal(v, &parsed.ID)
		delete(raw, "id")
	}

	if len(raw) > 0 {
		parsed.Extra = raw
	}
	*r = parsed
	return nil
}

// DeviceConfigItem is one sensor's configuration as served by the backend.
type DeviceConfigItem struct {
	Name              string `json:"name"`
	IsActive          bool   `json:"isAktiv"`
	IntervalSeconds   uint32 `json:"intervall"`
	PositiveThreshold int32  `json:"positiveThreshold"`
	NegativeThreshold int32  `json:"negativeThreshold"`
	WindowStart       uint32 `json:"timeWindowStart"`
	WindowEnd         uint32 `json:"timeWindowEnd"`
}

// Ack is the backend's answer to a create or update.
type Ack struct {
	SensorName string `json:"sensorName"`
	ID         int64  `json:"id"`
}

// Command is one encoded configuration message for a device.
type Command struct {
	Topic   string
	Payload string
}

// Action names the backend call made for a reading.
type Action string

const (
	// ActionCreate offers the reading as a new, unconfirmed measurement.
	ActionCreate Action = "create"

	// ActionUpdate attaches the reading to a known backend id.
	ActionUpdate Action = "update"

	// ActionSkip marks a reading that was not dispatched.
	ActionSkip Action = "skip"
)

// Trigger says why a configuration push ran.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerOnDemand  Trigger = "on_demand"
	TriggerAPI       Trigger = "api"
)

// HealthStatus represents the operational status of the transceiver.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on transceiver/health.
type HealthMessage struct {
	Service        string        `json:"service"`
	Timestamp      time.Time     `json:"timestamp"`
	Status         HealthStatus  `json:"status"`
	Version        string        `json:"version"`
	UptimeSeconds  int64         `json:"uptime_seconds"`
	MQTTConnected  bool          `json:"mqtt_connected"`
	BackendOnline  *bool         `json:"backend_online,omitempty"`
	KnownSensors   int           `json:"known_sensors"`
	ManagedDevices []string      `json:"managed_devices"`
	Statistics     StatsSnapshot `json:"statistics"`
	Reason         string        `json:"reason,omitempty"`
}
