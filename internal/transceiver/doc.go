// Package transceiver relays sensor readings from MQTT to the backend and
// pushes device configuration from the backend to the devices.
//
// Readings arrive as batches on values/sensors/#. Each reading is classified
// against an in-memory IdentityCache: a sensor without a confirmed backend
// id, or whose value changed, is offered to the backend as a new value;
// a repeated value with a known id is sent as an update. The id in the
// backend's answer is recorded for the next reading.
//
// Configuration flows the other way. The Scheduler walks the managed
// devices on a fixed interval, the Pusher fetches each device's sensor
// configuration and publishes one fixed-width command per sensor:
//
//	params/esp001  t1##1_005_0012_-003_00800_01800
//
// A message {"config": true, "espName": "esp001"} on the sensor topic
// requests an extra push outside the cycle.
//
// Failures are scoped to one reading, one push or one message. Nothing is
// retried; the next reading or cycle is the retry.
package transceiver
