package mqtt

import "fmt"

// Topic roots. The sensor and params trees are fixed by the device firmware.
const (
	// TopicPrefixSensors is where devices publish reading batches.
	TopicPrefixSensors = "values/sensors"

	// TopicPrefixParams is where device configuration commands are sent.
	TopicPrefixParams = "params"

	// TopicPrefixTransceiver is the base for the transceiver's own topics.
	TopicPrefixTransceiver = "transceiver"
)

// Topics provides builders for the topics the transceiver uses.
//
//	topics := mqtt.Topics{}
//	topics.DeviceParams("esp001") // "params/esp001"
type Topics struct{}

// AllSensorValues returns the pattern matching every device's reading batches.
//
// Pattern: values/sensors/#
func (Topics) AllSensorValues() string {
	return TopicPrefixSensors + "/#"
}

// DeviceParams returns the configuration command topic for one device.
//
// Example: params/esp001
func (Topics) DeviceParams(device string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixParams, device)
}

// SystemStatus returns the retained online/offline status topic (also the LWT topic).
//
// Example: transceiver/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", TopicPrefixTransceiver)
}

// Health returns the periodic health report topic.
//
// Example: transceiver/health
func (Topics) Health() string {
	return fmt.Sprintf("%s/health", TopicPrefixTransceiver)
}
