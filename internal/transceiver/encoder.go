package transceiver

import (
	"fmt"

	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/mqtt"
)

// Field widths of the device command string. Devices parse fixed columns,
// so these never change.
const (
	widthInterval    = 3
	widthThreshold   = 4
	widthWindowStart = 5
	widthWindowEnd   = 5
)

// Encode renders item as the command published to device.
//
// The payload is name##A_III_PPPP_NNNN_SSSSS_EEEEE. Numbers are zero
// padded on the left to their width and never truncated. A negative
// number keeps its sign in front and pads the digits, so -3 in a width 4
// field is "-003".
func Encode(device string, item DeviceConfigItem) Command {
	return Command{
		Topic:   mqtt.Topics{}.DeviceParams(device),
		Payload: EncodePayload(item),
	}
}

// EncodePayload renders only the payload part of Encode.
func EncodePayload(item DeviceConfigItem) string {
	active := '0'
	if item.IsActive {
		active = '1'
	}

	// %0*d pads after the sign, which is the layout devices expect.
	return fmt.Sprintf("%s##%c_%0*d_%0*d_%0*d_%0*d_%0*d",
		item.Name,
		active,
		widthInterval, item.IntervalSeconds,
		widthThreshold, item.PositiveThreshold,
		widthThreshold, item.NegativeThreshold,
		widthWindowStart, item.WindowStart,
		widthWindowEnd, item.WindowEnd,
	)
}
