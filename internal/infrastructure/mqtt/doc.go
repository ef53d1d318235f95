// Package mqtt provides the transceiver's broker connection.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing device configuration commands
//   - The reading subscription, restored after every reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// Devices publish reading batches under values/sensors/ and receive
// configuration on params/<device>. The transceiver sits between the broker
// and the HTTP backend:
//
//	Devices ↔ MQTT Broker ↔ Transceiver ↔ Backend API
//
// # Reconnection
//
// Paho reconnects in the background. Callers that must not act while the
// link is down check IsConnected and call Reconnect, which blocks until the
// link is back, the context ends or the connect timeout passes.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSensorValues(), 1,
//	    func(topic string, payload []byte) error {
//	        return router.HandleMessage(topic, payload)
//	    })
//
//	client.Publish(mqtt.Topics{}.DeviceParams("esp001"), []byte("s2##0_300_0000_0000_00000_86400"), 1, false)
package mqtt
