// Package broker runs an embedded MQTT broker for local development and tests.
//
// In production the transceiver talks to an external broker. Setting
// mqtt.embedded.enabled starts this broker in-process so a laptop needs
// nothing else running:
//
//	b, err := broker.New(broker.Options{Address: ":1883", Logger: logger.Logger})
//	if err != nil {
//	    return err
//	}
//	defer b.Close()
//	if err := b.Start(); err != nil {
//	    return err
//	}
//
// Every client is accepted; there is no ACL.
package broker
