// Package api implements the HTTP REST API and WebSocket server for the
// transceiver.
//
// This package provides:
//   - read-only views of health, counters, the identity cache and the
//     delivery journal
//   - an endpoint to push a device's configuration immediately
//   - a WebSocket hub streaming reading.dispatched and config.pushed events
//
// The server follows the same lifecycle as the infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// There is no authentication layer; deploy the API on a trusted network.
package api
