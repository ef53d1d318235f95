// Package logging provides structured logging for the transceiver.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text while developing, with service and version fields on
// every record.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting transceiver", "devices", cfg.Transceiver.Devices)
//	logger.With("component", "reconciler").Warn("backend rejected reading", "status", 500)
//
// Never log the MQTT password or the backend token.
package logging
