// Package config handles loading and validating transceiver configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with TRANSCEIVER_* environment variables
//   - Validation that reports every problem at once
//   - Default value handling
//
// Security Considerations:
//   - Backend, MQTT and InfluxDB credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Transceiver.Devices)
package config
