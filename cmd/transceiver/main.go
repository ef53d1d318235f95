// Gray Logic Transceiver - MQTT to HTTP bridge for ESP sensor devices.
//
// The transceiver relays sensor readings published over MQTT to the backend
// API and pushes each device's configuration back down as compact command
// strings, on a fixed interval and on demand.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-transceiver/migrations"

	"github.com/nerrad567/gray-logic-transceiver/internal/api"
	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/backend"
	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/broker"
	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-transceiver/internal/journal"
	"github.com/nerrad567/gray-logic-transceiver/internal/transceiver"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, blocks until ctx is cancelled and tears down
// in reverse order through the deferred closes.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic Transceiver",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(getConfigPath(), log)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Embedded broker (development only)
	if cfg.MQTT.Embedded.Enabled {
		b, brokerErr := startBroker(cfg.MQTT.Embedded, log)
		if brokerErr != nil {
			return brokerErr
		}
		defer func() {
			log.Info("stopping embedded MQTT broker")
			if closeErr := b.Close(); closeErr != nil {
				log.Error("error closing embedded broker", "error", closeErr)
			}
		}()
	}

	var observers transceiver.Observers

	// Delivery journal (optional)
	var db *database.DB
	var journalRepo *journal.Repository
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", db.Path())

		journalRepo = journal.NewRepository(db.DB)
		recorder := journal.NewRecorder(journalRepo, journal.RecorderOptions{
			Retention: cfg.GetRetention(),
			Logger:    log.With("component", "journal"),
		})
		defer func() {
			recorder.Close()
			if dropped := recorder.Dropped(); dropped > 0 {
				log.Warn("journal entries dropped", "count", dropped)
			}
		}()
		observers = append(observers, recorder)
	} else {
		log.Info("delivery journal disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		observers = append(observers, metricsObserver{client: influxClient})
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Backend
	backendClient, err := backend.New(backend.Options{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.GetBackendTimeout(),
		Token:   cfg.Backend.Token,
	})
	if err != nil {
		return fmt.Errorf("creating backend client: %w", err)
	}
	if probeErr := backendClient.HealthCheck(ctx); probeErr != nil {
		// Not fatal: every request is retried by the next message or tick.
		log.Warn("backend not reachable at startup", "url", cfg.Backend.URL, "error", probeErr)
	}

	// WebSocket hub is created here so the service can publish to it.
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
		go hub.Run(ctx)
		observers = append(observers, hub)
	}

	svc, err := transceiver.NewService(transceiver.ServiceOptions{
		Transport:      mqttTransport{client: mqttClient},
		Backend:        transceiver.NewAPIBackend(backendClient),
		Devices:        cfg.Transceiver.Devices,
		SensorTopic:    cfg.MQTT.Topics.Sensors,
		QoS:            byte(cfg.MQTT.QoS),
		PushInterval:   cfg.GetPushInterval(),
		HealthInterval: cfg.GetHealthInterval(),
		Version:        version,
		Observer:       observers,
		Logger:         log.With("component", "transceiver"),
	})
	if err != nil {
		return fmt.Errorf("creating transceiver: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting transceiver: %w", err)
	}
	defer svc.Stop()

	// HTTP API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log.With("component", "api"),
			Transceiver: svc,
			ExternalHub: hub,
			Version:     version,
		}
		// Assigned only when set so the interfaces stay nil otherwise.
		if journalRepo != nil {
			deps.Journal = journalRepo
			deps.DB = db
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred closes run in reverse order: API, service, MQTT, InfluxDB,
	// journal, database, embedded broker.
	log.Info("Gray Logic Transceiver stopped")
	return nil
}

// getConfigPath returns TRANSCEIVER_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("TRANSCEIVER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads path. A missing file at the default location falls back
// to built-in defaults plus environment overrides; an explicit path must exist.
func loadConfig(path string, log *logging.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		log.Info("configuration loaded", "path", path)
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && path == defaultConfigPath {
		log.Warn("config file not found, using defaults", "path", path)
		cfg = config.Default()
		if validateErr := cfg.Validate(); validateErr != nil {
			return nil, fmt.Errorf("validating default config: %w", validateErr)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}

func startBroker(cfg config.MQTTEmbeddedConfig, log *logging.Logger) (*broker.Broker, error) {
	b, err := broker.New(broker.Options{
		Address: cfg.Address,
		Logger:  log.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedded broker: %w", err)
	}
	if err := b.Start(); err != nil {
		return nil, fmt.Errorf("starting embedded broker: %w", err)
	}
	log.Info("embedded MQTT broker listening", "address", b.Address())
	return b, nil
}
