// PosFleet Core - POS terminal fleet monitoring back end.
//
// This is the main entry point. It opens the configured storage backend
// (PostgreSQL, or SQLite when no connection string is given), serves the
// REST API and the push channel, and optionally bridges terminal status
// reports from MQTT and records telemetry in InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nerrad567/posfleet-core/internal/api"
	"github.com/nerrad567/posfleet-core/internal/auth"
	"github.com/nerrad567/posfleet-core/internal/fleet"
	"github.com/nerrad567/posfleet-core/internal/infrastructure/config"
	"github.com/nerrad567/posfleet-core/internal/infrastructure/database"
	"github.com/nerrad567/posfleet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/posfleet-core/internal/infrastructure/logging"
	"github.com/nerrad567/posfleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/posfleet-core/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path. A missing default file is not an error:
// defaults and environment variables are enough to start on SQLite.
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting PosFleet Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := loadDotEnv(); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if configPath == "" {
		log.Info("no config file, using defaults and environment")
	} else {
		log.Info("configuration loaded", "path", configPath)
	}

	log = logging.New(cfg.Logging, version)

	// Storage. Any failure here is fatal: the process must not serve
	// without a working backend.
	db, err := database.Open(ctx, database.Config{
		Embedded:     cfg.Database.Embedded,
		URL:          cfg.Database.URL,
		Path:         cfg.Database.Path,
		AppName:      cfg.Database.AppName,
		WALMode:      cfg.Database.WALMode,
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		QueryTimeout: cfg.GetQueryTimeout(),
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "backend", db.Selection().String())

	svc, err := fleet.NewService(store.New(db))
	if err != nil {
		return fmt.Errorf("binding schema: %w", err)
	}
	svc.SetLogger(log.With("component", "fleet"))

	if cfg.Security.AuthEnabled {
		if _, seedErr := auth.SeedAdmin(ctx, svc, cfg.Security.AdminUsername, cfg.Security.AdminPassword, log); seedErr != nil {
			return fmt.Errorf("seeding admin: %w", seedErr)
		}
	}

	checks := map[string]func(context.Context) error{}

	server, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Logger:       log,
		Fleet:        svc,
		Version:      version,
		HealthChecks: checks,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	svc.AddSink(server.Hub())

	mqttClient, err := startMQTT(ctx, cfg, svc, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient.HealthCheck
	}

	influxClient, err := startInfluxDB(cfg, svc, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		checks["influxdb"] = influxClient.HealthCheck
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API server, InfluxDB,
	// MQTT, database.
	return nil
}

// getConfigPath returns the configuration file path: POSFLEET_CONFIG if
// set, else the default path when it exists, else "" (no file).
func getConfigPath() string {
	if path := os.Getenv("POSFLEET_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// loadDotEnv reads .env (or POSFLEET_ENV_FILE) into the environment.
// Variables already set win. A missing default file is ignored.
func loadDotEnv() error {
	path := os.Getenv("POSFLEET_ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// startMQTT connects to the broker when enabled, relays broadcast events
// to it and feeds terminal status reports into svc. Returns nil when MQTT
// is disabled.
func startMQTT(ctx context.Context, cfg *config.Config, svc *fleet.Service, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg.MQTT, mqtt.Identity{Version: version, Backend: svc.Backend()})
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT connected, subscriptions restored", "reconnects", client.Stats().Reconnects)
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	qos := byte(cfg.MQTT.QoS)
	relay := fleet.NewMQTTRelay(client, qos, 0)
	relay.SetLogger(log.With("component", "mqtt_relay"))
	go relay.Run(ctx)
	svc.AddSink(relay)

	if err := fleet.SubscribeTerminals(client, qos, svc); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("subscribing to terminal reports: %w", err)
	}
	return client, nil
}

// startInfluxDB connects to InfluxDB when enabled and records status
// changes and transactions. Returns nil when disabled.
func startInfluxDB(cfg *config.Config, svc *fleet.Service, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)

	svc.AddSink(fleet.NewTelemetryRecorder(client))
	return client, nil
}
