// AVGear Matrix Controller
//
// This is the main entry point for the AVGear matrix controller daemon.
// It drives an AVGear A/V matrix switcher over its TCP ASCII protocol and
// exposes it to the rest of the installation via MQTT:
//   - Periodic polling with retained state snapshots
//   - Command execution (routing, presets, power, panel lock)
//   - Routing history in SQLite and optional InfluxDB metrics
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/maeneak/avgearip/migrations"

	"github.com/maeneak/avgearip/internal/bridges/avgear"
	"github.com/maeneak/avgearip/internal/infrastructure/config"
	"github.com/maeneak/avgearip/internal/infrastructure/database"
	"github.com/maeneak/avgearip/internal/infrastructure/influxdb"
	"github.com/maeneak/avgearip/internal/infrastructure/logging"
	"github.com/maeneak/avgearip/internal/infrastructure/mqtt"
	"github.com/maeneak/avgearip/internal/matrix"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// historyPruneInterval is how often aged routing history is pruned.
const historyPruneInterval = 24 * time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting AVGear controller",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to the matrix switcher
	matrixClient := matrix.NewClient(matrix.Config{
		Host:       cfg.Matrix.Host,
		Port:       cfg.Matrix.Port,
		NumInputs:  cfg.Matrix.Inputs,
		NumOutputs: cfg.Matrix.Outputs,
	})
	matrixClient.SetLogger(log)

	matrixAddr := net.JoinHostPort(cfg.Matrix.Host, strconv.Itoa(cfg.Matrix.Port))
	info, err := matrixClient.TestConnection()
	if err != nil {
		// The matrix may be powered off at startup; the client reconnects
		// lazily on the first poll, so this is not fatal.
		log.Warn("matrix not reachable at startup",
			"address", matrixAddr,
			"error", err,
		)
	} else {
		log.Info("matrix connected",
			"address", matrixAddr,
			"model", info.Model,
			"firmware", info.Firmware,
		)
	}
	defer func() {
		log.Info("closing matrix connection")
		matrixClient.Disconnect()
	}()

	// Start the polling coordinator
	coordinator := matrix.NewCoordinator(matrixClient, cfg.GetPollInterval())
	coordinator.SetLogger(log)
	coordinator.Start()
	defer func() {
		log.Info("stopping coordinator")
		coordinator.Stop()
	}()
	log.Info("polling coordinator started", "interval", coordinator.PollInterval())

	// Start the MQTT bridge
	bridge, err := startBridge(ctx, cfg, coordinator, mqttClient, influxClient, db, matrixAddr, log)
	if err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	// Prune aged routing history in the background
	if cfg.History.Enabled && cfg.History.RetentionDays > 0 {
		go pruneHistoryLoop(ctx, db, cfg.History.RetentionDays, log)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Bridge
	// 2. Coordinator
	// 3. Matrix connection
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("AVGear controller stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AVGEAR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AVGEAR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startBridge wires up and starts the MQTT bridge.
func startBridge(
	ctx context.Context,
	cfg *config.Config,
	coordinator *matrix.Coordinator,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	db *database.DB,
	matrixAddr string,
	log *logging.Logger,
) (*avgear.Bridge, error) {
	opts := avgear.BridgeOptions{
		MatrixID:   cfg.Matrix.ID,
		Address:    matrixAddr,
		Version:    version,
		MQTTClient: &mqttBridgeAdapter{client: mqttClient},
		Controller: coordinator,
		Logger:     log,
	}

	// Optional integrations are left nil unless enabled; assigning a nil
	// *influxdb.Client would produce a non-nil interface.
	if cfg.History.Enabled {
		opts.History = avgear.NewSQLiteHistoryRepository(db.DB)
	}
	if influxClient != nil {
		opts.Metrics = influxClient
	}

	bridge, err := avgear.NewBridge(opts)
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("bridge started", "matrix_id", cfg.Matrix.ID)

	return bridge, nil
}

// pruneHistoryLoop deletes routing history older than the retention window.
// Runs once at startup and then daily until the context is cancelled.
func pruneHistoryLoop(ctx context.Context, db *database.DB, retentionDays int, log *logging.Logger) {
	repo := avgear.NewSQLiteHistoryRepository(db.DB)
	retention := time.Duration(retentionDays) * 24 * time.Hour

	prune := func() {
		pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		deleted, err := repo.Prune(pruneCtx, retention)
		if err != nil {
			log.Error("pruning routing history", "error", err)
			return
		}
		if deleted > 0 {
			log.Info("pruned routing history", "deleted", deleted, "retention_days", retentionDays)
		}
	}

	prune()

	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Matrix link health is reported continuously by the bridge; an
	// unreachable matrix at startup is tolerated (lazy reconnect).

	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic string, payload []byte) error
// - Bridge expects: func(topic string, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements avgear.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements avgear.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler to return nil error (bridge handlers don't return errors)
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements avgear.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
