// Gray Logic Historian - point value history for Gray Logic sites
//
// This is the main entry point for the historian. It records time-stamped
// point samples arriving over MQTT, stores them in SQLite or PostgreSQL,
// mirrors them to InfluxDB and live WebSocket clients, serves them over an
// HTTP query API and purges expired history on a schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/gray-logic-historian/migrations"

	"github.com/nerrad567/gray-logic-historian/internal/api"
	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/background"
	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/filedata"
	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-historian/internal/ingest"
	"github.com/nerrad567/gray-logic-historian/internal/pointvalue"
	"github.com/nerrad567/gray-logic-historian/internal/retention"
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

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	migrateCmd := flag.String("migrate", "", `run a schema command and exit: "status" or "down"`)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if *migrateCmd != "" {
		err = runMigrate(ctx, *migrateCmd, os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Historian",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "driver", cfg.Database.Driver)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	blobs, err := filedata.Open(cfg.Filedata.Path)
	if err != nil {
		return fmt.Errorf("opening filedata store: %w", err)
	}

	executor := background.New(cfg.Background.MaxTasks)
	executor.SetLogger(log)
	defer func() {
		log.Info("stopping background executor")
		if closeErr := executor.Close(context.Background()); closeErr != nil {
			log.Error("error stopping background executor", "error", closeErr)
		}
	}()

	// Connect to InfluxDB (optional). The store flushes it once the
	// write-behind queue drains, and it is closed after the store.
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		influxClient.SetLogger(log)
	} else {
		log.Info("InfluxDB disabled")
	}

	store := pointvalue.New(db, blobs, executor, storeOptions(cfg))
	store.SetLogger(log)
	defer func() {
		log.Info("closing point value store")
		if closeErr := store.Close(context.Background()); closeErr != nil {
			log.Error("error closing point value store", "error", closeErr)
		}
	}()

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	health := func(ctx context.Context) error {
		return healthCheck(ctx, db, mqttClient, influxClient)
	}

	var mirrors pointvalue.Mirrors
	if influxClient != nil {
		mirrors = append(mirrors, influxClient)
	}

	// Start API server (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Store:    store,
			Health:   health,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		mirrors = append(mirrors, server.Hub())
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		if cfg.Security.JWT.Secret == "" {
			log.Warn("API authentication disabled, set security.jwt.secret")
		}
	} else {
		log.Info("API server disabled")
	}

	if len(mirrors) > 0 {
		store.SetMirror(mirrors)
	}

	// Start MQTT ingestion
	if mqttClient != nil && cfg.MQTT.Ingest.Enabled {
		ingester := ingest.New(mqttClient, store, ingest.Config{
			Topics: mqttClient.Topics(),
			QoS:    byte(cfg.MQTT.QoS),
		})
		ingester.SetLogger(log)
		if startErr := ingester.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT ingest: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT ingest")
			if stopErr := ingester.Stop(); stopErr != nil {
				log.Error("error stopping MQTT ingest", "error", stopErr)
			}
		}()
	}

	// Verify all connections are healthy
	if err := health(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Retention.Enabled {
		purger := retention.New(store, cfg.Retention)
		purger.SetLogger(log)
		g.Go(func() error { return purger.Run(gctx) })
		log.Info("retention enabled",
			"interval", cfg.Retention.Interval,
			"max_age", cfg.Retention.MaxAge,
		)
	}

	if cfg.Metrics.Enabled {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Listen, health, log) })
	}

	if mqttClient != nil {
		g.Go(func() error {
			publishStats(gctx, mqttClient, mqttClient.Topics().Stats(), store.Stats, statsInterval, log)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	log.Info("initialisation complete, waiting for shutdown signal")
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. MQTT ingest
	// 2. API server
	// 3. MQTT
	// 4. Point value store (drains queued values, flushes InfluxDB)
	// 5. InfluxDB (if enabled)
	// 6. Background executor
	// 7. Database

	log.Info("Gray Logic Historian stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HISTORIAN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HISTORIAN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens the configured database.
func openDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Driver:      cfg.Database.Driver,
		Path:        cfg.Database.Path,
		DSN:         cfg.Database.DSN,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// storeOptions maps store configuration onto point value store options.
func storeOptions(cfg *config.Config) pointvalue.Options {
	return pointvalue.Options{
		MaxInstances:    cfg.Store.WriteBehind.MaxInstances,
		SpawnThreshold:  cfg.Store.WriteBehind.SpawnThreshold,
		MaxRows:         cfg.Store.WriteBehind.MaxRows,
		SyncAttempts:    cfg.Store.Retry.SyncAttempts,
		ReadAttempts:    cfg.Store.Retry.ReadAttempts,
		BatchAttempts:   cfg.Store.Retry.BatchAttempts,
		BatchBackoff:    cfg.BatchBackoff(),
		ChunkSize:       cfg.Store.Delete.ChunkSize,
		OrphanChunkWait: cfg.OrphanChunkWait(),
		OrphanMaxRows:   cfg.Store.Delete.OrphanMaxRows,
		MaxUnsaved:      cfg.Store.MaxUnsaved,
	}
}

// connectMQTT connects to the broker and routes its connection events to log.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"status_topic", client.Topics().Status(),
	)
	return client, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
