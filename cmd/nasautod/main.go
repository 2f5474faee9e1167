// nasautod - NAS automation controller
//
// This is the main entry point for the controller daemon. It powers a NAS
// and a VU+ satellite receiver up and down based on scheduled ON windows,
// the cached Plex recording schedule, and backup activity on the Proxmox
// host, with a nightly full power-down when the system is idle.
//
// Actions are dry-run by default: decisions are computed, logged, and
// published, but no relay or SSH session is touched until
// automation.actions_enabled is set in the configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/dieterch/nas-automation/migrations"

	"github.com/dieterch/nas-automation/internal/api"
	"github.com/dieterch/nas-automation/internal/automation"
	"github.com/dieterch/nas-automation/internal/devices"
	"github.com/dieterch/nas-automation/internal/infrastructure/config"
	"github.com/dieterch/nas-automation/internal/infrastructure/database"
	"github.com/dieterch/nas-automation/internal/infrastructure/influxdb"
	"github.com/dieterch/nas-automation/internal/infrastructure/logging"
	"github.com/dieterch/nas-automation/internal/infrastructure/mqtt"
	"github.com/dieterch/nas-automation/internal/plex"
	"github.com/dieterch/nas-automation/internal/schedule"
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
	log.Info("starting nasautod",
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
	if !cfg.Automation.ActionsEnabled {
		log.Info("running in dry-run mode, no device will be touched")
	}

	// Open database
	db, err := database.Open(ctx, database.Config{
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

	// Repositories
	periodRepo := schedule.NewSQLiteRepository(db.DB)
	stateRepo := automation.NewSQLiteRepository(db.DB)

	// Seed the period store on first boot
	if seedErr := seedPeriods(ctx, cfg, periodRepo, log); seedErr != nil {
		return fmt.Errorf("seeding periods: %w", seedErr)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Physical devices
	nas := devices.NewNAS(cfg.Devices.NAS)
	nasRelay := devices.NewRelay(cfg.Devices.NAS.Relay)
	vuRelay := devices.NewRelay(cfg.Devices.VuPlus.Relay)

	var proxmox *devices.Proxmox
	if cfg.Proxmox.Enabled {
		proxmox = devices.NewProxmox(cfg.Proxmox)
		log.Info("backup system check enabled", "host", cfg.Proxmox.Host, "node", cfg.Proxmox.Node)
	} else {
		log.Info("backup system check disabled")
	}

	// Plex schedule source and cache. The Plex server runs on the NAS, so
	// the NAS reachability probe doubles as the fetch gate.
	plexCache := plex.NewCache(cfg.Plex.CachePath, cfg.Automation.GetLead(), cfg.Automation.GetLag())
	refresher := plex.NewRefresher(plex.NewClient(cfg.Plex.Host, cfg.Plex.Token), plexCache, nas)

	// Decision machine and tick controller
	machine := automation.NewMachine(
		stateRepo, nas, nasRelay, vuRelay,
		!cfg.Automation.ActionsEnabled,
		cfg.Automation.GetShutdownPoll(),
		cfg.Automation.GetShutdownTimeout(),
		log,
	)

	controller := automation.NewController(automation.ControllerOptions{
		Repo:         stateRepo,
		Periods:      periodRepo,
		Cache:        plexCache,
		Machine:      machine,
		Logger:       log,
		NAS:          nas,
		VuRelay:      vuRelay,
		Backup:       backupChecker(proxmox),
		Publisher:    publisher(mqttClient),
		Metrics:      metrics(influxClient),
		TickInterval: cfg.Automation.GetTickInterval(),
		Lead:         cfg.Automation.GetLead(),
		Lag:          cfg.Automation.GetLag(),
		NightEnabled: cfg.Automation.NightPeriod.Enabled,
		NightStart:   cfg.Automation.NightPeriod.Start,
		NightEnd:     cfg.Automation.NightPeriod.End,
	})

	// Reconcile persisted state against the current schedule before the
	// first tick; the controller may have been down across window edges.
	if reconcileErr := controller.Reconcile(ctx); reconcileErr != nil {
		return fmt.Errorf("reconciling state: %w", reconcileErr)
	}

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		Logger:     log,
		Controller: controller,
		StateRepo:  stateRepo,
		Periods:    periodRepo,
		Cache:      plexCache,
		Lead:       cfg.Automation.GetLead(),
		Lag:        cfg.Automation.GetLag(),
		DryRun:     !cfg.Automation.ActionsEnabled,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, apiServer, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Background loops
	go tickLoop(ctx, controller, cfg.Automation.GetTickInterval(), log)
	go refreshLoop(ctx, refresher, cfg.Plex.RefreshInterval, log)
	if proxmox != nil {
		go backupSyncLoop(ctx, controller, proxmox, cfg.Proxmox.SyncInterval, log)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("nasautod stopped")
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, apiServer *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
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

// tickLoop fires the evaluation pipeline on the configured interval.
func tickLoop(ctx context.Context, controller *automation.Controller, interval time.Duration, log *logging.Logger) {
	tick := func() {
		_, err := controller.Tick(ctx)
		switch {
		case err == nil:
		case errors.Is(err, automation.ErrNoScheduleCache):
			// Expected until the first schedule fetch succeeds.
			log.Warn("tick ran without a schedule cache")
		case errors.Is(err, automation.ErrShutdownTimeout):
			// The NAS has the halt command; the next tick checks again.
			log.Warn("nas shutdown unconfirmed, will retry")
		default:
			log.Error("tick failed", "error", err)
		}
	}

	// First tick immediately so a restart does not wait a full interval.
	tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// refreshLoop keeps the Plex schedule cache current.
func refreshLoop(ctx context.Context, refresher *plex.Refresher, intervalSeconds int, log *logging.Logger) {
	refresh := func() {
		if err := refresher.Refresh(ctx, time.Now()); err != nil {
			// Offline source and guarded payloads are routine; the tick
			// keeps running on the cached snapshot.
			log.Debug("schedule refresh skipped", "error", err)
		} else {
			log.Debug("schedule cache refreshed")
		}
	}

	refresh()
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// backupSyncLoop maintains the auto-generated ON window covering the next
// scheduled backup run.
func backupSyncLoop(ctx context.Context, controller *automation.Controller, proxmox *devices.Proxmox, intervalSeconds int, log *logging.Logger) {
	sync := func() {
		window, err := proxmox.NextBackupWindow(ctx)
		if err != nil {
			log.Warn("backup window sync failed", "error", err)
			return
		}
		if window == nil {
			return
		}
		if err := controller.SetBackupWindow(ctx, window.Start, window.End); err != nil {
			log.Error("failed to store backup window", "error", err)
			return
		}
		log.Debug("backup window synced", "start", window.Start, "end", window.End)
	}

	sync()
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sync()
		}
	}
}

// seedPeriods inserts the configured ON windows when the store is empty.
// After first boot the API owns the period list; the YAML seeds are not
// re-applied.
func seedPeriods(ctx context.Context, cfg *config.Config, repo schedule.Repository, log *logging.Logger) error {
	count, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 || len(cfg.Automation.SeedPeriods) == 0 {
		return nil
	}

	for _, seed := range cfg.Automation.SeedPeriods {
		period := schedule.ScheduledPeriod{
			ID:       seed.ID,
			Type:     schedule.PeriodType(seed.Type),
			Weekdays: seed.Weekdays,
			Date:     seed.Date,
			Start:    seed.Start,
			End:      seed.End,
			Enabled:  seed.Enabled,
			Label:    seed.Label,
		}
		if err := repo.Create(ctx, &period); err != nil {
			return fmt.Errorf("seeding period %q: %w", seed.ID, err)
		}
	}
	log.Info("period store seeded", "count", len(cfg.Automation.SeedPeriods))
	return nil
}

// backupChecker adapts an optional Proxmox client to the controller
// interface; a typed nil inside a non-nil interface would defeat the
// controller's nil check.
func backupChecker(p *devices.Proxmox) automation.BackupChecker {
	if p == nil {
		return nil
	}
	return p
}

// publisher adapts the optional MQTT client the same way.
func publisher(c *mqtt.Client) automation.Publisher {
	if c == nil {
		return nil
	}
	return c
}

// metrics adapts the optional InfluxDB client the same way.
func metrics(c *influxdb.Client) automation.Metrics {
	if c == nil {
		return nil
	}
	return c
}

// getConfigPath returns the configuration file path.
// Uses NASAUTO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NASAUTO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
