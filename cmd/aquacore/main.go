// Aqua Core - Irrigation Scheduling & Adaptation Coordinator
//
// This is the main entry point for the Aqua Core application. Aqua Core
// drives multi-station irrigation controllers: it schedules watering,
// adapts run times to observed and forecast rain, and records every
// delivery for accounting.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/aqua-core/migrations"

	"github.com/nerrad567/aqua-core/internal/actuation"
	"github.com/nerrad567/aqua-core/internal/api"
	"github.com/nerrad567/aqua-core/internal/coordinator"
	"github.com/nerrad567/aqua-core/internal/infrastructure/config"
	"github.com/nerrad567/aqua-core/internal/infrastructure/database"
	"github.com/nerrad567/aqua-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/aqua-core/internal/infrastructure/logging"
	"github.com/nerrad567/aqua-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/aqua-core/internal/schedule"
	"github.com/nerrad567/aqua-core/internal/waterbalance"
	"github.com/nerrad567/aqua-core/internal/weather"
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
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Aqua Core",
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

	// Resolve the site timezone: all day boundaries and schedule times are
	// local to the site, not to the host.
	loc := time.UTC
	if cfg.Site.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Site.Timezone)
		if err != nil {
			return fmt.Errorf("loading site timezone: %w", err)
		}
	}

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

	// One weather adapter shared by every controller: the site has one sky.
	wxSource, err := weather.NewSource(cfg.Weather, cfg.Site, loc)
	if err != nil {
		return fmt.Errorf("creating weather source: %w", err)
	}
	wxAdapter := weather.NewAdapter(wxSource,
		cfg.Weather.GetCacheTimeout(), cfg.Weather.GetFetchTimeout(), log)
	log.Info("weather source initialised", "provider", wxAdapter.ProviderName())

	// Start one coordinator per configured controller
	repo := schedule.NewSQLiteRepository(db.DB)
	coordinators := make(map[string]*coordinator.Coordinator, len(cfg.Controllers))
	for i := range cfg.Controllers {
		coord, startErr := startController(ctx, &cfg.Controllers[i], cfg, loc, repo,
			wxAdapter, mqttClient, influxClient, log)
		if startErr != nil {
			return fmt.Errorf("starting controller %s: %w", cfg.Controllers[i].ID, startErr)
		}
		defer coord.Stop()
		coordinators[cfg.Controllers[i].ID] = coord

		if subErr := subscribeCommands(mqttClient, byte(cfg.MQTT.QoS), coord); subErr != nil {
			return fmt.Errorf("subscribing commands for %s: %w", cfg.Controllers[i].ID, subErr)
		}
	}
	log.Info("controllers started", "count", len(coordinators))

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:       cfg.API,
		Logger:       log,
		Coordinators: coordinators,
		MQTT:         mqttClient,
		DB:           db.DB,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Coordinators (stop any running station)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Aqua Core stopped")
	return nil
}

// startController builds the schedule store, actuation gateway, and
// coordinator for one configured controller and starts its control loop.
func startController(ctx context.Context, cc *config.ControllerConfig, cfg *config.Config,
	loc *time.Location, repo schedule.Repository, wx *weather.Adapter,
	mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) (*coordinator.Coordinator, error) {

	stations := cc.BuildStations()
	entries := cc.BuildSchedule()

	store, err := schedule.NewStore(ctx, cc.ID, stations, entries, loc, repo, log)
	if err != nil {
		return nil, fmt.Errorf("creating schedule store: %w", err)
	}

	var gateway actuation.Gateway
	if cc.ControlMethod == "log" {
		gateway = actuation.NewLogBackend(log)
	} else {
		gateway, err = actuation.NewMQTTBackend(mqttClient, cc.ID, stations, byte(cfg.MQTT.QoS), log)
		if err != nil {
			return nil, fmt.Errorf("creating MQTT actuation backend: %w", err)
		}
	}

	weatherEnabled := cfg.Weather.Provider != "" && cfg.Weather.Provider != "none"

	deps := coordinator.Deps{
		ControllerID: cc.ID,
		Config:       cfg.Coordinator,
		Balance: waterbalance.Config{
			TargetMmPerDay:   cc.Soil.TargetMmPerDay,
			SprinkleWithRain: cc.SprinkleWithRain,
			WeatherEnabled:   weatherEnabled,
		},
		Store:      store,
		Weather:    wx,
		Gateway:    gateway,
		CommandLog: actuation.NewCommandLog(cfg.Coordinator.CommandLogSize),
		Logger:     log,
		Publisher:  mqttClient,
	}
	if influxClient != nil {
		deps.Metrics = influxClient
	}

	coord, err := coordinator.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}
	if err := coord.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting coordinator: %w", err)
	}

	log.Info("controller started",
		"controller", cc.ID,
		"stations", len(stations),
		"entries", len(entries),
		"control_method", cc.ControlMethod,
	)
	return coord, nil
}

// mqttCommand is the payload accepted on a controller's command topic.
type mqttCommand struct {
	Action      string `json:"action"` // start, stop, stop_all, power
	StationID   int    `json:"station_id,omitempty"`
	DurationMin int    `json:"duration_min,omitempty"`
	On          bool   `json:"on,omitempty"` // for action "power"
}

// subscribeCommands wires a controller's MQTT command topic to its
// coordinator. Malformed payloads and full queues are logged and dropped;
// MQTT offers no reply channel for rejection. Power flows through the
// command topic too: the gateway publishes relay commands on the power
// topic, so subscribing there would echo our own output back.
func subscribeCommands(client *mqtt.Client, qos byte, coord *coordinator.Coordinator) error {
	cmdTopic := mqtt.Topics{}.ControllerCommand(coord.ControllerID())
	return client.Subscribe(cmdTopic, qos, func(_ string, payload []byte) error {
		var msg mqttCommand
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("parsing command payload: %w", err)
		}

		cmd := coordinator.ManualCommand{StationID: msg.StationID}
		switch msg.Action {
		case "start":
			cmd.Kind = coordinator.ManualStart
			cmd.Duration = time.Duration(msg.DurationMin) * time.Minute
		case "stop":
			cmd.Kind = coordinator.ManualStop
		case "stop_all":
			cmd.Kind = coordinator.ManualStopAll
		case "power":
			cmd.Kind = coordinator.ManualPower
			cmd.PowerOn = msg.On
		default:
			return fmt.Errorf("unknown command action %q", msg.Action)
		}

		if err := coord.Submit(cmd); err != nil {
			return fmt.Errorf("submitting %s: %w", msg.Action, err)
		}
		return nil
	})
}

// getConfigPath returns the configuration file path.
// Uses AQUACORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AQUACORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
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
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
