package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Aqua Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig         `yaml:"site"`
	Database    DatabaseConfig     `yaml:"database"`
	MQTT        MQTTConfig         `yaml:"mqtt"`
	API         APIConfig          `yaml:"api"`
	InfluxDB    InfluxDBConfig     `yaml:"influxdb"`
	Logging     LoggingConfig      `yaml:"logging"`
	Weather     WeatherConfig      `yaml:"weather"`
	Coordinator CoordinatorConfig  `yaml:"coordinator"`
	Controllers []ControllerConfig `yaml:"controllers"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains geographic coordinates used by weather providers.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// WeatherConfig contains weather provider settings.
//
// Provider selects the upstream source: "openweathermap", "pirateweather",
// or "none". With "none" the coordinator operates rain-unaware.
type WeatherConfig struct {
	Provider            string  `yaml:"provider"`
	APIKey              string  `yaml:"api_key"`
	CacheTimeoutMinutes int     `yaml:"cache_timeout_minutes"`
	FetchTimeoutSeconds int     `yaml:"fetch_timeout_seconds"`
	RainProbability     float64 `yaml:"rain_probability_threshold"`
}

// CoordinatorConfig contains control loop tuning shared by all controllers.
type CoordinatorConfig struct {
	TickIntervalSeconds    int `yaml:"tick_interval_seconds"`
	CommandQueueSize       int `yaml:"command_queue_size"`
	ActuationTimeoutSecs   int `yaml:"actuation_timeout_seconds"`
	ActuationRetryAttempts int `yaml:"actuation_retry_attempts"`
	CommandLogSize         int `yaml:"command_log_size"`
}

// ControllerConfig describes one irrigation controller: its stations,
// schedule entries, and water-balance settings. Station definitions are
// immutable for the lifetime of a running instance; changes require a reload.
type ControllerConfig struct {
	ID               string                `yaml:"id"`
	Name             string                `yaml:"name"`
	ControlMethod    string                `yaml:"control_method"`
	SprinkleWithRain bool                  `yaml:"sprinkle_with_rain"`
	Soil             SoilConfig            `yaml:"soil"`
	Stations         []StationConfig       `yaml:"stations"`
	Schedule         []ScheduleEntryConfig `yaml:"schedule"`
}

// SoilConfig contains the water-balance target settings.
//
// When Enabled is false the fixed TargetMmPerDay still applies; the flag
// exists so future soil-moisture inputs can adjust the target dynamically.
type SoilConfig struct {
	Enabled        bool    `yaml:"enabled"`
	TargetMmPerDay float64 `yaml:"target_mm_per_day"`
}

// StationConfig describes a single irrigation station.
type StationConfig struct {
	ID                int     `yaml:"id"`
	Name              string  `yaml:"name"`
	AreaM2            float64 `yaml:"area_m2"`
	FlowLpm           float64 `yaml:"flow_lpm"`
	Enabled           bool    `yaml:"enabled"`
	ManualDurationMin int     `yaml:"manual_duration_min"`
}

// ScheduleEntryConfig describes one scheduled watering window.
// Start is a time of day in "HH:MM" or "HH:MM:SS" form. Days lists
// recurrence days ("mon".."sun"); empty means every day.
type ScheduleEntryConfig struct {
	StationID   int      `yaml:"station_id"`
	Start       string   `yaml:"start"`
	DurationMin int      `yaml:"duration_min"`
	Days        []string `yaml:"days"`
	Enabled     bool     `yaml:"enabled"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AQUACORE_SECTION_KEY
// For example: AQUACORE_DATABASE_PATH, AQUACORE_WEATHER_API_KEY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Aqua Core",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/aquacore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "aquacore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Weather: WeatherConfig{
			Provider:            "none",
			CacheTimeoutMinutes: 5,
			FetchTimeoutSeconds: 10,
			RainProbability:     0.5,
		},
		Coordinator: CoordinatorConfig{
			TickIntervalSeconds:    10,
			CommandQueueSize:       16,
			ActuationTimeoutSecs:   30,
			ActuationRetryAttempts: 3,
			CommandLogSize:         64,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AQUACORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("AQUACORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("AQUACORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AQUACORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AQUACORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("AQUACORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("AQUACORE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("AQUACORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Weather - API key is a secret, prefer the environment over the file
	if v := os.Getenv("AQUACORE_WEATHER_API_KEY"); v != "" {
		cfg.Weather.APIKey = v
	}
}

// Validate checks the configuration for errors.
//
// All problems found are collected into a single error wrapping
// ErrConfigInvalid so the operator sees the complete list at once.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Weather validation
	switch c.Weather.Provider {
	case "none", "":
	case "openweathermap", "pirateweather":
		if c.Weather.APIKey == "" {
			errs = append(errs, fmt.Sprintf("weather.api_key is required for provider %q (set AQUACORE_WEATHER_API_KEY)", c.Weather.Provider))
		}
	default:
		errs = append(errs, fmt.Sprintf("weather.provider %q is not supported", c.Weather.Provider))
	}
	if c.Weather.CacheTimeoutMinutes < 1 {
		errs = append(errs, "weather.cache_timeout_minutes must be at least 1")
	}

	// Coordinator validation
	if c.Coordinator.TickIntervalSeconds < 1 {
		errs = append(errs, "coordinator.tick_interval_seconds must be at least 1")
	}
	if c.Coordinator.CommandQueueSize < 1 {
		errs = append(errs, "coordinator.command_queue_size must be at least 1")
	}

	// Controller validation
	if len(c.Controllers) == 0 {
		errs = append(errs, "at least one controller must be configured")
	}
	seen := make(map[string]bool)
	for i := range c.Controllers {
		errs = append(errs, c.Controllers[i].validate(seen)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigInvalid, strings.Join(errs, "; "))
	}

	return nil
}

// validate collects validation problems for a single controller.
// seen tracks controller IDs across the whole config for duplicate detection.
func (cc *ControllerConfig) validate(seen map[string]bool) []string {
	var errs []string
	prefix := fmt.Sprintf("controller %q", cc.ID)

	if cc.ID == "" {
		errs = append(errs, "controller id is required")
	} else if seen[cc.ID] {
		errs = append(errs, prefix+": duplicate controller id")
	}
	seen[cc.ID] = true

	switch cc.ControlMethod {
	case "", "mqtt", "log":
	default:
		errs = append(errs, fmt.Sprintf("%s: control_method %q is not supported", prefix, cc.ControlMethod))
	}

	if cc.Soil.TargetMmPerDay < 0 {
		errs = append(errs, prefix+": soil.target_mm_per_day must not be negative")
	}

	if len(cc.Stations) == 0 {
		errs = append(errs, prefix+": at least one station is required")
	}
	stationIDs := make(map[int]bool)
	for _, st := range cc.Stations {
		sp := fmt.Sprintf("%s station %d", prefix, st.ID)
		if st.ID < 1 {
			errs = append(errs, sp+": id must be positive")
		}
		if stationIDs[st.ID] {
			errs = append(errs, sp+": duplicate station id")
		}
		stationIDs[st.ID] = true
		if st.AreaM2 <= 0 {
			errs = append(errs, sp+": area_m2 must be positive")
		}
		if st.FlowLpm <= 0 {
			errs = append(errs, sp+": flow_lpm must be positive")
		}
		if st.ManualDurationMin < 0 {
			errs = append(errs, sp+": manual_duration_min must not be negative")
		}
	}

	errs = append(errs, validateSchedule(prefix, cc.Schedule, stationIDs)...)

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// GetCacheTimeout returns the weather cache timeout as a Duration.
func (c *WeatherConfig) GetCacheTimeout() time.Duration {
	return time.Duration(c.CacheTimeoutMinutes) * time.Minute
}

// GetFetchTimeout returns the per-fetch weather timeout as a Duration.
func (c *WeatherConfig) GetFetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// GetTickInterval returns the control loop tick interval as a Duration.
func (c *CoordinatorConfig) GetTickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// GetActuationTimeout returns the actuation await timeout as a Duration.
func (c *CoordinatorConfig) GetActuationTimeout() time.Duration {
	return time.Duration(c.ActuationTimeoutSecs) * time.Second
}
