package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns a configuration that passes validation. Tests
// mutate a copy to trigger individual failures.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Controllers = []ControllerConfig{
		{
			ID:            "garden",
			Name:          "Back Garden",
			ControlMethod: "mqtt",
			Soil:          SoilConfig{TargetMmPerDay: 5.0},
			Stations: []StationConfig{
				{ID: 1, Name: "Lawn", AreaM2: 40, FlowLpm: 12, Enabled: true, ManualDurationMin: 10},
				{ID: 2, Name: "Beds", AreaM2: 15, FlowLpm: 6, Enabled: true, ManualDurationMin: 5},
			},
			Schedule: []ScheduleEntryConfig{
				{StationID: 1, Start: "06:00", DurationMin: 20, Enabled: true},
				{StationID: 2, Start: "06:30", DurationMin: 15, Days: []string{"mon", "wed", "fri"}, Enabled: true},
			},
		},
	}
	return cfg
}

// writeConfigFile writes YAML content to a temp file and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const minimalYAML = `
site:
  id: test-site
  timezone: Europe/London
controllers:
  - id: garden
    control_method: log
    soil:
      target_mm_per_day: 5
    stations:
      - id: 1
        name: Lawn
        area_m2: 40
        flow_lpm: 12
        enabled: true
    schedule:
      - station_id: 1
        start: "06:00"
        duration_min: 20
        enabled: true
`

// ─── Load Tests ───

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Site.Timezone != "Europe/London" {
		t.Errorf("Site.Timezone = %q, want %q", cfg.Site.Timezone, "Europe/London")
	}
	if len(cfg.Controllers) != 1 {
		t.Fatalf("len(Controllers) = %d, want 1", len(cfg.Controllers))
	}
	if cfg.Controllers[0].Stations[0].FlowLpm != 12 {
		t.Errorf("FlowLpm = %v, want 12", cfg.Controllers[0].Stations[0].FlowLpm)
	}

	// Defaults survive for sections the file omits
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Coordinator.TickIntervalSeconds != 10 {
		t.Errorf("Coordinator.TickIntervalSeconds = %d, want default 10", cfg.Coordinator.TickIntervalSeconds)
	}
	if cfg.Weather.Provider != "none" {
		t.Errorf("Weather.Provider = %q, want default %q", cfg.Weather.Provider, "none")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "site: [unclosed")

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfigFile(t, "site:\n  id: test\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error")
	}
	if !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("Load() error = %v, want ErrConfigInvalid", err)
	}
}

// ─── Environment Override Tests ───

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)

	t.Setenv("AQUACORE_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("AQUACORE_MQTT_HOST", "broker.example.com")
	t.Setenv("AQUACORE_API_PORT", "9090")
	t.Setenv("AQUACORE_WEATHER_API_KEY", "secret-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Weather.APIKey != "secret-key" {
		t.Errorf("Weather.APIKey = %q, want env override", cfg.Weather.APIKey)
	}
}

func TestLoad_EnvOverrideInvalidPort(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)

	t.Setenv("AQUACORE_API_PORT", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080 when override unparsable", cfg.API.Port)
	}
}

// ─── Validation Tests ───

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string // substring; empty means valid
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing site id",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id is required",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Site.Timezone = "Mars/Olympus" },
			wantErr: "not a valid IANA zone",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path is required",
		},
		{
			name:    "bad qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "bad api port",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "weather provider without key",
			mutate:  func(c *Config) { c.Weather.Provider = "openweathermap" },
			wantErr: "weather.api_key is required",
		},
		{
			name:    "unknown weather provider",
			mutate:  func(c *Config) { c.Weather.Provider = "metoffice" },
			wantErr: "is not supported",
		},
		{
			name:    "zero cache timeout",
			mutate:  func(c *Config) { c.Weather.CacheTimeoutMinutes = 0 },
			wantErr: "cache_timeout_minutes",
		},
		{
			name:    "zero tick interval",
			mutate:  func(c *Config) { c.Coordinator.TickIntervalSeconds = 0 },
			wantErr: "tick_interval_seconds",
		},
		{
			name:    "zero queue size",
			mutate:  func(c *Config) { c.Coordinator.CommandQueueSize = 0 },
			wantErr: "command_queue_size",
		},
		{
			name:    "no controllers",
			mutate:  func(c *Config) { c.Controllers = nil },
			wantErr: "at least one controller",
		},
		{
			name: "duplicate controller id",
			mutate: func(c *Config) {
				c.Controllers = append(c.Controllers, c.Controllers[0])
			},
			wantErr: "duplicate controller id",
		},
		{
			name: "unsupported control method",
			mutate: func(c *Config) {
				c.Controllers[0].ControlMethod = "gpio"
			},
			wantErr: "control_method",
		},
		{
			name: "negative water target",
			mutate: func(c *Config) {
				c.Controllers[0].Soil.TargetMmPerDay = -1
			},
			wantErr: "target_mm_per_day",
		},
		{
			name: "controller without stations",
			mutate: func(c *Config) {
				c.Controllers[0].Stations = nil
				c.Controllers[0].Schedule = nil
			},
			wantErr: "at least one station",
		},
		{
			name: "duplicate station id",
			mutate: func(c *Config) {
				c.Controllers[0].Stations[1].ID = 1
			},
			wantErr: "duplicate station id",
		},
		{
			name: "zero station area",
			mutate: func(c *Config) {
				c.Controllers[0].Stations[0].AreaM2 = 0
			},
			wantErr: "area_m2 must be positive",
		},
		{
			name: "zero station flow",
			mutate: func(c *Config) {
				c.Controllers[0].Stations[0].FlowLpm = 0
			},
			wantErr: "flow_lpm must be positive",
		},
		{
			name: "schedule references unknown station",
			mutate: func(c *Config) {
				c.Controllers[0].Schedule[0].StationID = 99
			},
			wantErr: "unknown station",
		},
		{
			name: "unparsable start time",
			mutate: func(c *Config) {
				c.Controllers[0].Schedule[0].Start = "6am"
			},
			wantErr: "time of day",
		},
		{
			name: "zero duration entry",
			mutate: func(c *Config) {
				c.Controllers[0].Schedule[0].DurationMin = 0
			},
			wantErr: "duration",
		},
		{
			name: "bad recurrence day",
			mutate: func(c *Config) {
				c.Controllers[0].Schedule[1].Days = []string{"mon", "funday"}
			},
			wantErr: "weekday",
		},
		{
			name: "overlapping entries same station",
			mutate: func(c *Config) {
				c.Controllers[0].Schedule = []ScheduleEntryConfig{
					{StationID: 1, Start: "06:00", DurationMin: 60, Enabled: true},
					{StationID: 1, Start: "06:30", DurationMin: 30, Enabled: true},
				}
			},
			wantErr: "overlap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("Validate() error = %v, want ErrConfigInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

// ─── Duration Getter Tests ───

func TestDurationGetters(t *testing.T) {
	cfg := validConfig()

	if got := cfg.API.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.Weather.GetCacheTimeout(); got != 5*time.Minute {
		t.Errorf("GetCacheTimeout() = %v, want 5m", got)
	}
	if got := cfg.Weather.GetFetchTimeout(); got != 10*time.Second {
		t.Errorf("GetFetchTimeout() = %v, want 10s", got)
	}
	if got := cfg.Coordinator.GetTickInterval(); got != 10*time.Second {
		t.Errorf("GetTickInterval() = %v, want 10s", got)
	}
	if got := cfg.Coordinator.GetActuationTimeout(); got != 30*time.Second {
		t.Errorf("GetActuationTimeout() = %v, want 30s", got)
	}
}

// ─── Builder Tests ───

func TestBuildStations(t *testing.T) {
	cc := validConfig().Controllers[0]

	stations := cc.BuildStations()
	if len(stations) != 2 {
		t.Fatalf("len(stations) = %d, want 2", len(stations))
	}
	if stations[0].ID != 1 || stations[0].AreaM2 != 40 || stations[0].FlowLpm != 12 {
		t.Errorf("station 1 = %+v, want id 1 area 40 flow 12", stations[0])
	}
}

func TestBuildSchedule(t *testing.T) {
	cc := validConfig().Controllers[0]

	entries := cc.BuildSchedule()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].StationID != 1 {
		t.Errorf("entries[0].StationID = %d, want 1", entries[0].StationID)
	}
	if entries[0].Start.Hour != 6 || entries[0].Start.Minute != 0 {
		t.Errorf("entries[0].Start = %+v, want 06:00", entries[0].Start)
	}
	if len(entries[1].Days) != 3 {
		t.Errorf("entries[1].Days = %v, want 3 days", entries[1].Days)
	}
	if entries[1].Days[0] != time.Monday {
		t.Errorf("entries[1].Days[0] = %v, want Monday", entries[1].Days[0])
	}
}
