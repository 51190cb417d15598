package coordinator

import (
	"time"

	"github.com/nerrad567/aqua-core/internal/weather"
)

// State is the coordinator's position in the actuation protocol.
type State string

// Coordinator states.
const (
	StateIdle          State = "idle"
	StateAwaitingStart State = "awaiting_start"
	StateRunning       State = "running"
	StateAwaitingStop  State = "awaiting_stop"
)

// ManualKind identifies a manual command submitted from outside the
// control loop (API, MQTT command topic).
type ManualKind string

// Manual command kinds.
const (
	ManualStart   ManualKind = "start"
	ManualStop    ManualKind = "stop"
	ManualStopAll ManualKind = "stop_all"
	ManualPower   ManualKind = "power"
)

// ManualCommand is one external request queued for the control loop.
// Commands are drained in arrival order at the top of each cycle; a
// manual stop or power-off preempts any scheduled transition evaluated
// in the same tick.
type ManualCommand struct {
	Kind      ManualKind
	StationID int
	// Duration applies to ManualStart; zero means the station's
	// configured manual default.
	Duration time.Duration
	// PowerOn applies to ManualPower.
	PowerOn bool
}

// StationStatus is the published per-station projection.
type StationStatus struct {
	ID                  int       `json:"id"`
	Name                string    `json:"name"`
	Enabled             bool      `json:"enabled"`
	Running             bool      `json:"running"`
	AppliedMinutes      float64   `json:"applied_minutes_today"`
	AppliedMm           float64   `json:"applied_mm_today"`
	ForecastRemainingMm float64   `json:"forecast_remaining_mm"`
	LastSprinkleEnd     time.Time `json:"last_sprinkle_end,omitzero"`
}

// Status is the controller's published state: a pure projection of the
// store, gateway and weather adapter, recomputed on every read.
type Status struct {
	ControllerID     string           `json:"controller_id"`
	PowerOn          bool             `json:"power_on"`
	State            State            `json:"state"`
	ActiveStation    int              `json:"active_station,omitempty"`
	EndDeadline      time.Time        `json:"end_deadline,omitzero"`
	TotalWaterLitres float64          `json:"total_water_litres"`
	Weather          weather.Snapshot `json:"weather"`
	WeatherDegraded  bool             `json:"weather_degraded"`
	Stations         []StationStatus  `json:"stations"`
	QueueDepth       int              `json:"queue_depth"`
}
