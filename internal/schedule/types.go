package schedule

import "time"

// DailyStationState holds one station's accumulated totals for one local
// calendar day. Created at rollover, mutated only by the Store.
type DailyStationState struct {
	StationID           int       `json:"station_id"`
	Date                string    `json:"date"` // YYYY-MM-DD, local timezone
	AppliedMinutes      float64   `json:"applied_minutes"`
	AppliedMm           float64   `json:"applied_mm"`
	ForecastRemainingMm float64   `json:"forecast_remaining_mm"`
	LastSprinkleEnd     time.Time `json:"last_sprinkle_end,omitzero"`
}

// ActiveRun marks a station that has been switched on, with the window it
// was commanded for. Persisted so that after a crash or restart a stale
// valve can be switched off.
type ActiveRun struct {
	StationID int       `json:"station_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
}

// Delivery is one recorded watering, appended to the delivery log.
type Delivery struct {
	StationID  int
	Minutes    float64
	Mm         float64
	Litres     float64
	RecordedAt time.Time
}
