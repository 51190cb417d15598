package weather

import "time"

// Snapshot is a normalized, timestamped weather reading regardless of
// origin provider.
//
// Invariant: ForecastedRainMmToday >= RainMmToday (the forecast includes
// rain that has already fallen), and FetchedAt is monotonically
// non-decreasing across successive snapshots from the same adapter.
type Snapshot struct {
	HasRainedToday        bool      `json:"has_rained_today"`
	IsRainingNow          bool      `json:"is_raining_now"`
	WillRainToday         bool      `json:"will_rain_today"`
	LastRain              time.Time `json:"last_rain,omitzero"`
	RainMinutesToday      float64   `json:"rain_minutes_today"`
	RainMmToday           float64   `json:"rain_mm_today"`
	ForecastedRainMmToday float64   `json:"forecasted_rain_mm_today"`
	FetchedAt             time.Time `json:"fetched_at"`
}

// Neutral returns the snapshot served when no provider is configured:
// all rain fields zero, so the water-balance model behaves rain-unaware
// without special-casing.
func Neutral(now time.Time) Snapshot {
	return Snapshot{FetchedAt: now}
}

// Observation is a single raw reading from a provider, before the adapter
// folds it into the day's accumulated snapshot.
type Observation struct {
	// IsRaining reports whether precipitation is falling right now.
	IsRaining bool

	// RainRateMmPerHour is the current precipitation rate. Zero when
	// IsRaining is false.
	RainRateMmPerHour float64

	// ForecastMmRemaining is the rain expected between now and local
	// end of day, excluding rain that has already fallen.
	ForecastMmRemaining float64

	// WillRain reports whether any remaining period today exceeds the
	// configured rain probability threshold.
	WillRain bool
}
