// Package waterbalance computes how much irrigation each station still
// needs today.
//
// Everything in this package is a pure function of its inputs: no I/O, no
// clocks, no mutable state. The coordinator recomputes the balance on every
// cycle with the latest weather snapshot, so the same inputs must always
// produce the same output.
package waterbalance

import (
	"math"

	"github.com/nerrad567/aqua-core/internal/station"
	"github.com/nerrad567/aqua-core/internal/weather"
)

// Config holds the water-balance target settings for one controller.
type Config struct {
	// TargetMmPerDay is the irrigation depth each station should receive
	// per day, before rain adjustments.
	TargetMmPerDay float64

	// SprinkleWithRain disables rain offsetting: when true, rain is
	// informational only and stations receive the full target regardless
	// of rainfall.
	SprinkleWithRain bool

	// WeatherEnabled is false when no provider is configured. Rain fields
	// are then ignored entirely rather than trusted to be zero.
	WeatherEnabled bool
}

// DayState is the subset of a station's daily totals the model needs.
type DayState struct {
	AppliedMm float64
}

// RemainingMm returns the irrigation depth still owed to a station today.
//
// The balance is:
//
//	remaining = target - delivered - expectedFutureRain
//
// where delivered includes rain already fallen (unless SprinkleWithRain is
// set) and expectedFutureRain is the forecast total minus what has already
// fallen. The result is clamped to zero; a station is never owed negative
// water.
func RemainingMm(st station.Station, day DayState, wx weather.Snapshot, cfg Config) float64 {
	target := cfg.TargetMmPerDay

	delivered := day.AppliedMm
	futureRain := 0.0

	if cfg.WeatherEnabled && !cfg.SprinkleWithRain {
		delivered += wx.RainMmToday
		futureRain = math.Max(0, wx.ForecastedRainMmToday-wx.RainMmToday)
	}

	return math.Max(0, target-delivered-futureRain)
}

// MinutesFor converts an irrigation depth into whole minutes of runtime
// for a station, rounding up so the station never under-delivers.
//
//	litres  = mm × area
//	minutes = litres / flow
func MinutesFor(st station.Station, mm float64) int {
	if mm <= 0 || st.FlowLpm <= 0 {
		return 0
	}
	litres := mm * st.AreaM2
	return int(math.Ceil(litres / st.FlowLpm))
}

// MmForMinutes converts minutes of runtime into delivered depth.
// Inverse of MinutesFor, used when recording actual deliveries.
func MmForMinutes(st station.Station, minutes float64) float64 {
	if minutes <= 0 {
		return 0
	}
	return minutes * st.MMPerMinute()
}

// LitresForMinutes returns the water volume delivered by a run.
func LitresForMinutes(st station.Station, minutes float64) float64 {
	if minutes <= 0 {
		return 0
	}
	return minutes * st.FlowLpm
}
