// Package weather normalizes heterogeneous provider payloads into one
// canonical snapshot and owns its refresh cadence.
//
// # Architecture
//
//	┌────────────────┐   Fetch()    ┌──────────────────────────┐
//	│    Adapter     │─────────────▶│ Source (one per provider)│
//	│  cache+breaker │◀─────────────│ owm / pirateweather /none│
//	└───────┬────────┘  Observation └──────────────────────────┘
//	        │ Snapshot (read-only copy)
//	        ▼
//	   Coordinator
//
// The Adapter caches the latest Snapshot for a configurable timeout and
// accumulates the day's rain totals across refreshes. Provider failures
// never propagate to the control loop: the last good snapshot keeps being
// served and Degraded() reports the condition. A circuit breaker stops
// hammering a failing provider.
//
// Providers only report raw observations (raining now, rate, rest-of-day
// forecast); all day-level accounting lives in the Adapter so every
// provider behaves identically.
package weather
