package weather

import "errors"

// Sentinel errors for weather operations.
var (
	// ErrSourceUnavailable indicates the upstream provider could not be
	// reached or returned an unusable response. The adapter recovers by
	// serving the last good snapshot and raising the degraded flag;
	// this error is never fatal to the control loop.
	ErrSourceUnavailable = errors.New("weather: source unavailable")

	// ErrBadResponse indicates the provider responded but the payload
	// could not be parsed into an observation.
	ErrBadResponse = errors.New("weather: malformed provider response")
)
