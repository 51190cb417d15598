package schedule

import "errors"

// Sentinel errors for schedule operations.
var (
	// ErrUnknownStation is returned when an operation references a station
	// id that is not configured on this controller.
	ErrUnknownStation = errors.New("schedule: unknown station")
)
