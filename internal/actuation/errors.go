package actuation

import "errors"

// Sentinel errors for actuation operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConflict is returned when a start is attempted while another
	// station on the same controller is active. The coordinator enforces
	// exclusivity before dispatch; backends defend the invariant too.
	ErrConflict = errors.New("actuation: another station is active")

	// ErrBackendRejected is returned when the backend refuses a command
	// (publish failure, hardware NACK).
	ErrBackendRejected = errors.New("actuation: backend rejected command")

	// ErrTimeout is returned when a command is not acknowledged within
	// the caller's await window.
	ErrTimeout = errors.New("actuation: command timed out")

	// ErrUnknownStation is returned when a command references a station
	// the backend was not configured with.
	ErrUnknownStation = errors.New("actuation: unknown station")
)
