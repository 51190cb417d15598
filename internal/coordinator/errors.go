package coordinator

import "errors"

// Sentinel errors for coordinator operations.
var (
	// ErrQueueFull is returned when the manual command queue is at
	// capacity. The caller should surface this as backpressure rather
	// than retry immediately.
	ErrQueueFull = errors.New("coordinator: command queue full")

	// ErrNotRunning is returned when a command is submitted before Start
	// or after Stop.
	ErrNotRunning = errors.New("coordinator: not running")

	// ErrUnknownStation is returned for manual commands referencing a
	// station not configured on this controller.
	ErrUnknownStation = errors.New("coordinator: unknown station")
)
