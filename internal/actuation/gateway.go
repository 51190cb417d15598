package actuation

import (
	"context"
	"time"

	"github.com/nerrad567/aqua-core/internal/station"
)

// Gateway is the uniform actuation contract, regardless of the control
// method configured for the controller.
//
// Implementations must be safe for concurrent use, although the
// coordinator issues commands strictly sequentially per controller.
type Gateway interface {
	// Start switches a station on for the given duration. Returns
	// ErrConflict if another station is already active.
	Start(ctx context.Context, st station.Station, duration time.Duration) (*Pending, error)

	// Stop switches a station off. Stopping an already-stopped station
	// resolves immediately as a success.
	Stop(ctx context.Context, stationID int) (*Pending, error)

	// StopAll switches every station off, best effort.
	StopAll(ctx context.Context) error

	// Power switches the controller's master power relay.
	Power(ctx context.Context, on bool) error

	// Active reports the station the gateway currently believes is
	// running, if any.
	Active() (stationID int, ok bool)
}
