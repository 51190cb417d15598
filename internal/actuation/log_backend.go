package actuation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/aqua-core/internal/infrastructure/logging"
	"github.com/nerrad567/aqua-core/internal/station"
)

// LogBackend is a dry-run gateway: commands succeed immediately and are
// only logged. Used in dev mode and by tests that need a gateway with
// real exclusivity semantics but no hardware.
type LogBackend struct {
	logger *logging.Logger

	mu     sync.Mutex
	active int
}

// NewLogBackend creates a dry-run gateway.
func NewLogBackend(logger *logging.Logger) *LogBackend {
	return &LogBackend{
		logger: logger.With("component", "actuation", "backend", "log"),
	}
}

// Start implements Gateway.
func (b *LogBackend) Start(_ context.Context, st station.Station, duration time.Duration) (*Pending, error) {
	b.mu.Lock()
	if b.active != 0 && b.active != st.ID {
		other := b.active
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: station %d", ErrConflict, other)
	}
	b.active = st.ID
	b.mu.Unlock()

	b.logger.Info("dry-run start", "station", st.ID, "duration", duration)

	pending := newPending(newCommand(KindStart, st.ID, duration))
	pending.resolve(Result{Status: StatusSucceeded})
	return pending, nil
}

// Stop implements Gateway.
func (b *LogBackend) Stop(_ context.Context, stationID int) (*Pending, error) {
	b.mu.Lock()
	if b.active == stationID {
		b.active = 0
	}
	b.mu.Unlock()

	b.logger.Info("dry-run stop", "station", stationID)

	pending := newPending(newCommand(KindStop, stationID, 0))
	pending.resolve(Result{Status: StatusSucceeded})
	return pending, nil
}

// StopAll implements Gateway.
func (b *LogBackend) StopAll(_ context.Context) error {
	b.mu.Lock()
	b.active = 0
	b.mu.Unlock()
	b.logger.Info("dry-run stop all")
	return nil
}

// Power implements Gateway.
func (b *LogBackend) Power(_ context.Context, on bool) error {
	b.logger.Info("dry-run power", "on", on)
	return nil
}

// Active implements Gateway.
func (b *LogBackend) Active() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active, b.active != 0
}
