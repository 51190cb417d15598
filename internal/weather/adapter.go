package weather

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nerrad567/aqua-core/internal/infrastructure/logging"
)

// Source is the provider capability: one implementation per upstream
// weather service. Implementations must be safe for concurrent use.
type Source interface {
	// Name identifies the provider ("openweathermap", "pirateweather", "none").
	Name() string

	// Fetch retrieves a fresh observation. It must honour ctx cancellation
	// and return ErrSourceUnavailable (wrapped) on transport failures.
	Fetch(ctx context.Context) (Observation, error)
}

// breaker tuning. Three consecutive failures open the circuit; while open,
// fetches fail fast and the adapter serves the stale snapshot without
// waiting on the network.
const (
	breakerConsecutiveFailures = 3
	breakerOpenTimeout         = 2 * time.Minute
)

// Adapter owns the canonical weather snapshot: it refreshes from the
// configured Source on a cache timeout, accumulates today's rain totals
// across refreshes, and keeps serving the last good snapshot when the
// source fails.
//
// Thread Safety: all methods are safe for concurrent use. The coordinator
// holds only read-only copies of the snapshot.
type Adapter struct {
	src          Source
	cacheTimeout time.Duration
	fetchTimeout time.Duration
	logger       *logging.Logger
	breaker      *gobreaker.CircuitBreaker
	now          func() time.Time

	mu       sync.Mutex
	snap     Snapshot
	degraded bool
	// lastObserved is when the previous successful observation was taken,
	// used to integrate rain rate into RainMmToday.
	lastObserved time.Time
}

// NewAdapter creates an adapter around a provider source.
//
// Parameters:
//   - src: Provider implementation (use NewNoneSource for rain-unaware operation)
//   - cacheTimeout: How long a snapshot stays fresh before a refresh is triggered
//   - fetchTimeout: Upper bound on a single provider fetch
//   - logger: Component logger
func NewAdapter(src Source, cacheTimeout, fetchTimeout time.Duration, logger *logging.Logger) *Adapter {
	a := &Adapter{
		src:          src,
		cacheTimeout: cacheTimeout,
		fetchTimeout: fetchTimeout,
		logger:       logger.With("component", "weather"),
		now:          time.Now,
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "weather-" + src.Name(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		Timeout: breakerOpenTimeout,
		OnStateChange: func(_ string, from, to gobreaker.State) {
			a.logger.Warn("weather circuit breaker state change",
				"from", from.String(), "to", to.String())
		},
	})
	return a
}

// SetClock overrides the time source. Intended for tests.
func (a *Adapter) SetClock(now func() time.Time) {
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

// ProviderName returns the configured provider's name.
func (a *Adapter) ProviderName() string {
	return a.src.Name()
}

// CurrentSnapshot returns the cached snapshot if it is still fresh,
// otherwise triggers a refresh first. On refresh failure the stale
// snapshot is returned and the degraded flag is raised; the caller is
// never blocked longer than the fetch timeout.
func (a *Adapter) CurrentSnapshot(ctx context.Context) Snapshot {
	a.mu.Lock()
	fresh := !a.snap.FetchedAt.IsZero() && a.now().Sub(a.snap.FetchedAt) < a.cacheTimeout
	snap := a.snap
	a.mu.Unlock()

	if fresh {
		return snap
	}
	return a.Refresh(ctx)
}

// Refresh forces a fetch from the source and returns the resulting
// snapshot. The coordinator calls this before a decision cycle when it
// wants data no older than the cycle itself.
func (a *Adapter) Refresh(ctx context.Context) Snapshot {
	fetchCtx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.src.Fetch(fetchCtx)
	})

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		a.degraded = true
		a.logger.Warn("weather refresh failed, serving stale snapshot",
			"provider", a.src.Name(),
			"error", err,
			"stale_since", a.snap.FetchedAt,
		)
		return a.snap
	}

	obs, ok := result.(Observation)
	if !ok {
		// Unreachable unless the breaker contract changes.
		a.degraded = true
		return a.snap
	}

	a.fold(obs)
	a.degraded = false
	return a.snap
}

// fold merges a fresh observation into the day's accumulated snapshot.
// Caller must hold a.mu.
func (a *Adapter) fold(obs Observation) {
	now := a.now()

	// Integrate rain fallen since the previous observation. The rate is
	// taken from the current reading; with cache timeouts of a few minutes
	// the approximation error is negligible.
	if obs.IsRaining && !a.lastObserved.IsZero() {
		elapsed := now.Sub(a.lastObserved)
		// Clamp so a long outage does not count as continuous rain.
		if elapsed > 2*a.cacheTimeout {
			elapsed = 2 * a.cacheTimeout
		}
		a.snap.RainMinutesToday += elapsed.Minutes()
		a.snap.RainMmToday += obs.RainRateMmPerHour * elapsed.Hours()
	}
	if obs.IsRaining {
		a.snap.HasRainedToday = true
		a.snap.LastRain = now
	}
	a.snap.IsRainingNow = obs.IsRaining
	a.snap.WillRainToday = obs.WillRain || obs.IsRaining

	// The published forecast always includes rain already fallen.
	forecast := a.snap.RainMmToday + obs.ForecastMmRemaining
	if forecast < a.snap.RainMmToday {
		forecast = a.snap.RainMmToday
	}
	a.snap.ForecastedRainMmToday = forecast

	// FetchedAt must never move backwards, even with a test clock.
	if now.After(a.snap.FetchedAt) {
		a.snap.FetchedAt = now
	}
	a.lastObserved = now
}

// Degraded reports whether the adapter is serving stale data because the
// source is failing.
func (a *Adapter) Degraded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.degraded
}

// RolloverDay resets the day's rain accumulators. Called by the
// coordinator when the local date changes.
func (a *Adapter) RolloverDay() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snap.HasRainedToday = false
	a.snap.RainMinutesToday = 0
	a.snap.RainMmToday = 0
	a.snap.ForecastedRainMmToday = 0
	a.snap.LastRain = time.Time{}
}

// HealthCheck reports the adapter's ability to serve snapshots. A degraded
// adapter is still healthy: stale data is served by design.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("weather health check: %w", ctx.Err())
	default:
	}
	return nil
}
