package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/aqua-core/internal/infrastructure/logging"
	"github.com/nerrad567/aqua-core/internal/station"
)

// Time handling constants.
const (
	// dueTolerance is the window after an entry's start time during which
	// the entry counts as due. Must exceed the control loop tick so no
	// entry can fall between two ticks.
	dueTolerance = 59 * time.Second

	// rolloverGrace delays the daily reset slightly past midnight so a
	// cycle straddling the boundary finishes against the old day.
	rolloverGrace = 5 * time.Minute

	// dateLayout is the local-day key format.
	dateLayout = "2006-01-02"
)

// Store owns one controller's schedule entries and daily station totals.
//
// Concurrency contract: all mutating operations are serialized through an
// internal mutex (single-writer). Reads return copies and may be called
// concurrently. No other component mutates DailyStationState directly.
type Store struct {
	controllerID string
	stations     map[int]station.Station
	entries      []station.ScheduleEntry
	location     *time.Location
	repo         Repository
	logger       *logging.Logger

	mu          sync.Mutex
	date        string
	day         map[int]*DailyStationState
	totalLitres float64
	activeRun   *ActiveRun
}

// NewStore creates a store for one controller and loads any persisted
// state for the current local day, the cumulative water total, and the
// active-run marker.
//
// Parameters:
//   - ctx: Context for the initial load
//   - controllerID: Controller this store belongs to
//   - stations: Immutable station definitions (from configuration)
//   - entries: Schedule entries, pre-validated by configuration
//   - loc: Local timezone for day boundaries
//   - repo: Persistence backend
//   - logger: Component logger
func NewStore(ctx context.Context, controllerID string, stations []station.Station,
	entries []station.ScheduleEntry, loc *time.Location, repo Repository, logger *logging.Logger) (*Store, error) {

	s := &Store{
		controllerID: controllerID,
		stations:     make(map[int]station.Station, len(stations)),
		entries:      entries,
		location:     loc,
		repo:         repo,
		logger:       logger.With("component", "schedule", "controller", controllerID),
		day:          make(map[int]*DailyStationState),
	}
	for _, st := range stations {
		s.stations[st.ID] = st
	}

	now := time.Now().In(loc)
	s.date = now.Format(dateLayout)
	s.resetDayLocked()

	if err := s.load(ctx); err != nil {
		return nil, fmt.Errorf("loading schedule state: %w", err)
	}

	return s, nil
}

// load restores persisted state at startup.
func (s *Store) load(ctx context.Context) error {
	states, err := s.repo.LoadDay(ctx, s.controllerID, s.date)
	if err != nil {
		return err
	}
	for _, st := range states {
		if _, ok := s.stations[st.StationID]; !ok {
			// Station removed from config since the state was written.
			continue
		}
		copied := st
		s.day[st.StationID] = &copied
	}

	total, err := s.repo.TotalLitres(ctx, s.controllerID)
	if err != nil {
		return err
	}
	s.totalLitres = total

	run, err := s.repo.LoadActiveRun(ctx, s.controllerID)
	if err != nil {
		return err
	}
	s.activeRun = run

	return nil
}

// resetDayLocked initialises zeroed daily state for every station.
// Caller must hold s.mu (or have exclusive access during construction).
func (s *Store) resetDayLocked() {
	s.day = make(map[int]*DailyStationState, len(s.stations))
	for id := range s.stations {
		s.day[id] = &DailyStationState{StationID: id, Date: s.date}
	}
}

// Entries returns the controller's schedule entries.
func (s *Store) Entries() []station.ScheduleEntry {
	out := make([]station.ScheduleEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Station looks up a station definition by id.
func (s *Store) Station(id int) (station.Station, bool) {
	st, ok := s.stations[id]
	return st, ok
}

// Stations returns all station definitions, ordered by id.
func (s *Store) Stations() []station.Station {
	out := make([]station.Station, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EntriesDueAt returns the entries whose start time matches now within the
// tolerance window, whose recurrence rule is satisfied, and whose entry and
// station are both enabled. The result is ordered by ascending station id
// (then start time) so the coordinator's tie-break is deterministic.
func (s *Store) EntriesDueAt(now time.Time) []station.ScheduleEntry {
	local := now.In(s.location)

	var due []station.ScheduleEntry
	for _, e := range s.entries {
		if !e.Enabled || !e.DueOn(local.Weekday()) {
			continue
		}
		st, ok := s.stations[e.StationID]
		if !ok || !st.Enabled {
			continue
		}
		start := e.Start.At(local)
		if local.Before(start) || local.Sub(start) >= dueTolerance {
			continue
		}
		due = append(due, e)
	}

	station.SortEntries(due)
	return due
}

// RecordDelivery updates a station's daily totals after a run completes or
// is aborted. Totals are monotonic within a day: negative deltas are
// clamped to zero, so totals never decrease.
//
// The delivery is appended to the persistent log and the daily row is
// written through.
func (s *Store) RecordDelivery(ctx context.Context, stationID int, minutesRun float64) error {
	st, ok := s.stations[stationID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownStation, stationID)
	}

	if minutesRun < 0 {
		minutesRun = 0
	}
	mm := minutesRun * st.MMPerMinute()
	litres := minutesRun * st.FlowLpm
	now := time.Now().In(s.location)

	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.day[stationID]
	day.AppliedMinutes += minutesRun
	day.AppliedMm += mm
	day.LastSprinkleEnd = now
	s.totalLitres += litres

	if err := s.repo.SaveDay(ctx, s.controllerID, *day); err != nil {
		return err
	}
	if err := s.repo.AppendDelivery(ctx, s.controllerID, Delivery{
		StationID:  stationID,
		Minutes:    minutesRun,
		Mm:         mm,
		Litres:     litres,
		RecordedAt: now,
	}); err != nil {
		return err
	}

	s.logger.Info("delivery recorded",
		"station", stationID,
		"minutes", minutesRun,
		"mm", mm,
		"litres", litres,
	)
	return nil
}

// RolloverIfNewDay resets all daily station state exactly once when the
// local date changes. Idempotent: calling it repeatedly within the same
// day is a no-op. A short grace period after midnight delays the reset so
// a run finishing just past the boundary is still recorded against the
// day it started.
//
// Returns true if a rollover occurred.
func (s *Store) RolloverIfNewDay(ctx context.Context, now time.Time) (bool, error) {
	effective := now.In(s.location).Add(-rolloverGrace)
	date := effective.Format(dateLayout)

	s.mu.Lock()
	defer s.mu.Unlock()

	if date == s.date {
		return false, nil
	}

	s.logger.Info("daily rollover", "from", s.date, "to", date)
	s.date = date
	s.resetDayLocked()

	if err := s.repo.DeleteDaysBefore(ctx, s.controllerID, date); err != nil {
		// Pruning failure is not fatal; old rows are just dead weight.
		s.logger.Warn("failed to prune old daily state", "error", err)
	}
	for _, day := range s.day {
		if err := s.repo.SaveDay(ctx, s.controllerID, *day); err != nil {
			return true, err
		}
	}
	return true, nil
}

// DayState returns a copy of one station's daily totals.
func (s *Store) DayState(stationID int) (DailyStationState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.day[stationID]
	if !ok {
		return DailyStationState{}, false
	}
	return *day, true
}

// AllDayStates returns copies of every station's daily totals, ordered by
// station id.
func (s *Store) AllDayStates() []DailyStationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DailyStationState, 0, len(s.day))
	for _, day := range s.day {
		out = append(out, *day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out
}

// SetForecastRemaining publishes the latest water-balance result for a
// station. Kept in memory only; it is recomputed every cycle and persisted
// opportunistically with the next delivery.
func (s *Store) SetForecastRemaining(stationID int, mm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if day, ok := s.day[stationID]; ok {
		day.ForecastRemainingMm = mm
	}
}

// TotalWaterLitres returns the controller's cumulative water consumption
// across all days.
func (s *Store) TotalWaterLitres() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLitres
}

// SetActiveRun persists the active-run marker for restart safety.
func (s *Store) SetActiveRun(ctx context.Context, run ActiveRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRun = &run
	return s.repo.SaveActiveRun(ctx, s.controllerID, run)
}

// ClearActiveRun removes the active-run marker.
func (s *Store) ClearActiveRun(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRun = nil
	return s.repo.ClearActiveRun(ctx, s.controllerID)
}

// ActiveRun returns the persisted active-run marker, or nil.
func (s *Store) ActiveRun() *ActiveRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeRun == nil {
		return nil
	}
	copied := *s.activeRun
	return &copied
}
