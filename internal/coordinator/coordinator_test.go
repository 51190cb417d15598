package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/aqua-core/internal/actuation"
	"github.com/nerrad567/aqua-core/internal/infrastructure/config"
	"github.com/nerrad567/aqua-core/internal/infrastructure/logging"
	"github.com/nerrad567/aqua-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/aqua-core/internal/schedule"
	"github.com/nerrad567/aqua-core/internal/station"
	"github.com/nerrad567/aqua-core/internal/waterbalance"
	"github.com/nerrad567/aqua-core/internal/weather"
)

// memRepo is an in-memory schedule.Repository.
type memRepo struct {
	days       map[string]map[int]schedule.DailyStationState
	deliveries []schedule.Delivery
	totals     float64
	active     *schedule.ActiveRun
}

func newMemRepo() *memRepo {
	return &memRepo{days: make(map[string]map[int]schedule.DailyStationState)}
}

func (r *memRepo) LoadDay(_ context.Context, _ string, date string) ([]schedule.DailyStationState, error) {
	var out []schedule.DailyStationState
	for _, st := range r.days[date] {
		out = append(out, st)
	}
	return out, nil
}

func (r *memRepo) SaveDay(_ context.Context, _ string, state schedule.DailyStationState) error {
	if r.days[state.Date] == nil {
		r.days[state.Date] = make(map[int]schedule.DailyStationState)
	}
	r.days[state.Date][state.StationID] = state
	return nil
}

func (r *memRepo) DeleteDaysBefore(_ context.Context, _ string, date string) error {
	for d := range r.days {
		if d < date {
			delete(r.days, d)
		}
	}
	return nil
}

func (r *memRepo) AppendDelivery(_ context.Context, _ string, d schedule.Delivery) error {
	r.deliveries = append(r.deliveries, d)
	return nil
}

func (r *memRepo) TotalLitres(_ context.Context, _ string) (float64, error) {
	return r.totals, nil
}

func (r *memRepo) SaveActiveRun(_ context.Context, _ string, run schedule.ActiveRun) error {
	r.active = &run
	return nil
}

func (r *memRepo) LoadActiveRun(_ context.Context, _ string) (*schedule.ActiveRun, error) {
	return r.active, nil
}

func (r *memRepo) ClearActiveRun(_ context.Context, _ string) error {
	r.active = nil
	return nil
}

// fakeWeather serves a settable snapshot.
type fakeWeather struct {
	snap      weather.Snapshot
	degraded  bool
	rollovers int
}

func (w *fakeWeather) CurrentSnapshot(_ context.Context) weather.Snapshot { return w.snap }
func (w *fakeWeather) Degraded() bool                                     { return w.degraded }
func (w *fakeWeather) RolloverDay()                                       { w.rollovers++ }
func (w *fakeWeather) ProviderName() string                               { return "test" }

// failGateway rejects every start, for retry-exhaustion tests.
type failGateway struct {
	startCalls int
	stopCalls  []int
	stopAlls   int
}

func (g *failGateway) Start(_ context.Context, _ station.Station, _ time.Duration) (*actuation.Pending, error) {
	g.startCalls++
	return nil, actuation.ErrBackendRejected
}

func (g *failGateway) Stop(_ context.Context, stationID int) (*actuation.Pending, error) {
	g.stopCalls = append(g.stopCalls, stationID)
	return nil, errors.New("backend unreachable")
}

func (g *failGateway) StopAll(_ context.Context) error       { g.stopAlls++; return nil }
func (g *failGateway) Power(_ context.Context, _ bool) error { return nil }
func (g *failGateway) Active() (int, bool)                   { return 0, false }

// silentClient accepts publishes and subscriptions but never reports any
// valve feedback, so every pending command times out.
type silentClient struct{}

func (silentClient) Publish(_ string, _ []byte, _ byte, _ bool) error        { return nil }
func (silentClient) Subscribe(_ string, _ byte, _ mqtt.MessageHandler) error { return nil }

// testClock is a manually advanced time source.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// testBase anchors the fake clock to the real current day so the store's
// day key and the clock agree. Nudged clear of the rollover grace window
// just after midnight.
func testBase() time.Time {
	base := time.Now().UTC().Truncate(time.Second)
	if base.Hour() == 0 && base.Minute() < 6 {
		base = base.Add(10 * time.Minute)
	}
	return base
}

func coordStations() []station.Station {
	return []station.Station{
		{ID: 1, Name: "Lawn", AreaM2: 40, FlowLpm: 12, Enabled: true, ManualDurationMin: 15},
		{ID: 2, Name: "Beds", AreaM2: 15, FlowLpm: 6, Enabled: true, ManualDurationMin: 10},
	}
}

// dueEntry builds an entry that is due at exactly the given instant.
func dueEntry(stationID, durationMin int, at time.Time) station.ScheduleEntry {
	return station.ScheduleEntry{
		StationID:   stationID,
		Start:       station.TimeOfDay{Hour: at.Hour(), Minute: at.Minute(), Second: at.Second()},
		DurationMin: durationMin,
		Enabled:     true,
	}
}

type harness struct {
	coord *Coordinator
	repo  *memRepo
	wx    *fakeWeather
	clock *testClock
	store *schedule.Store
}

func newHarness(t *testing.T, entries []station.ScheduleEntry, gw actuation.Gateway, cfg config.CoordinatorConfig) *harness {
	t.Helper()

	repo := newMemRepo()
	store, err := schedule.NewStore(context.Background(), "garden", coordStations(), entries,
		time.UTC, repo, logging.Default())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if gw == nil {
		gw = actuation.NewLogBackend(logging.Default())
	}
	wx := &fakeWeather{}
	clock := &testClock{t: testBase()}

	coord, err := New(Deps{
		ControllerID: "garden",
		Config:       cfg,
		Balance:      waterBalanceCfg(),
		Store:        store,
		Weather:      wx,
		Gateway:      gw,
		Logger:       logging.Default(),
		Clock:        clock.now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &harness{coord: coord, repo: repo, wx: wx, clock: clock, store: store}
}

func waterBalanceCfg() waterbalance.Config {
	return waterbalance.Config{TargetMmPerDay: 5, WeatherEnabled: true}
}

func defaultCfg() config.CoordinatorConfig {
	return config.CoordinatorConfig{
		TickIntervalSeconds:    1,
		CommandQueueSize:       16,
		ActuationTimeoutSecs:   5,
		ActuationRetryAttempts: 1,
		CommandLogSize:         32,
	}
}

// ─── Scheduled Start Tests ───

func TestCycle_StartsDueStation(t *testing.T) {
	base := testBase()
	h := newHarness(t, []station.ScheduleEntry{dueEntry(1, 20, base)}, nil, defaultCfg())

	h.coord.cycle(context.Background())

	if got := h.coord.currentState(); got != StateRunning {
		t.Fatalf("state = %v, want running", got)
	}

	h.coord.mu.Lock()
	active, planned, deadline := h.coord.activeStation, h.coord.plannedMinutes, h.coord.endDeadline
	h.coord.mu.Unlock()

	if active != 1 {
		t.Errorf("active station = %d, want 1", active)
	}
	// Owed 5mm on 40m2 at 12lpm = 200 litres = 16.67 min, rounded up to 17,
	// below the 20 min entry cap.
	if planned != 17 {
		t.Errorf("planned minutes = %d, want 17", planned)
	}
	if want := base.Add(17 * time.Minute); !deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", deadline, want)
	}

	if h.repo.active == nil || h.repo.active.StationID != 1 {
		t.Error("active run not persisted")
	}
	recent := h.coord.CommandLog()
	if len(recent) == 0 || recent[0].Status != actuation.StatusSucceeded {
		t.Errorf("command log = %+v, want a succeeded start", recent)
	}
}

func TestCycle_PlannedCappedByEntryDuration(t *testing.T) {
	base := testBase()
	h := newHarness(t, []station.ScheduleEntry{dueEntry(1, 10, base)}, nil, defaultCfg())

	h.coord.cycle(context.Background())

	h.coord.mu.Lock()
	planned := h.coord.plannedMinutes
	h.coord.mu.Unlock()
	// Demand wants 17 minutes; the entry allows only 10.
	if planned != 10 {
		t.Errorf("planned minutes = %d, want 10 (entry cap)", planned)
	}
}

func TestCycle_SimultaneousDueLowestStationWins(t *testing.T) {
	base := testBase()
	entries := []station.ScheduleEntry{
		dueEntry(2, 20, base),
		dueEntry(1, 20, base),
	}
	h := newHarness(t, entries, nil, defaultCfg())

	h.coord.cycle(context.Background())

	h.coord.mu.Lock()
	active := h.coord.activeStation
	h.coord.mu.Unlock()
	if active != 1 {
		t.Errorf("active station = %d, want 1 (lowest id wins the tie)", active)
	}
}

func TestCycle_DeferredDueStationStartsAfterWinnerFinishes(t *testing.T) {
	base := testBase()
	entries := []station.ScheduleEntry{
		dueEntry(1, 20, base),
		dueEntry(2, 15, base),
	}
	h := newHarness(t, entries, nil, defaultCfg())

	h.coord.cycle(context.Background())
	h.coord.mu.Lock()
	active := h.coord.activeStation
	h.coord.mu.Unlock()
	if active != 1 {
		t.Fatalf("first run = station %d, want 1", active)
	}

	// Station 1 runs its full 17-minute window; station 2's due window is
	// long expired by the time it ends.
	h.clock.advance(18 * time.Minute)
	h.coord.cycle(context.Background())
	if h.coord.currentState() != StateIdle {
		t.Fatal("winner's run did not finish")
	}

	h.clock.advance(10 * time.Second)
	h.coord.cycle(context.Background())

	if got := h.coord.currentState(); got != StateRunning {
		t.Fatalf("state = %v, want running (station 2 deferred, not dropped)", got)
	}
	h.coord.mu.Lock()
	active, planned := h.coord.activeStation, h.coord.plannedMinutes
	h.coord.mu.Unlock()
	if active != 2 {
		t.Errorf("active station = %d, want 2", active)
	}
	// Owed 5mm on 15m2 at 6lpm = 75 litres = 12.5 min, rounded up to 13,
	// below the 15 min entry cap.
	if planned != 13 {
		t.Errorf("planned minutes = %d, want 13", planned)
	}
}

func TestCycle_RainHoldDefersDueEntry(t *testing.T) {
	base := testBase()
	h := newHarness(t, []station.ScheduleEntry{dueEntry(1, 20, base)}, nil, defaultCfg())
	h.wx.snap = weather.Snapshot{IsRainingNow: true, FetchedAt: base}

	h.coord.cycle(context.Background())
	if h.coord.currentState() != StateIdle {
		t.Fatal("start not suppressed while raining")
	}

	// The shower passes without delivering enough to cancel the demand.
	h.clock.advance(2 * time.Minute)
	h.wx.snap = weather.Snapshot{RainMmToday: 1, ForecastedRainMmToday: 1, FetchedAt: h.clock.now()}
	h.coord.cycle(context.Background())

	if got := h.coord.currentState(); got != StateRunning {
		t.Fatalf("state = %v, want running once rain clears", got)
	}
	h.coord.mu.Lock()
	planned := h.coord.plannedMinutes
	h.coord.mu.Unlock()
	// 1mm fell, 4mm still owed: 160 litres at 12lpm = 13.34 → 14 minutes.
	if planned != 14 {
		t.Errorf("planned minutes = %d, want 14", planned)
	}
}

func TestCycle_NoStartWhileRaining(t *testing.T) {
	base := testBase()
	h := newHarness(t, []station.ScheduleEntry{dueEntry(1, 20, base)}, nil, defaultCfg())
	h.wx.snap = weather.Snapshot{IsRainingNow: true, FetchedAt: base}

	h.coord.cycle(context.Background())

	if got := h.coord.currentState(); got != StateIdle {
		t.Errorf("state = %v, want idle (raining)", got)
	}
}

func TestCycle_NoStartWhenDemandMet(t *testing.T) {
	base := testBase()
	h := newHarness(t, []station.ScheduleEntry{dueEntry(1, 20, base)}, nil, defaultCfg())
	// Rain already delivered more than the 5mm daily target.
	h.wx.snap = weather.Snapshot{RainMmToday: 6, ForecastedRainMmToday: 6, FetchedAt: base}

	h.coord.cycle(context.Background())

	if got := h.coord.currentState(); got != StateIdle {
		t.Errorf("state = %v, want idle (no water owed)", got)
	}
	if len(h.repo.deliveries) != 0 {
		t.Errorf("deliveries = %+v, want none", h.repo.deliveries)
	}
}

// ─── Run Completion Tests ───

func TestCycle_DeadlineStopsRun(t *testing.T) {
	base := testBase()
	h := newHarness(t, []station.ScheduleEntry{dueEntry(1, 20, base)}, nil, defaultCfg())

	h.coord.cycle(context.Background())
	if h.coord.currentState() != StateRunning {
		t.Fatal("station did not start")
	}

	h.clock.advance(18 * time.Minute)
	h.coord.cycle(context.Background())

	if got := h.coord.currentState(); got != StateIdle {
		t.Fatalf("state = %v, want idle after deadline", got)
	}
	if len(h.repo.deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(h.repo.deliveries))
	}
	// 18 minutes elapsed, clamped to the 17 planned.
	if got := h.repo.deliveries[0].Minutes; got != 17 {
		t.Errorf("delivered minutes = %v, want 17 (clamped to planned)", got)
	}
	if h.repo.active != nil {
		t.Error("active run marker not cleared")
	}
}

func TestCycle_RainStopsRunEarly(t *testing.T) {
	base := testBase()
	h := newHarness(t, []station.ScheduleEntry{dueEntry(1, 20, base)}, nil, defaultCfg())

	h.coord.cycle(context.Background())
	h.clock.advance(5 * time.Minute)
	h.wx.snap = weather.Snapshot{IsRainingNow: true, FetchedAt: h.clock.now()}

	h.coord.cycle(context.Background())

	if got := h.coord.currentState(); got != StateIdle {
		t.Fatalf("state = %v, want idle after rain stop", got)
	}
	if len(h.repo.deliveries) != 1 || h.repo.deliveries[0].Minutes != 5 {
		t.Errorf("deliveries = %+v, want one 5-minute run", h.repo.deliveries)
	}
}

func TestCycle_DemandSatisfiedStopsRun(t *testing.T) {
	base := testBase()
	h := newHarness(t, []station.ScheduleEntry{dueEntry(1, 20, base)}, nil, defaultCfg())

	h.coord.cycle(context.Background())
	h.clock.advance(2 * time.Minute)
	// A downpour forecast arrives; the station no longer owes anything.
	// Not marked raining, so the demand check is what fires.
	h.wx.snap = weather.Snapshot{RainMmToday: 6, ForecastedRainMmToday: 6, FetchedAt: h.clock.now()}

	h.coord.cycle(context.Background())

	if got := h.coord.currentState(); got != StateIdle {
		t.Fatalf("state = %v, want idle after demand satisfied", got)
	}
	if len(h.repo.deliveries) != 1 || h.repo.deliveries[0].Minutes != 2 {
		t.Errorf("deliveries = %+v, want one 2-minute run", h.repo.deliveries)
	}
}

// ─── Actuation Failure Tests ───

func TestAttemptStart_ExhaustionReturnsToIdle(t *testing.T) {
	base := testBase()
	gw := &failGateway{}
	cfg := defaultCfg()
	cfg.ActuationRetryAttempts = 2
	h := newHarness(t, []station.ScheduleEntry{dueEntry(1, 20, base)}, gw, cfg)

	h.coord.cycle(context.Background())

	if gw.startCalls != 2 {
		t.Errorf("start attempts = %d, want 2", gw.startCalls)
	}
	if got := h.coord.currentState(); got != StateIdle {
		t.Errorf("state = %v, want idle after exhaustion", got)
	}
	// No water flowed: nothing may be credited.
	if len(h.repo.deliveries) != 0 {
		t.Errorf("deliveries = %+v, want none", h.repo.deliveries)
	}
	// Ambiguous physical state gets a corrective stop.
	if len(gw.stopCalls) != 1 || gw.stopCalls[0] != 1 {
		t.Errorf("corrective stops = %v, want [1]", gw.stopCalls)
	}
	if h.repo.active != nil {
		t.Error("active run marker persisted for a failed start")
	}
}

func TestAttemptStart_TimeoutExhaustionLogsTimedOut(t *testing.T) {
	base := testBase()
	cfg := defaultCfg()
	cfg.ActuationTimeoutSecs = 1
	cfg.ActuationRetryAttempts = 1

	gw, err := actuation.NewMQTTBackend(silentClient{}, "garden", coordStations(), 1, logging.Default())
	if err != nil {
		t.Fatalf("NewMQTTBackend: %v", err)
	}
	h := newHarness(t, []station.ScheduleEntry{dueEntry(1, 20, base)}, gw, cfg)

	h.coord.cycle(context.Background())

	if got := h.coord.currentState(); got != StateIdle {
		t.Errorf("state = %v, want idle after timeout exhaustion", got)
	}
	if len(h.repo.deliveries) != 0 {
		t.Errorf("deliveries = %+v, want none", h.repo.deliveries)
	}
	recent := h.coord.CommandLog()
	if len(recent) == 0 {
		t.Fatal("command log empty, want a timed-out start")
	}
	if recent[0].Status != actuation.StatusTimedOut {
		t.Errorf("status = %v, want %v", recent[0].Status, actuation.StatusTimedOut)
	}
	if recent[0].Error != actuation.ErrTimeout.Error() {
		t.Errorf("error = %q, want %q", recent[0].Error, actuation.ErrTimeout)
	}
}

// ─── Manual Command Tests ───

func TestManualStart(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())

	h.coord.handleManual(context.Background(), ManualCommand{
		Kind: ManualStart, StationID: 2, Duration: 5 * time.Minute,
	})

	if got := h.coord.currentState(); got != StateRunning {
		t.Fatalf("state = %v, want running", got)
	}
	h.coord.mu.Lock()
	active, planned := h.coord.activeStation, h.coord.plannedMinutes
	h.coord.mu.Unlock()
	if active != 2 || planned != 5 {
		t.Errorf("run = station %d for %d min, want station 2 for 5 min", active, planned)
	}
}

func TestManualStart_DefaultDuration(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())

	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualStart, StationID: 1})

	h.coord.mu.Lock()
	planned := h.coord.plannedMinutes
	h.coord.mu.Unlock()
	if planned != 15 {
		t.Errorf("planned = %d, want the station's 15 min manual default", planned)
	}
}

func TestManualStart_RejectedWhileRunning(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())

	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualStart, StationID: 1, Duration: 10 * time.Minute})
	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualStart, StationID: 2, Duration: 10 * time.Minute})

	h.coord.mu.Lock()
	active := h.coord.activeStation
	h.coord.mu.Unlock()
	if active != 1 {
		t.Errorf("active = %d, want 1 (second start rejected)", active)
	}
}

func TestManualStop(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())

	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualStart, StationID: 1, Duration: 10 * time.Minute})
	h.clock.advance(4 * time.Minute)
	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualStop, StationID: 1})

	if got := h.coord.currentState(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if len(h.repo.deliveries) != 1 || h.repo.deliveries[0].Minutes != 4 {
		t.Errorf("deliveries = %+v, want one 4-minute run", h.repo.deliveries)
	}
}

func TestManualStop_OtherStationLeavesRunAlone(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())

	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualStart, StationID: 1, Duration: 10 * time.Minute})
	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualStop, StationID: 2})

	if got := h.coord.currentState(); got != StateRunning {
		t.Errorf("state = %v, want still running (stop targeted another station)", got)
	}
}

func TestManualStopAll(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())

	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualStart, StationID: 1, Duration: 10 * time.Minute})
	h.clock.advance(time.Minute)
	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualStopAll})

	if got := h.coord.currentState(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if len(h.repo.deliveries) != 1 {
		t.Errorf("deliveries = %d, want 1", len(h.repo.deliveries))
	}
}

func TestManualPower(t *testing.T) {
	base := testBase()
	h := newHarness(t, []station.ScheduleEntry{dueEntry(1, 20, base)}, nil, defaultCfg())

	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualPower, PowerOn: false})

	// Power off suppresses scheduled starts.
	h.coord.cycle(context.Background())
	if got := h.coord.currentState(); got != StateIdle {
		t.Fatalf("state = %v, want idle with power off", got)
	}

	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualPower, PowerOn: true})
	h.coord.cycle(context.Background())
	if got := h.coord.currentState(); got != StateRunning {
		t.Errorf("state = %v, want running after power restored", got)
	}
}

func TestManualPower_OffStopsActiveRun(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())

	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualStart, StationID: 1, Duration: 10 * time.Minute})
	h.clock.advance(3 * time.Minute)
	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualPower, PowerOn: false})

	if got := h.coord.currentState(); got != StateIdle {
		t.Fatalf("state = %v, want idle after power off", got)
	}
	if len(h.repo.deliveries) != 1 || h.repo.deliveries[0].Minutes != 3 {
		t.Errorf("deliveries = %+v, want one 3-minute run", h.repo.deliveries)
	}
}

// ─── Submit Tests ───

func TestSubmit_NotRunning(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())

	err := h.coord.Submit(ManualCommand{Kind: ManualStopAll})
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("Submit error = %v, want ErrNotRunning", err)
	}
}

func TestSubmit_UnknownStation(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())
	h.coord.started = true

	err := h.coord.Submit(ManualCommand{Kind: ManualStart, StationID: 99})
	if !errors.Is(err, ErrUnknownStation) {
		t.Errorf("Submit error = %v, want ErrUnknownStation", err)
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	cfg := defaultCfg()
	cfg.CommandQueueSize = 1
	h := newHarness(t, nil, nil, cfg)
	h.coord.started = true

	if err := h.coord.Submit(ManualCommand{Kind: ManualStopAll}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	err := h.coord.Submit(ManualCommand{Kind: ManualStopAll})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("second Submit error = %v, want ErrQueueFull", err)
	}
}

// ─── Restart Recovery Tests ───

func TestRecoverActiveRun_ResumesInsideWindow(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())
	now := h.clock.now()

	run := schedule.ActiveRun{StationID: 1, StartAt: now.Add(-5 * time.Minute), EndAt: now.Add(10 * time.Minute)}
	if err := h.store.SetActiveRun(context.Background(), run); err != nil {
		t.Fatalf("SetActiveRun: %v", err)
	}

	h.coord.recoverActiveRun(context.Background())

	if got := h.coord.currentState(); got != StateRunning {
		t.Fatalf("state = %v, want running (resumed)", got)
	}
	h.coord.mu.Lock()
	active, planned := h.coord.activeStation, h.coord.plannedMinutes
	h.coord.mu.Unlock()
	if active != 1 || planned != 15 {
		t.Errorf("resumed run = station %d for %d min, want station 1 for 15 min", active, planned)
	}
}

func TestRecoverActiveRun_ExpiredMarkerStopsAndCredits(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())
	now := h.clock.now()

	run := schedule.ActiveRun{StationID: 1, StartAt: now.Add(-30 * time.Minute), EndAt: now.Add(-10 * time.Minute)}
	if err := h.store.SetActiveRun(context.Background(), run); err != nil {
		t.Fatalf("SetActiveRun: %v", err)
	}

	h.coord.recoverActiveRun(context.Background())

	if got := h.coord.currentState(); got != StateIdle {
		t.Fatalf("state = %v, want idle (stale marker)", got)
	}
	// The full planned window is credited: the valve may have run all of it.
	if len(h.repo.deliveries) != 1 || h.repo.deliveries[0].Minutes != 20 {
		t.Errorf("deliveries = %+v, want one 20-minute credit", h.repo.deliveries)
	}
	if h.repo.active != nil {
		t.Error("stale marker not cleared")
	}
}

// ─── Status Tests ───

func TestStatus(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())

	h.coord.handleManual(context.Background(), ManualCommand{Kind: ManualStart, StationID: 1, Duration: 10 * time.Minute})

	st := h.coord.Status(context.Background())
	if st.ControllerID != "garden" {
		t.Errorf("ControllerID = %q, want %q", st.ControllerID, "garden")
	}
	if !st.PowerOn || st.State != StateRunning || st.ActiveStation != 1 {
		t.Errorf("status = %+v, want powered, running station 1", st)
	}
	if len(st.Stations) != 2 {
		t.Fatalf("Stations = %d entries, want 2", len(st.Stations))
	}
	if !st.Stations[0].Running {
		t.Error("station 1 not flagged running")
	}
	if st.Stations[1].Running {
		t.Error("station 2 flagged running")
	}
}

// ─── Lifecycle Tests ───

func TestStartStop(t *testing.T) {
	h := newHarness(t, nil, nil, defaultCfg())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.coord.Start(ctx); err == nil {
		t.Error("second Start accepted, want error")
	}

	if err := h.coord.Submit(ManualCommand{Kind: ManualStopAll}); err != nil {
		t.Errorf("Submit: %v", err)
	}

	h.coord.Stop()
	// Stop is idempotent.
	h.coord.Stop()
}
