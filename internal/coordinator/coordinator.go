package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
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

// WeatherProvider is the subset of the weather adapter the coordinator
// uses. Satisfied by *weather.Adapter; mocked in tests.
type WeatherProvider interface {
	CurrentSnapshot(ctx context.Context) weather.Snapshot
	Degraded() bool
	RolloverDay()
	ProviderName() string
}

// StatusPublisher publishes retained state payloads. Satisfied by
// *mqtt.Client; nil disables publishing.
type StatusPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// MetricsRecorder records irrigation telemetry. Satisfied by
// *influxdb.Client; nil disables recording.
type MetricsRecorder interface {
	WriteStationRun(controllerID string, stationID int, minutes, litres, depthMm float64)
	WriteWaterUsage(controllerID string, totalLitres float64)
	WriteWeatherSnapshot(provider string, rainMmToday, forecastMmToday float64, degraded bool)
}

// Deps holds the dependencies required by a Coordinator.
type Deps struct {
	ControllerID string
	Config       config.CoordinatorConfig
	Balance      waterbalance.Config
	Store        *schedule.Store
	Weather      WeatherProvider
	Gateway      actuation.Gateway
	CommandLog   *actuation.CommandLog
	Logger       *logging.Logger
	Publisher    StatusPublisher // optional
	Metrics      MetricsRecorder // optional
	Clock        func() time.Time // optional, defaults to time.Now
}

// Coordinator runs the control loop for one controller.
//
// Created with New() and started with Start(); the loop runs in a single
// background goroutine until Stop() or context cancellation.
type Coordinator struct {
	controllerID string
	cfg          config.CoordinatorConfig
	balance      waterbalance.Config
	store        *schedule.Store
	weather      WeatherProvider
	gateway      actuation.Gateway
	cmdLog       *actuation.CommandLog
	logger       *logging.Logger
	publisher    StatusPublisher
	metrics      MetricsRecorder
	now          func() time.Time

	queue chan ManualCommand

	// deferred holds schedule entries that came due while the controller
	// could not start them (another station running, rain hold), keyed by
	// station id. Touched only by the loop goroutine; cleared on rollover.
	deferred map[int]station.ScheduleEntry

	// Mutable state, guarded by mu. The loop goroutine is the only
	// writer; Status() readers take copies.
	mu             sync.Mutex
	state          State
	powerOn        bool
	activeStation  int
	endDeadline    time.Time
	runStart       time.Time
	plannedMinutes int

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates a coordinator for one controller.
//
// Returns an error if a required dependency is missing.
func New(deps Deps) (*Coordinator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("schedule store is required")
	}
	if deps.Weather == nil {
		return nil, fmt.Errorf("weather provider is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("actuation gateway is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	cmdLog := deps.CommandLog
	if cmdLog == nil {
		cmdLog = actuation.NewCommandLog(deps.Config.CommandLogSize)
	}

	return &Coordinator{
		controllerID: deps.ControllerID,
		cfg:          deps.Config,
		balance:      deps.Balance,
		store:        deps.Store,
		weather:      deps.Weather,
		gateway:      deps.Gateway,
		cmdLog:       cmdLog,
		logger:       deps.Logger.With("component", "coordinator", "controller", deps.ControllerID),
		publisher:    deps.Publisher,
		metrics:      deps.Metrics,
		now:          now,
		queue:        make(chan ManualCommand, deps.Config.CommandQueueSize),
		deferred:     make(map[int]station.ScheduleEntry),
		state:        StateIdle,
		powerOn:      true,
		done:         make(chan struct{}),
	}, nil
}

// Start launches the control loop.
//
// Before the first tick it reconciles any persisted active run: a station
// that should already be off (stale marker from a crash) is stopped and
// its delivery recorded; a run still inside its window is resumed.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already started")
	}
	c.started = true
	c.mu.Unlock()

	var loopCtx context.Context
	loopCtx, c.cancel = context.WithCancel(ctx)

	c.recoverActiveRun(loopCtx)

	go c.run(loopCtx)

	c.logger.Info("coordinator started",
		"tick", c.cfg.GetTickInterval(),
		"queue_size", c.cfg.CommandQueueSize,
	)
	return nil
}

// Stop halts the control loop and waits for it to exit.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started || c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// Submit enqueues a manual command for the next cycle. Returns
// ErrQueueFull when the bounded queue is at capacity.
func (c *Coordinator) Submit(cmd ManualCommand) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return ErrNotRunning
	}

	if cmd.Kind == ManualStart || cmd.Kind == ManualStop {
		if _, ok := c.store.Station(cmd.StationID); !ok {
			return fmt.Errorf("%w: id %d", ErrUnknownStation, cmd.StationID)
		}
	}

	select {
	case c.queue <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// CommandLog returns the controller's recent command outcomes.
func (c *Coordinator) CommandLog() []actuation.LogEntry {
	return c.cmdLog.Recent()
}

// ControllerID returns the controller this coordinator drives.
func (c *Coordinator) ControllerID() string {
	return c.controllerID
}

// Status returns the controller's published state, recomputed from the
// store, gateway and weather adapter on every call.
func (c *Coordinator) Status(ctx context.Context) Status {
	snap := c.weather.CurrentSnapshot(ctx)

	c.mu.Lock()
	st := Status{
		ControllerID:     c.controllerID,
		PowerOn:          c.powerOn,
		State:            c.state,
		ActiveStation:    c.activeStation,
		EndDeadline:      c.endDeadline,
		Weather:          snap,
		WeatherDegraded:  c.weather.Degraded(),
		TotalWaterLitres: c.store.TotalWaterLitres(),
		QueueDepth:       len(c.queue),
	}
	active := c.activeStation
	c.mu.Unlock()

	for _, def := range c.store.Stations() {
		day, _ := c.store.DayState(def.ID)
		st.Stations = append(st.Stations, StationStatus{
			ID:                  def.ID,
			Name:                def.Name,
			Enabled:             def.Enabled,
			Running:             def.ID == active && st.State == StateRunning,
			AppliedMinutes:      day.AppliedMinutes,
			AppliedMm:           day.AppliedMm,
			ForecastRemainingMm: day.ForecastRemainingMm,
			LastSprinkleEnd:     day.LastSprinkleEnd,
		})
	}
	return st
}

// run is the control loop: one goroutine per controller, never more.
func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.GetTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopping")
			c.shutdown()
			return
		case <-ticker.C:
		case cmd := <-c.queue:
			c.handleManual(ctx, cmd)
		}

		c.drainQueue(ctx)
		c.cycle(ctx)
	}
}

// drainQueue handles all queued manual commands in arrival order.
func (c *Coordinator) drainQueue(ctx context.Context) {
	for {
		select {
		case cmd := <-c.queue:
			c.handleManual(ctx, cmd)
		default:
			return
		}
	}
}

// shutdown stops a running station before the loop exits so a valve is
// never left open across a restart. The active-run marker stays persisted
// as a second line of defence.
func (c *Coordinator) shutdown() {
	c.mu.Lock()
	running := c.state == StateRunning || c.state == StateAwaitingStart
	c.mu.Unlock()
	if !running {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.GetActuationTimeout())
	defer cancel()
	c.finishRun(ctx, "shutdown")
}

// setState updates the state under lock.
func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// currentState reads the state under lock.
func (c *Coordinator) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// publishStatus pushes the retained status snapshot to MQTT. Failures are
// logged and otherwise ignored: published state is a projection, never
// the source of truth.
func (c *Coordinator) publishStatus(ctx context.Context) {
	if c.publisher == nil {
		return
	}

	payload, err := json.Marshal(c.Status(ctx))
	if err != nil {
		c.logger.Error("marshalling status", "error", err)
		return
	}

	topic := mqtt.Topics{}.ControllerStatus(c.controllerID)
	if err := c.publisher.PublishRetained(topic, payload); err != nil {
		c.logger.Warn("publishing status", "error", err)
	}
}
