package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/nerrad567/aqua-core/internal/actuation"
	"github.com/nerrad567/aqua-core/internal/schedule"
	"github.com/nerrad567/aqua-core/internal/station"
	"github.com/nerrad567/aqua-core/internal/waterbalance"
	"github.com/nerrad567/aqua-core/internal/weather"
)

// cycle is one pass of the control loop: roll the day over if needed,
// refresh the water balance from the latest snapshot, progress or finish
// the active run, and start the next due station.
func (c *Coordinator) cycle(ctx context.Context) {
	now := c.now()

	rolled, err := c.store.RolloverIfNewDay(ctx, now)
	if err != nil {
		c.logger.Error("daily rollover failed", "error", err)
	}
	if rolled {
		c.weather.RolloverDay()
		// Deferred entries belong to the day they came due on.
		c.deferred = make(map[int]station.ScheduleEntry)
	}

	snap := c.weather.CurrentSnapshot(ctx)
	remaining := c.updateBalances(snap)

	if c.metrics != nil {
		c.metrics.WriteWeatherSnapshot(c.weather.ProviderName(),
			snap.RainMmToday, snap.ForecastedRainMmToday, c.weather.Degraded())
	}

	c.mu.Lock()
	powerOn := c.powerOn
	state := c.state
	active := c.activeStation
	deadline := c.endDeadline
	c.mu.Unlock()

	if !powerOn {
		if state == StateRunning {
			c.finishRun(ctx, "power off")
		}
		c.publishStatus(ctx)
		return
	}

	if state == StateRunning {
		c.stashDue(now, active)
		switch {
		case !now.Before(deadline):
			c.finishRun(ctx, "deadline reached")
		case snap.IsRainingNow && !c.balance.SprinkleWithRain && c.balance.WeatherEnabled:
			c.logger.Info("rain detected, stopping early", "station", active)
			c.finishRun(ctx, "rain")
		case remaining[active] <= 0:
			c.finishRun(ctx, "demand satisfied")
		}
		c.publishStatus(ctx)
		return
	}

	if state != StateIdle {
		// Awaiting states are transient within a cycle; seeing one here
		// means a previous cycle is still unwinding. Do nothing.
		return
	}

	c.startNextDue(ctx, now, snap, remaining)
	c.publishStatus(ctx)
}

// updateBalances recomputes the remaining irrigation depth for every
// station and publishes it to the store's daily state.
func (c *Coordinator) updateBalances(snap weather.Snapshot) map[int]float64 {
	remaining := make(map[int]float64)
	for _, st := range c.store.Stations() {
		day, _ := c.store.DayState(st.ID)
		rem := waterbalance.RemainingMm(st, waterbalance.DayState{AppliedMm: day.AppliedMm}, snap, c.balance)
		c.store.SetForecastRemaining(st.ID, rem)
		remaining[st.ID] = rem
	}
	return remaining
}

// startNextDue starts the first station with water owed among the entries
// due this tick plus any entries deferred from earlier ticks. Candidates
// are ordered by ascending station id, which makes the simultaneous-due
// tie-break deterministic; losers stay deferred and start on a later
// cycle once the winner finishes.
func (c *Coordinator) startNextDue(ctx context.Context, now time.Time, snap weather.Snapshot, remaining map[int]float64) {
	c.stashDue(now, 0)

	if snap.IsRainingNow && !c.balance.SprinkleWithRain && c.balance.WeatherEnabled {
		return
	}

	for _, entry := range c.deferredInOrder() {
		st, ok := c.store.Station(entry.StationID)
		if !ok {
			delete(c.deferred, entry.StationID)
			continue
		}
		rem := remaining[st.ID]
		if rem <= 0 {
			c.logger.Debug("entry due but no water owed", "station", st.ID, "remaining_mm", rem)
			delete(c.deferred, entry.StationID)
			continue
		}

		planned := waterbalance.MinutesFor(st, rem)
		if entry.DurationMin < planned {
			planned = entry.DurationMin
		}
		if planned <= 0 {
			delete(c.deferred, entry.StationID)
			continue
		}

		delete(c.deferred, entry.StationID)
		c.attemptStart(ctx, st, planned)
		return
	}
}

// stashDue records entries coming due while the controller cannot start
// them, so a station that loses the tie-break (or comes due mid-run) still
// gets its turn once the controller is idle again. The active station's
// own entry is never stashed.
func (c *Coordinator) stashDue(now time.Time, active int) {
	for _, entry := range c.store.EntriesDueAt(now) {
		if entry.StationID == active {
			continue
		}
		if _, ok := c.deferred[entry.StationID]; !ok {
			c.deferred[entry.StationID] = entry
		}
	}
}

// deferredInOrder returns the deferred entries ordered by ascending
// station id then start time.
func (c *Coordinator) deferredInOrder() []station.ScheduleEntry {
	out := make([]station.ScheduleEntry, 0, len(c.deferred))
	for _, e := range c.deferred {
		out = append(out, e)
	}
	station.SortEntries(out)
	return out
}

// attemptStart drives the idle → awaiting_start → running transition,
// retrying transient actuation failures with exponential backoff up to
// the configured attempt limit. Exhaustion returns the coordinator to
// idle with a corrective stop and no delivery recorded.
func (c *Coordinator) attemptStart(ctx context.Context, st station.Station, plannedMin int) {
	c.mu.Lock()
	c.state = StateAwaitingStart
	c.activeStation = st.ID
	c.mu.Unlock()

	duration := time.Duration(plannedMin) * time.Minute

	var lastCmd actuation.Command
	operation := func() error {
		pending, err := c.gateway.Start(ctx, st, duration)
		if err != nil {
			if errors.Is(err, actuation.ErrConflict) {
				// Another station is physically on. Never force it;
				// give up this tick and re-evaluate next cycle.
				return backoff.Permanent(err)
			}
			return err
		}
		lastCmd = pending.Command()

		awaitCtx, cancel := context.WithTimeout(ctx, c.cfg.GetActuationTimeout())
		defer cancel()
		res := pending.Await(awaitCtx)
		if res.Status != actuation.StatusSucceeded {
			if res.Err != nil {
				return res.Err
			}
			return fmt.Errorf("start rejected for station %d", st.ID)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.retryBudget())),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		c.logger.Error("start failed after retries", "station", st.ID, "error", err)
		if lastCmd.ID != uuid.Nil {
			c.cmdLog.Record(lastCmd, actuation.Result{Status: actuation.StatusTimedOut, Err: err})
		}
		// Physical state is ambiguous after a timeout: issue a corrective
		// stop so the valve cannot be left running unsupervised.
		c.correctiveStop(ctx, st.ID)
		c.mu.Lock()
		c.state = StateIdle
		c.activeStation = 0
		c.mu.Unlock()
		return
	}

	now := c.now()
	end := now.Add(duration)

	c.mu.Lock()
	c.state = StateRunning
	c.runStart = now
	c.endDeadline = end
	c.plannedMinutes = plannedMin
	c.mu.Unlock()

	if err := c.store.SetActiveRun(ctx, schedule.ActiveRun{
		StationID: st.ID,
		StartAt:   now,
		EndAt:     end,
	}); err != nil {
		c.logger.Error("persisting active run", "error", err)
	}

	c.cmdLog.Record(lastCmd, actuation.Result{Status: actuation.StatusSucceeded})
	c.logger.Info("station started",
		"station", st.ID,
		"planned_minutes", plannedMin,
		"deadline", end,
	)
}

// finishRun drives running → awaiting_stop → idle and records the actual
// delivery. Elapsed runtime is clamped to the planned window so a late
// stop never over-credits the balance.
func (c *Coordinator) finishRun(ctx context.Context, reason string) {
	c.mu.Lock()
	if c.state != StateRunning && c.state != StateAwaitingStart {
		c.mu.Unlock()
		return
	}
	stationID := c.activeStation
	runStart := c.runStart
	planned := c.plannedMinutes
	c.state = StateAwaitingStop
	c.mu.Unlock()

	elapsed := c.now().Sub(runStart).Minutes()
	if limit := float64(planned); elapsed > limit {
		elapsed = limit
	}
	if elapsed < 0 {
		elapsed = 0
	}

	stopped := c.stopWithRetry(ctx, stationID)
	if !stopped {
		// The stop never acknowledged. Sweep everything off as a last
		// resort; the delivery is still recorded because water flowed.
		c.logger.Error("stop unacknowledged, sweeping all stations", "station", stationID)
		if err := c.gateway.StopAll(ctx); err != nil {
			c.logger.Error("stop-all failed", "error", err)
		}
	}

	if err := c.store.RecordDelivery(ctx, stationID, elapsed); err != nil {
		c.logger.Error("recording delivery", "station", stationID, "error", err)
	}
	if err := c.store.ClearActiveRun(ctx); err != nil {
		c.logger.Error("clearing active run", "error", err)
	}

	if c.metrics != nil {
		st, ok := c.store.Station(stationID)
		if ok {
			c.metrics.WriteStationRun(c.controllerID, stationID, elapsed,
				waterbalance.LitresForMinutes(st, elapsed),
				waterbalance.MmForMinutes(st, elapsed))
		}
		c.metrics.WriteWaterUsage(c.controllerID, c.store.TotalWaterLitres())
	}

	c.logger.Info("station stopped",
		"station", stationID,
		"reason", reason,
		"minutes_run", elapsed,
	)

	c.mu.Lock()
	c.state = StateIdle
	c.activeStation = 0
	c.endDeadline = time.Time{}
	c.runStart = time.Time{}
	c.plannedMinutes = 0
	c.mu.Unlock()
}

// stopWithRetry issues a stop and waits for acknowledgement, retrying
// with backoff. Returns false if every attempt timed out or failed.
func (c *Coordinator) stopWithRetry(ctx context.Context, stationID int) bool {
	operation := func() error {
		pending, err := c.gateway.Stop(ctx, stationID)
		if err != nil {
			return err
		}

		awaitCtx, cancel := context.WithTimeout(ctx, c.cfg.GetActuationTimeout())
		defer cancel()
		res := pending.Await(awaitCtx)
		c.cmdLog.Record(pending.Command(), res)
		if res.Status != actuation.StatusSucceeded {
			if res.Err != nil {
				return res.Err
			}
			return fmt.Errorf("stop rejected for station %d", stationID)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.retryBudget())),
		ctx,
	)
	return backoff.Retry(operation, policy) == nil
}

// correctiveStop issues a best-effort stop when the physical state is
// unknown, without waiting for acknowledgement.
func (c *Coordinator) correctiveStop(ctx context.Context, stationID int) {
	if _, err := c.gateway.Stop(ctx, stationID); err != nil && !errors.Is(err, actuation.ErrUnknownStation) {
		c.logger.Warn("corrective stop failed", "station", stationID, "error", err)
	}
}

// retryBudget converts the configured attempt count into a backoff retry
// count (attempts minus the initial try).
func (c *Coordinator) retryBudget() int {
	attempts := c.cfg.ActuationRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return attempts - 1
}

// handleManual applies one queued manual command. Manual commands always
// win over scheduled behaviour evaluated in the same tick because the
// queue is drained before the cycle runs.
func (c *Coordinator) handleManual(ctx context.Context, cmd ManualCommand) {
	c.logger.Info("manual command",
		"kind", cmd.Kind,
		"station", cmd.StationID,
	)

	switch cmd.Kind {
	case ManualStart:
		c.manualStart(ctx, cmd)

	case ManualStop:
		c.mu.Lock()
		active := c.activeStation
		running := c.state == StateRunning
		c.mu.Unlock()
		if running && (cmd.StationID == 0 || cmd.StationID == active) {
			c.finishRun(ctx, "manual stop")
		} else {
			// Not tracked as running here, but the hardware may disagree.
			c.correctiveStop(ctx, cmd.StationID)
		}

	case ManualStopAll:
		c.mu.Lock()
		running := c.state == StateRunning
		c.mu.Unlock()
		if running {
			c.finishRun(ctx, "manual stop all")
		}
		if err := c.gateway.StopAll(ctx); err != nil {
			c.logger.Error("stop-all failed", "error", err)
		}

	case ManualPower:
		c.mu.Lock()
		c.powerOn = cmd.PowerOn
		running := c.state == StateRunning
		c.mu.Unlock()
		if !cmd.PowerOn && running {
			c.finishRun(ctx, "power off")
		}
		if err := c.gateway.Power(ctx, cmd.PowerOn); err != nil {
			c.logger.Error("power command failed", "on", cmd.PowerOn, "error", err)
		}
	}

	c.publishStatus(ctx)
}

// manualStart runs a station outside its schedule for the requested
// duration, or the station's configured manual default when none given.
// Power-off and an already-running station both reject the start.
func (c *Coordinator) manualStart(ctx context.Context, cmd ManualCommand) {
	c.mu.Lock()
	powerOn := c.powerOn
	state := c.state
	active := c.activeStation
	c.mu.Unlock()

	if !powerOn {
		c.logger.Warn("manual start rejected, power is off", "station", cmd.StationID)
		return
	}
	if state != StateIdle {
		c.logger.Warn("manual start rejected, station already active",
			"station", cmd.StationID, "active", active)
		return
	}

	st, ok := c.store.Station(cmd.StationID)
	if !ok {
		c.logger.Warn("manual start for unknown station", "station", cmd.StationID)
		return
	}

	minutes := int(cmd.Duration / time.Minute)
	if minutes <= 0 {
		minutes = st.ManualDurationMin
	}
	if minutes <= 0 {
		c.logger.Warn("manual start with no usable duration", "station", st.ID)
		return
	}

	c.attemptStart(ctx, st, minutes)
}

// recoverActiveRun reconciles the persisted active-run marker on startup.
// A marker past its end window means a valve may have been left open by a
// crash: issue a corrective stop and credit the full planned window. A
// marker still inside its window resumes as a running state.
func (c *Coordinator) recoverActiveRun(ctx context.Context) {
	run := c.store.ActiveRun()
	if run == nil {
		return
	}

	now := c.now()

	if now.Before(run.EndAt) {
		c.logger.Info("resuming active run after restart",
			"station", run.StationID,
			"deadline", run.EndAt,
		)
		c.mu.Lock()
		c.state = StateRunning
		c.activeStation = run.StationID
		c.runStart = run.StartAt
		c.endDeadline = run.EndAt
		c.plannedMinutes = int(run.EndAt.Sub(run.StartAt) / time.Minute)
		c.mu.Unlock()
		return
	}

	c.logger.Warn("stale active run found at startup, stopping station",
		"station", run.StationID,
		"expired", run.EndAt,
	)
	c.correctiveStop(ctx, run.StationID)

	minutes := run.EndAt.Sub(run.StartAt).Minutes()
	if err := c.store.RecordDelivery(ctx, run.StationID, minutes); err != nil {
		c.logger.Error("recording recovered delivery", "station", run.StationID, "error", err)
	}
	if err := c.store.ClearActiveRun(ctx); err != nil {
		c.logger.Error("clearing stale active run", "error", err)
	}
}
