package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for daily-state persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Daily totals
	LoadDay(ctx context.Context, controllerID, date string) ([]DailyStationState, error)
	SaveDay(ctx context.Context, controllerID string, state DailyStationState) error
	DeleteDaysBefore(ctx context.Context, controllerID, date string) error

	// Delivery log
	AppendDelivery(ctx context.Context, controllerID string, d Delivery) error
	TotalLitres(ctx context.Context, controllerID string) (float64, error)

	// Active-run marker for restart safety
	SaveActiveRun(ctx context.Context, controllerID string, run ActiveRun) error
	LoadActiveRun(ctx context.Context, controllerID string) (*ActiveRun, error)
	ClearActiveRun(ctx context.Context, controllerID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// LoadDay retrieves all persisted station states for one local day.
func (r *SQLiteRepository) LoadDay(ctx context.Context, controllerID, date string) ([]DailyStationState, error) {
	query := `
		SELECT station_id, date, applied_minutes, applied_mm, forecast_remaining_mm, last_sprinkle_end
		FROM daily_station_state
		WHERE controller_id = ? AND date = ?
		ORDER BY station_id`

	rows, err := r.db.QueryContext(ctx, query, controllerID, date)
	if err != nil {
		return nil, fmt.Errorf("querying daily state: %w", err)
	}
	defer rows.Close()

	var states []DailyStationState
	for rows.Next() {
		var s DailyStationState
		var lastEnd sql.NullString
		if err := rows.Scan(&s.StationID, &s.Date, &s.AppliedMinutes, &s.AppliedMm,
			&s.ForecastRemainingMm, &lastEnd); err != nil {
			return nil, fmt.Errorf("scanning daily state: %w", err)
		}
		if lastEnd.Valid {
			s.LastSprinkleEnd, _ = time.Parse(time.RFC3339, lastEnd.String) //nolint:errcheck // Format is controlled
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily state: %w", err)
	}
	return states, nil
}

// SaveDay upserts one station's daily totals.
func (r *SQLiteRepository) SaveDay(ctx context.Context, controllerID string, state DailyStationState) error {
	query := `
		INSERT INTO daily_station_state (
			controller_id, station_id, date, applied_minutes, applied_mm,
			forecast_remaining_mm, last_sprinkle_end
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(controller_id, station_id, date) DO UPDATE SET
			applied_minutes = excluded.applied_minutes,
			applied_mm = excluded.applied_mm,
			forecast_remaining_mm = excluded.forecast_remaining_mm,
			last_sprinkle_end = excluded.last_sprinkle_end`

	var lastEnd any
	if !state.LastSprinkleEnd.IsZero() {
		lastEnd = state.LastSprinkleEnd.UTC().Format(time.RFC3339)
	}

	_, err := r.db.ExecContext(ctx, query,
		controllerID,
		state.StationID,
		state.Date,
		state.AppliedMinutes,
		state.AppliedMm,
		state.ForecastRemainingMm,
		lastEnd,
	)
	if err != nil {
		return fmt.Errorf("saving daily state: %w", err)
	}
	return nil
}

// DeleteDaysBefore removes daily state rows older than the given date.
// Called at rollover to keep the table bounded.
func (r *SQLiteRepository) DeleteDaysBefore(ctx context.Context, controllerID, date string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM daily_station_state WHERE controller_id = ? AND date < ?`,
		controllerID, date,
	)
	if err != nil {
		return fmt.Errorf("pruning daily state: %w", err)
	}
	return nil
}

// AppendDelivery records one completed watering in the delivery log.
func (r *SQLiteRepository) AppendDelivery(ctx context.Context, controllerID string, d Delivery) error {
	query := `
		INSERT INTO delivery_log (controller_id, station_id, minutes, mm, litres, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		controllerID,
		d.StationID,
		d.Minutes,
		d.Mm,
		d.Litres,
		d.RecordedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("appending delivery: %w", err)
	}
	return nil
}

// TotalLitres returns the controller's cumulative water consumption.
func (r *SQLiteRepository) TotalLitres(ctx context.Context, controllerID string) (float64, error) {
	var total float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(litres), 0) FROM delivery_log WHERE controller_id = ?`,
		controllerID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing deliveries: %w", err)
	}
	return total, nil
}

// SaveActiveRun upserts the controller's active-run marker.
func (r *SQLiteRepository) SaveActiveRun(ctx context.Context, controllerID string, run ActiveRun) error {
	query := `
		INSERT INTO active_irrigation (controller_id, station_id, start_at, end_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(controller_id) DO UPDATE SET
			station_id = excluded.station_id,
			start_at = excluded.start_at,
			end_at = excluded.end_at`

	_, err := r.db.ExecContext(ctx, query,
		controllerID,
		run.StationID,
		run.StartAt.UTC().Format(time.RFC3339),
		run.EndAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving active run: %w", err)
	}
	return nil
}

// LoadActiveRun retrieves the controller's active-run marker, or nil if
// no station is marked active.
func (r *SQLiteRepository) LoadActiveRun(ctx context.Context, controllerID string) (*ActiveRun, error) {
	var run ActiveRun
	var startAt, endAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT station_id, start_at, end_at FROM active_irrigation WHERE controller_id = ?`,
		controllerID,
	).Scan(&run.StationID, &startAt, &endAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading active run: %w", err)
	}

	run.StartAt, _ = time.Parse(time.RFC3339, startAt) //nolint:errcheck // Format is controlled
	run.EndAt, _ = time.Parse(time.RFC3339, endAt)     //nolint:errcheck // Format is controlled
	return &run, nil
}

// ClearActiveRun removes the controller's active-run marker.
func (r *SQLiteRepository) ClearActiveRun(ctx context.Context, controllerID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM active_irrigation WHERE controller_id = ?`, controllerID)
	if err != nil {
		return fmt.Errorf("clearing active run: %w", err)
	}
	return nil
}
