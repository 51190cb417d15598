package config

import (
	"fmt"

	"github.com/nerrad567/aqua-core/internal/station"
)

// validateSchedule checks a controller's schedule entries against its
// stations. It parses times and weekdays, then delegates overlap detection
// to the station package.
func validateSchedule(prefix string, entries []ScheduleEntryConfig, stationIDs map[int]bool) []string {
	var errs []string

	parsed := make([]station.ScheduleEntry, 0, len(entries))
	for i, ec := range entries {
		ep := fmt.Sprintf("%s schedule entry %d", prefix, i)

		if !stationIDs[ec.StationID] {
			errs = append(errs, fmt.Sprintf("%s: unknown station id %d", ep, ec.StationID))
		}

		entry, convErrs := buildEntry(ec)
		for _, e := range convErrs {
			errs = append(errs, ep+": "+e)
		}
		if len(convErrs) == 0 {
			parsed = append(parsed, entry)
		}
	}

	for _, e := range station.ValidateEntries(parsed) {
		errs = append(errs, prefix+": "+e)
	}

	return errs
}

// buildEntry converts a raw schedule entry into its domain form,
// returning any parse problems as strings.
func buildEntry(ec ScheduleEntryConfig) (station.ScheduleEntry, []string) {
	var errs []string

	start, err := station.ParseTimeOfDay(ec.Start)
	if err != nil {
		errs = append(errs, err.Error())
	}

	entry := station.ScheduleEntry{
		StationID:   ec.StationID,
		Start:       start,
		DurationMin: ec.DurationMin,
		Enabled:     ec.Enabled,
	}
	for _, d := range ec.Days {
		wd, err := station.ParseWeekday(d)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		entry.Days = append(entry.Days, wd)
	}

	return entry, errs
}

// BuildStations converts a controller's station configs into domain stations.
// Assumes Validate has already passed.
func (cc *ControllerConfig) BuildStations() []station.Station {
	out := make([]station.Station, 0, len(cc.Stations))
	for _, sc := range cc.Stations {
		out = append(out, station.Station{
			ID:                sc.ID,
			Name:              sc.Name,
			AreaM2:            sc.AreaM2,
			FlowLpm:           sc.FlowLpm,
			Enabled:           sc.Enabled,
			ManualDurationMin: sc.ManualDurationMin,
		})
	}
	return out
}

// BuildSchedule converts a controller's schedule configs into domain entries,
// sorted by station id then start time. Assumes Validate has already passed.
func (cc *ControllerConfig) BuildSchedule() []station.ScheduleEntry {
	out := make([]station.ScheduleEntry, 0, len(cc.Schedule))
	for _, ec := range cc.Schedule {
		entry, convErrs := buildEntry(ec)
		if len(convErrs) > 0 {
			continue
		}
		out = append(out, entry)
	}
	station.SortEntries(out)
	return out
}
