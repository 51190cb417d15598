package station

import (
	"fmt"
	"time"
)

// ValidateEntries checks a controller's schedule entries for consistency.
//
// Entries for the same station must not overlap in time-of-day on any day
// they share. Disabled entries are still checked; a disabled entry that
// overlaps is a latent fault the operator should fix rather than discover
// on re-enable.
//
// Returns a list of human-readable problems, empty when the schedule is valid.
func ValidateEntries(entries []ScheduleEntry) []string {
	var errs []string

	for i, e := range entries {
		if e.DurationMin <= 0 {
			errs = append(errs, fmt.Sprintf("schedule entry %d (station %d): duration_min must be positive", i, e.StationID))
		}
	}

	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			if a.StationID != b.StationID {
				continue
			}
			if !shareDay(a, b) {
				continue
			}
			if overlap(a, b) {
				errs = append(errs, fmt.Sprintf(
					"schedule entries for station %d overlap: %s+%dm and %s+%dm",
					a.StationID, a.Start, a.DurationMin, b.Start, b.DurationMin))
			}
		}
	}

	return errs
}

// shareDay reports whether two entries recur on at least one common weekday.
func shareDay(a, b ScheduleEntry) bool {
	if len(a.Days) == 0 || len(b.Days) == 0 {
		return true
	}
	for _, d := range a.Days {
		for _, e := range b.Days {
			if d == e {
				return true
			}
		}
	}
	return false
}

// overlap reports whether two windows on the same day intersect.
// Windows that run past midnight are clamped at the day boundary; the
// schedule model treats each calendar day independently.
func overlap(a, b ScheduleEntry) bool {
	const daySeconds = 24 * 3600
	aStart := a.Start.SecondsIntoDay()
	aEnd := min(aStart+a.DurationMin*60, daySeconds)
	bStart := b.Start.SecondsIntoDay()
	bEnd := min(bStart+b.DurationMin*60, daySeconds)
	return aStart < bEnd && bStart < aEnd
}

// NextOccurrence returns the first instant at or after now on which the
// entry's start time falls on a permitted weekday. Used for reporting the
// next scheduled run; the coordinator's due-window check is separate.
func (e ScheduleEntry) NextOccurrence(now time.Time) time.Time {
	for d := 0; d < 8; d++ {
		day := now.AddDate(0, 0, d)
		if !e.DueOn(day.Weekday()) {
			continue
		}
		at := e.Start.At(day)
		if !at.Before(now) {
			return at
		}
	}
	return time.Time{}
}
