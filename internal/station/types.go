// Package station defines the irrigation station domain model: station
// definitions, schedule entries, and time-of-day handling.
//
// Station definitions are created by configuration and are read-only to the
// rest of the system; runtime counters live elsewhere (see the schedule
// package). Nothing here performs I/O.
package station

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Station is a single irrigation station (valve/zone) on a controller.
type Station struct {
	ID                int
	Name              string
	AreaM2            float64
	FlowLpm           float64
	Enabled           bool
	ManualDurationMin int
}

// MMPerMinute returns the irrigation depth delivered per minute of runtime.
//
// One litre spread over one square metre is 1mm of depth, so the rate is
// simply flow divided by area.
func (s Station) MMPerMinute() float64 {
	if s.AreaM2 <= 0 {
		return 0
	}
	return s.FlowLpm / s.AreaM2
}

// ScheduleEntry is one scheduled watering window for a station.
type ScheduleEntry struct {
	StationID   int
	Start       TimeOfDay
	DurationMin int
	Days        []time.Weekday
	Enabled     bool
}

// DueOn reports whether the entry recurs on the given weekday.
// An empty Days list means the entry recurs every day.
func (e ScheduleEntry) DueOn(day time.Weekday) bool {
	if len(e.Days) == 0 {
		return true
	}
	for _, d := range e.Days {
		if d == day {
			return true
		}
	}
	return false
}

// TimeOfDay is a wall-clock time within a day, independent of date and zone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: expected HH:MM or HH:MM:SS", s)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("time of day %q: %w", s, err)
		}
		nums[i] = n
	}

	t := TimeOfDay{Hour: nums[0], Minute: nums[1]}
	if len(nums) == 3 {
		t.Second = nums[2]
	}

	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 || t.Second < 0 || t.Second > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: out of range", s)
	}
	return t, nil
}

// SecondsIntoDay returns the offset from midnight in seconds.
func (t TimeOfDay) SecondsIntoDay() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// At anchors the time of day onto the calendar date of ref, in ref's location.
func (t TimeOfDay) At(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, t.Second, 0, ref.Location())
}

// String formats the time as HH:MM or HH:MM:SS.
func (t TimeOfDay) String() string {
	if t.Second == 0 {
		return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
	}
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ParseWeekday parses a weekday name ("mon", "monday", case-insensitive).
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	case "sun", "sunday":
		return time.Sunday, nil
	default:
		return 0, fmt.Errorf("weekday %q is not recognised", s)
	}
}

// SortEntries orders entries by station id then start time. The coordinator
// relies on this ordering for its deterministic tie-break.
func SortEntries(entries []ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].StationID != entries[j].StationID {
			return entries[i].StationID < entries[j].StationID
		}
		return entries[i].Start.SecondsIntoDay() < entries[j].Start.SecondsIntoDay()
	})
}
