package availability

import (
	"slices"
	"time"

	"github.com/Guizzs26/slotbook/internal/calendar"
	"github.com/Guizzs26/slotbook/internal/models"
)

// SlotInput is everything ComputeSlots needs for one staff member on one local day
type SlotInput struct {
	Location *time.Location
	Date     calendar.LocalDate
	Hours    *models.WorkingHours
	Duration time.Duration
	// Busy holds blocks and confirmed bookings overlapping the day
	Busy []calendar.Interval
	Now  time.Time
}

// ComputeSlots returns the ordered slot starts for a single staff member.
// Candidates begin at the working start rounded up to the grid and advance by
// calendar.Step(duration); each must fit inside working hours, avoid every busy
// interval and, on the shop's current day, start strictly after now.
func ComputeSlots(in SlotInput) []time.Time {
	if in.Hours == nil || in.Duration <= 0 || in.Hours.StartMinute >= in.Hours.EndMinute {
		return nil
	}

	working := calendar.Interval{
		Start: in.Date.At(in.Location, calendar.CeilToGrid(in.Hours.StartMinute)),
		End:   in.Date.At(in.Location, in.Hours.EndMinute),
	}
	isToday := calendar.Today(in.Now, in.Location) == in.Date
	step := calendar.Step(in.Duration)

	var slots []time.Time
	for start := working.Start; !start.Add(in.Duration).After(working.End); start = start.Add(step) {
		candidate := calendar.Interval{Start: start, End: start.Add(in.Duration)}
		if calendar.OverlapsAny(candidate, in.Busy) {
			continue
		}
		if isToday && !start.After(in.Now) {
			continue
		}
		slots = append(slots, start)
	}
	return slots
}

// MergeSlots unions per-staff slot lists into one ascending list without duplicates
func MergeSlots(lists ...[]time.Time) []time.Time {
	seen := make(map[int64]struct{})
	var merged []time.Time
	for _, list := range lists {
		for _, s := range list {
			key := s.UnixNano()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, s)
		}
	}
	slices.SortFunc(merged, time.Time.Compare)
	return merged
}

func containsInstant(ts []time.Time, t time.Time) bool {
	return slices.ContainsFunc(ts, t.Equal)
}
