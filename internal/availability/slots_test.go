package availability

import (
	"testing"
	"time"

	"github.com/Guizzs26/slotbook/internal/calendar"
	"github.com/Guizzs26/slotbook/internal/models"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func clockTimes(ts []time.Time, loc *time.Location) []string {
	out := make([]string, len(ts))
	for i, s := range ts {
		out[i] = s.In(loc).Format("15:04")
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestComputeSlots(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	date := calendar.LocalDate{Year: 2026, Month: time.March, Day: 10}
	hours := &models.WorkingHours{StartMinute: 9 * 60, EndMinute: 12 * 60}
	at := func(h, m int) time.Time { return time.Date(2026, 3, 10, h, m, 0, 0, loc) }
	yesterday := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		hours    *models.WorkingHours
		duration time.Duration
		busy     []calendar.Interval
		now      time.Time
		want     []string
	}{
		{
			name:     "block in the middle",
			hours:    hours,
			duration: 30 * time.Minute,
			busy:     []calendar.Interval{{Start: at(10, 0), End: at(10, 30)}},
			now:      yesterday,
			want:     []string{"09:00", "09:30", "10:30", "11:00", "11:30"},
		},
		{
			name:     "busy boundaries are half-open",
			hours:    hours,
			duration: 60 * time.Minute,
			busy:     []calendar.Interval{{Start: at(9, 0), End: at(10, 0)}},
			now:      yesterday,
			want:     []string{"10:00", "11:00"},
		},
		{
			name:     "odd duration steps by rounded duration",
			hours:    hours,
			duration: 40 * time.Minute,
			now:      yesterday,
			want:     []string{"09:00", "09:45", "10:30", "11:15"},
		},
		{
			name:     "working start off the grid is rounded up",
			hours:    &models.WorkingHours{StartMinute: 9*60 + 5, EndMinute: 10 * 60},
			duration: 15 * time.Minute,
			now:      yesterday,
			want:     []string{"09:15", "09:30", "09:45"},
		},
		{
			name:     "today only offers starts after now",
			hours:    hours,
			duration: 30 * time.Minute,
			now:      at(10, 0),
			want:     []string{"10:30", "11:00", "11:30"},
		},
		{
			name:     "day off",
			hours:    nil,
			duration: 30 * time.Minute,
			now:      yesterday,
			want:     []string{},
		},
		{
			name:     "service longer than the day",
			hours:    hours,
			duration: 4 * time.Hour,
			now:      yesterday,
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeSlots(SlotInput{
				Location: loc,
				Date:     date,
				Hours:    tt.hours,
				Duration: tt.duration,
				Busy:     tt.busy,
				Now:      tt.now,
			})
			if !equal(clockTimes(got, loc), tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, clockTimes(got, loc))
			}
		})
	}
}

func TestComputeSlots_DSTGap(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	// 2026-03-08 clocks jump from 02:00 to 03:00
	date := calendar.LocalDate{Year: 2026, Month: time.March, Day: 8}
	got := ComputeSlots(SlotInput{
		Location: loc,
		Date:     date,
		Hours:    &models.WorkingHours{StartMinute: 60, EndMinute: 4 * 60},
		Duration: 60 * time.Minute,
		Now:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	// 01:00 EST, then one real hour later is 03:00 EDT; 04:00 would end past closing
	want := []string{"01:00", "03:00"}
	if got := clockTimes(got, loc); !equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestMergeSlots(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	a := []time.Time{base, base.Add(30 * time.Minute)}
	b := []time.Time{base.Add(15 * time.Minute), base.Add(30 * time.Minute).In(time.FixedZone("X", 3600))}

	got := MergeSlots(a, b)
	if len(got) != 3 {
		t.Fatalf("expected 3 unique slots, got %d: %v", len(got), got)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].After(got[i-1]) {
			t.Fatalf("expected ascending order, got %v", got)
		}
	}
}
