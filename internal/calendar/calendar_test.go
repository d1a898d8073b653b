package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestLocalDate(t *testing.T) {
	t.Parallel()

	t.Run("parses and formats", func(t *testing.T) {
		d, err := ParseLocalDate("2026-03-08")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if d.String() != "2026-03-08" {
			t.Fatalf("unexpected string %s", d)
		}
		if d.Weekday() != time.Sunday {
			t.Fatalf("expected Sunday, got %s", d.Weekday())
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseLocalDate("08/03/2026")
		if !errors.Is(err, models.ErrInvalidDate) {
			t.Fatalf("expected ErrInvalidDate, got %v", err)
		}
	})

	t.Run("adds days across month end", func(t *testing.T) {
		d := LocalDate{Year: 2026, Month: time.January, Day: 31}
		if got := d.AddDays(1); got != (LocalDate{Year: 2026, Month: time.February, Day: 1}) {
			t.Fatalf("unexpected %v", got)
		}
		if !d.Before(d.AddDays(1)) {
			t.Fatalf("expected day to be before the next")
		}
	})

	t.Run("day is 23 hours on spring-forward", func(t *testing.T) {
		loc := mustLoad(t, "America/New_York")
		d := LocalDate{Year: 2026, Month: time.March, Day: 8}
		b := d.Bounds(loc)
		if got := b.End.Sub(b.Start); got != 23*time.Hour {
			t.Fatalf("expected 23h day, got %v", got)
		}
	})

	t.Run("At converts wall clock to UTC", func(t *testing.T) {
		loc := mustLoad(t, "Europe/Lisbon")
		d := LocalDate{Year: 2026, Month: time.July, Day: 1}
		got := d.At(loc, 9*60+30)
		want := time.Date(2026, 7, 1, 8, 30, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})

	t.Run("Today follows the shop zone", func(t *testing.T) {
		loc := mustLoad(t, "Asia/Tokyo")
		now := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
		if got := Today(now, loc); got.String() != "2026-05-02" {
			t.Fatalf("expected 2026-05-02, got %s", got)
		}
	})
}

func TestGrid(t *testing.T) {
	t.Parallel()

	utc := time.UTC
	kathmandu := mustLoad(t, "Asia/Kathmandu")

	tests := []struct {
		name string
		t    time.Time
		loc  *time.Location
		want bool
	}{
		{"quarter hour", time.Date(2026, 1, 1, 9, 45, 0, 0, utc), utc, true},
		{"off by minutes", time.Date(2026, 1, 1, 9, 40, 0, 0, utc), utc, false},
		{"seconds set", time.Date(2026, 1, 1, 9, 45, 1, 0, utc), utc, false},
		{"millis set", time.Date(2026, 1, 1, 9, 45, 0, int(time.Millisecond), utc), utc, false},
		{"local grid in +05:45", time.Date(2026, 1, 1, 3, 15, 0, 0, utc), kathmandu, true},
	}
	for _, tt := range tests {
		if got := OnGrid(tt.t, tt.loc); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}

	steps := map[time.Duration]time.Duration{
		10 * time.Minute: 15 * time.Minute,
		15 * time.Minute: 15 * time.Minute,
		20 * time.Minute: 30 * time.Minute,
		30 * time.Minute: 30 * time.Minute,
		50 * time.Minute: 60 * time.Minute,
	}
	for d, want := range steps {
		if got := Step(d); got != want {
			t.Errorf("Step(%v): expected %v, got %v", d, want, got)
		}
	}

	if CeilToGrid(9*60+10) != 9*60+15 || CeilToGrid(9*60) != 9*60 {
		t.Errorf("CeilToGrid rounding is wrong")
	}
}

func TestInterval(t *testing.T) {
	t.Parallel()

	at := func(h, m int) time.Time { return time.Date(2026, 1, 1, h, m, 0, 0, time.UTC) }
	block := Interval{Start: at(10, 0), End: at(10, 30)}

	if (Interval{Start: at(9, 30), End: at(10, 0)}).Overlaps(block) {
		t.Errorf("touching at the start must not overlap")
	}
	if (Interval{Start: at(10, 30), End: at(11, 0)}).Overlaps(block) {
		t.Errorf("touching at the end must not overlap")
	}
	if !(Interval{Start: at(9, 45), End: at(10, 15)}).Overlaps(block) {
		t.Errorf("straddling interval must overlap")
	}
	if !(Interval{Start: at(9, 0), End: at(12, 0)}).Contains(block) {
		t.Errorf("expected containment")
	}
}
