// Package calendar converts between shop-local calendar days and absolute instants
// and defines the slot grid every bookable start time must sit on.
package calendar

import (
	"fmt"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
)

// Granularity is the spacing of the slot grid
const Granularity = 15 * time.Minute

const MinutesPerDay = 24 * 60

// LocalDate is a calendar day with no zone attached
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseLocalDate(s string) (LocalDate, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return LocalDate{}, fmt.Errorf("%w: %q", models.ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location
func DateOf(t time.Time) LocalDate {
	y, m, d := t.Date()
	return LocalDate{Year: y, Month: m, Day: d}
}

// Today returns the current local date in loc
func Today(now time.Time, loc *time.Location) LocalDate {
	return DateOf(now.In(loc))
}

func (d LocalDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d LocalDate) IsZero() bool {
	return d == LocalDate{}
}

func (d LocalDate) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

func (d LocalDate) AddDays(n int) LocalDate {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

func (d LocalDate) Before(o LocalDate) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// Start is local midnight of d in loc, as a UTC instant
func (d LocalDate) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc).UTC()
}

// At returns the instant of a local wall-clock minute on d. Minutes past 24h roll into the next day.
func (d LocalDate) At(loc *time.Location, minuteOfDay int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, minuteOfDay/60, minuteOfDay%60, 0, 0, loc).UTC()
}

// Bounds is the half-open interval covering the local day
func (d LocalDate) Bounds(loc *time.Location) Interval {
	return Interval{Start: d.Start(loc), End: d.AddDays(1).Start(loc)}
}

func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, models.ErrInvalidTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidTimezone, name)
	}
	return loc, nil
}

// MinuteOfDay returns the local wall-clock minute of t in loc
func MinuteOfDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	return lt.Hour()*60 + lt.Minute()
}

// OnGrid reports whether t is a valid slot boundary in loc
func OnGrid(t time.Time, loc *time.Location) bool {
	lt := t.In(loc)
	return lt.Second() == 0 && lt.Nanosecond() == 0 && lt.Minute()%int(Granularity/time.Minute) == 0
}

// Step is the distance between consecutive candidate starts for a service duration:
// the duration rounded up to the grid.
func Step(d time.Duration) time.Duration {
	if d <= Granularity {
		return Granularity
	}
	n := (d + Granularity - 1) / Granularity
	return n * Granularity
}

// CeilToGrid rounds a minute-of-day up to the next grid mark
func CeilToGrid(minuteOfDay int) int {
	g := int(Granularity / time.Minute)
	if r := minuteOfDay % g; r != 0 {
		return minuteOfDay + g - r
	}
	return minuteOfDay
}
