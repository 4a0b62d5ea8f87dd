package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidWindow   = errors.New("end time must be after start time")
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrInvalidTime     = errors.New("invalid date/time")
)

// TimeWindow is a half-open interval [Start, End) normalised to UTC.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow builds a window and rejects empty or inverted intervals.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if !end.After(start) {
		return TimeWindow{}, ErrInvalidWindow
	}
	return TimeWindow{Start: start.UTC(), End: end.UTC()}, nil
}

// Overlaps reports whether the two half-open windows share any instant.
// Back-to-back windows (a.End == b.Start) do not overlap.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// ExtendEnd pushes the end of the window out by d.
func (w TimeWindow) ExtendEnd(d time.Duration) TimeWindow {
	return TimeWindow{Start: w.Start, End: w.End.Add(d)}
}

// MoveTo returns a window of the same length starting at start.
func (w TimeWindow) MoveTo(start time.Time) TimeWindow {
	start = start.UTC()
	return TimeWindow{Start: start, End: start.Add(w.Duration())}
}

// AnyOverlap reports whether w overlaps any of the busy windows.
func (w TimeWindow) AnyOverlap(busy []TimeWindow) bool {
	for _, b := range busy {
		if w.Overlaps(b) {
			return true
		}
	}
	return false
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// ResolveLocation loads an IANA timezone. An empty name resolves to UTC.
func ResolveLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	if name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseLocalTime parses an ISO-8601 timestamp written in loc.
// Numeric offsets are honoured. A trailing "Z" is dropped and the
// remainder is read as wall-clock time in loc. A bare date is midnight in loc.
func ParseLocalTime(value string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSuffix(strings.TrimSpace(value), "Z")
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTime)
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not ISO-8601 (YYYY-MM-DD[THH:MM[:SS]])", ErrInvalidTime, value)
}

// SameDate reports whether a and b fall on the same calendar date in their own locations.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Midnight returns 00:00 of t's date in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
