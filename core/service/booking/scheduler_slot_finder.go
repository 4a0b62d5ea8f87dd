package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"
	"scheduler_server/pkg/apperr"
)

const dateLayout = "2006-01-02"

// SlotConfig describes the company calendar the grid is laid over.
type SlotConfig struct {
	CompanyLocation *time.Location
	// OpenMinute and CloseMinute are minutes after midnight in CompanyLocation.
	OpenMinute  int
	CloseMinute int
	Step        time.Duration
	Buffer      time.Duration
}

func DefaultSlotConfig() SlotConfig {
	return SlotConfig{
		CompanyLocation: time.UTC,
		OpenMinute:      10 * 60,
		CloseMinute:     18 * 60,
		Step:            30 * time.Minute,
		Buffer:          15 * time.Minute,
	}
}

type SlotQuery struct {
	// Date is YYYY-MM-DD, "today" or "tomorrow" in the caller's timezone.
	Date     string
	Timezone string
	Duration time.Duration
}

// SlotFinder lists free meeting starts for a day. The result is a snapshot;
// Engine.Create re-checks before anything is booked.
type SlotFinder struct {
	store out.CalendarStore
	cfg   SlotConfig
	now   func() time.Time
}

func NewSlotFinder(store out.CalendarStore, cfg SlotConfig) *SlotFinder {
	if cfg.CompanyLocation == nil {
		cfg.CompanyLocation = time.UTC
	}
	if cfg.Step <= 0 {
		cfg.Step = 30 * time.Minute
	}
	return &SlotFinder{store: store, cfg: cfg, now: time.Now}
}

// SetClock replaces the time source (for testing).
func (f *SlotFinder) SetClock(now func() time.Time) {
	f.now = now
}

// FindSlots returns free start times in the caller's timezone, ascending.
func (f *SlotFinder) FindSlots(ctx context.Context, q SlotQuery) ([]time.Time, error) {
	loc, err := domain.ResolveLocation(q.Timezone)
	if err != nil {
		return nil, apperr.ValidationFailed(fmt.Sprintf("Unknown timezone %q. Use an IANA name such as Asia/Kolkata.", q.Timezone))
	}
	duration := q.Duration
	if duration <= 0 {
		duration = f.cfg.Step
	}

	now := f.now()
	today := domain.Midnight(now, loc)

	day, err := resolveDay(q.Date, today, loc)
	if err != nil {
		return nil, err
	}
	if day.Before(today) {
		return nil, apperr.ValidationFailed("The date you selected is in the past.")
	}

	// One day either side covers bookings that spill across midnight in
	// either timezone.
	from := day.AddDate(0, 0, -1).UTC()
	to := day.AddDate(0, 0, 2).UTC()
	bookings, err := f.store.FindStartingBetween(ctx, from, to)
	if err != nil {
		return nil, apperr.DatabaseError("load bookings for slot search", err)
	}
	busy := make([]domain.TimeWindow, 0, len(bookings))
	for _, b := range bookings {
		busy = append(busy, b.Window().ExtendEnd(f.cfg.Buffer))
	}

	seen := make(map[int64]struct{})
	var slots []time.Time
	for offset := 0; offset < 2; offset++ {
		companyDay := day.AddDate(0, 0, offset).In(f.cfg.CompanyLocation)
		y, m, d := companyDay.Date()
		open := time.Date(y, m, d, 0, f.cfg.OpenMinute, 0, 0, f.cfg.CompanyLocation)
		closeAt := time.Date(y, m, d, 0, f.cfg.CloseMinute, 0, 0, f.cfg.CompanyLocation)

		for start := open; !start.Add(duration).After(closeAt); start = start.Add(f.cfg.Step) {
			candidate := domain.TimeWindow{Start: start.UTC(), End: start.Add(duration).UTC()}
			if candidate.AnyOverlap(busy) {
				continue
			}
			if !candidate.Start.After(now) {
				continue
			}
			local := start.In(loc)
			if !domain.SameDate(local, day) {
				continue
			}
			key := candidate.Start.Unix()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			slots = append(slots, local)
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots, nil
}

func resolveDay(value string, today time.Time, loc *time.Location) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, apperr.ValidationFailed("Invalid date format. Use YYYY-MM-DD, 'today' or 'tomorrow'.")
	}
	return day, nil
}

// FormatSlots renders slots as RFC 3339 strings with offset.
func FormatSlots(slots []time.Time) []string {
	formatted := make([]string, len(slots))
	for i, s := range slots {
		formatted[i] = s.Format(time.RFC3339)
	}
	return formatted
}
