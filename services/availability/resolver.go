// Package availability checks a requested window against the calendar and
// finds nearby free windows when it is taken.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"tailortalk/config"
	"tailortalk/models"
	"tailortalk/services/calendar"
)

// ErrInvalidRange is returned for slot searches that run backwards or span
// more than MaxSearchDays.
var ErrInvalidRange = errors.New("invalid search range")

// MaxSearchDays bounds one FreeSlots query.
const MaxSearchDays = 31

type Resolver struct {
	cal      calendar.Calendar
	settings config.Booking
	logger   *zap.Logger
	now      func() time.Time
}

func NewResolver(cal calendar.Calendar, settings config.Booking, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Resolver{cal: cal, settings: settings, logger: logger, now: time.Now}
}

// WithClock overrides the reference time used to reject past alternatives.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Check lists the calendar once over the requested window and the look-ahead
// horizon, then derives conflicts and alternatives from that same event set.
func (r *Resolver) Check(ctx context.Context, requested models.TimeWindow) (models.AvailabilityResult, error) {
	result := models.AvailabilityResult{Requested: requested}

	horizonEnd := r.horizonEnd(requested.Start)
	if horizonEnd.Before(requested.End) {
		horizonEnd = requested.End
	}
	span, err := models.NewTimeWindow(requested.Start, horizonEnd)
	if err != nil {
		return result, err
	}

	events, err := r.cal.ListEvents(ctx, span)
	if err != nil {
		return result, fmt.Errorf("list events: %w", err)
	}

	result.Conflicts = Conflicts(events, requested)
	if len(result.Conflicts) == 0 {
		return result, nil
	}
	result.Alternatives = r.alternatives(events, requested, horizonEnd)

	r.logger.Debug("Availability checked",
		zap.Time("start", requested.Start),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Int("alternatives", len(result.Alternatives)),
	)
	return result, nil
}

// FreeSlots lists every free window of the given length inside business
// hours on the days first through last, stepping by the slot step. Both days
// are read as calendar dates in the configured zone. Windows that already
// started are left out.
func (r *Resolver) FreeSlots(ctx context.Context, first, last time.Time, duration time.Duration) ([]models.TimeWindow, error) {
	loc := r.settings.Location
	first = midnight(first, loc)
	last = midnight(last, loc)
	if duration <= 0 || last.Before(first) || last.Sub(first) > MaxSearchDays*24*time.Hour {
		return nil, ErrInvalidRange
	}
	span, err := models.NewTimeWindow(
		first.Add(time.Duration(r.settings.BusinessStartHour)*time.Hour),
		last.Add(time.Duration(r.settings.BusinessEndHour)*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	events, err := r.cal.ListEvents(ctx, span)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	step := r.settings.SlotStep
	if step <= 0 {
		step = 30 * time.Minute
	}
	now := r.now()
	var free []models.TimeWindow
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if !r.isBusinessDay(day) {
			continue
		}
		dayEnd := day.Add(time.Duration(r.settings.BusinessEndHour) * time.Hour)
		for start := day.Add(time.Duration(r.settings.BusinessStartHour) * time.Hour); !start.Add(duration).After(dayEnd); start = start.Add(step) {
			if !start.After(now) {
				continue
			}
			candidate, err := models.WindowFor(start, duration)
			if err != nil || len(Conflicts(events, candidate)) > 0 {
				continue
			}
			free = append(free, candidate)
		}
	}
	r.logger.Debug("Free slots listed",
		zap.Time("from", first),
		zap.Time("to", last),
		zap.Int("slots", len(free)),
	)
	return free, nil
}

// Upcoming returns the events starting within the next days days, soonest first.
func (r *Resolver) Upcoming(ctx context.Context, days int) ([]models.CalendarEvent, error) {
	if days <= 0 {
		return nil, ErrInvalidRange
	}
	now := r.now()
	span, err := models.NewTimeWindow(now, now.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}
	events, err := r.cal.ListEvents(ctx, span)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return Conflicts(events, span), nil
}

func midnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Conflicts returns the events overlapping w, ordered by start.
func Conflicts(events []models.CalendarEvent, w models.TimeWindow) []models.CalendarEvent {
	var out []models.CalendarEvent
	for _, ev := range events {
		if ev.Window.Overlaps(w) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Window.Start.Before(out[j].Window.Start)
	})
	return out
}

func (r *Resolver) alternatives(events []models.CalendarEvent, requested models.TimeWindow, horizonEnd time.Time) []models.TimeWindow {
	step := r.settings.SlotStep
	if step <= 0 {
		step = 30 * time.Minute
	}
	limit := r.settings.MaxAlternatives
	if limit <= 0 {
		return nil
	}
	duration := requested.Duration()
	now := r.now()

	var found []models.TimeWindow
	for start := requested.Start.Add(step); !start.After(horizonEnd); start = start.Add(step) {
		candidate, err := models.WindowFor(start, duration)
		if err != nil || candidate.End.After(horizonEnd) {
			break
		}
		if !start.After(now) || !r.withinBusinessHours(candidate) {
			continue
		}
		if len(Conflicts(events, candidate)) > 0 {
			continue
		}
		found = append(found, candidate)
		if len(found) == limit {
			break
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		di := absDuration(found[i].Start.Sub(requested.Start))
		dj := absDuration(found[j].Start.Sub(requested.Start))
		if di != dj {
			return di < dj
		}
		return found[i].Start.Before(found[j].Start)
	})
	return found
}

// horizonEnd is the close of business on the last look-ahead business day,
// counting the requested day when it is one.
func (r *Resolver) horizonEnd(from time.Time) time.Time {
	days := r.settings.LookaheadDays
	if days <= 0 {
		days = 1
	}
	local := from.In(r.settings.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.settings.Location)
	last := day
	for counted, guard := 0, 0; counted < days && guard < 366; guard++ {
		if r.isBusinessDay(day) {
			last = day
			counted++
		}
		day = day.AddDate(0, 0, 1)
	}
	return last.Add(time.Duration(r.settings.BusinessEndHour) * time.Hour)
}

func (r *Resolver) isBusinessDay(t time.Time) bool {
	if len(r.settings.BusinessDays) == 0 {
		return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
	}
	return r.settings.BusinessDays[t.Weekday()]
}

func (r *Resolver) withinBusinessHours(w models.TimeWindow) bool {
	start := w.Start.In(r.settings.Location)
	end := w.End.In(r.settings.Location)
	if !r.isBusinessDay(start) {
		return false
	}
	dayStart := time.Date(start.Year(), start.Month(), start.Day(), r.settings.BusinessStartHour, 0, 0, 0, r.settings.Location)
	dayEnd := time.Date(start.Year(), start.Month(), start.Day(), r.settings.BusinessEndHour, 0, 0, 0, r.settings.Location)
	return !start.Before(dayStart) && !end.After(dayEnd)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
