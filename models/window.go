package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidWindow = errors.New("window end must be after start")

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `bson:"start" json:"start"`
	End   time.Time `bson:"end" json:"end"`
}

// NewTimeWindow validates end > start.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if !end.After(start) {
		return TimeWindow{}, fmt.Errorf("%w: %s - %s", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return TimeWindow{Start: start, End: end}, nil
}

// WindowFor builds a window of the given duration starting at start.
func WindowFor(start time.Time, d time.Duration) (TimeWindow, error) {
	return NewTimeWindow(start, start.Add(d))
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps reports an open-interval overlap. Touching boundaries do not overlap.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return o.Start.Before(w.End) && o.End.After(w.Start)
}

func (w TimeWindow) Equal(o TimeWindow) bool {
	return w.Start.Equal(o.Start) && w.End.Equal(o.End)
}

func (w TimeWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}
