package models

import (
	"fmt"
	"time"
)

// Field names one slot of a booking request.
type Field string

const (
	FieldNone      Field = ""
	FieldTitle     Field = "title"
	FieldDate      Field = "date"
	FieldTime      Field = "time"
	FieldDuration  Field = "duration"
	FieldAttendees Field = "attendees"
)

// RequiredFields lists the slots that must be confirmed before commit, in the
// order the assistant asks for them.
var RequiredFields = []Field{FieldTitle, FieldDate, FieldTime, FieldDuration}

// Confidence is the trust level of one slot value.
type Confidence string

const (
	ConfidenceUnset     Confidence = "unset"
	ConfidenceTentative Confidence = "tentative"
	ConfidenceConfirmed Confidence = "confirmed"
)

func (c Confidence) rank() int {
	switch c {
	case ConfidenceConfirmed:
		return 2
	case ConfidenceTentative:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether c is at or above other.
func (c Confidence) AtLeast(other Confidence) bool {
	return c.rank() >= other.rank()
}

// ExtractionSource records which parser produced the latest values.
type ExtractionSource string

const (
	SourceNone     ExtractionSource = ""
	SourceNLU      ExtractionSource = "nlu"
	SourceFallback ExtractionSource = "fallback"
)

// SlotConfidence holds one confidence per slot.
type SlotConfidence struct {
	Title     Confidence `json:"title,omitempty"`
	Date      Confidence `json:"date,omitempty"`
	Time      Confidence `json:"time,omitempty"`
	Duration  Confidence `json:"duration,omitempty"`
	Attendees Confidence `json:"attendees,omitempty"`
}

func (s SlotConfidence) Get(f Field) Confidence {
	var c Confidence
	switch f {
	case FieldTitle:
		c = s.Title
	case FieldDate:
		c = s.Date
	case FieldTime:
		c = s.Time
	case FieldDuration:
		c = s.Duration
	case FieldAttendees:
		c = s.Attendees
	}
	if c == "" {
		return ConfidenceUnset
	}
	return c
}

func (s *SlotConfidence) Set(f Field, c Confidence) {
	switch f {
	case FieldTitle:
		s.Title = c
	case FieldDate:
		s.Date = c
	case FieldTime:
		s.Time = c
	case FieldDuration:
		s.Duration = c
	case FieldAttendees:
		s.Attendees = c
	}
}

// BookingRequest accumulates the slots of one booking across turns.
// Date is "2006-01-02" in the configured zone and StartMinute counts minutes
// from midnight, matching how timeslots are stored elsewhere.
type BookingRequest struct {
	Title           string           `json:"title,omitempty"`
	Date            string           `json:"date,omitempty"`
	StartMinute     int              `json:"startMinute"`
	DurationMinutes int              `json:"durationMinutes"`
	Attendees       []string         `json:"attendees,omitempty"`
	Confidence      SlotConfidence   `json:"confidence"`
	Source          ExtractionSource `json:"source,omitempty"`
	Awaiting        Field            `json:"awaiting,omitempty"`
	DefaultDuration bool             `json:"defaultDuration,omitempty"`
	// PendingTimes holds the readings of an ambiguous clock value awaiting clarification.
	PendingTimes []int `json:"pendingTimes,omitempty"`
}

// Eligible reports whether every required slot is confirmed.
func (r BookingRequest) Eligible() bool {
	return r.FirstUnconfirmed() == FieldNone
}

// FirstUnconfirmed returns the first required slot below confirmed, or FieldNone.
func (r BookingRequest) FirstUnconfirmed() Field {
	for _, f := range RequiredFields {
		if r.Confidence.Get(f) != ConfidenceConfirmed {
			return f
		}
	}
	return FieldNone
}

// Start combines Date and StartMinute in loc.
func (r BookingRequest) Start(loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", r.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid booking date %q: %w", r.Date, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), r.StartMinute/60, r.StartMinute%60, 0, 0, loc), nil
}

// Window is the requested interval derived from start and duration.
func (r BookingRequest) Window(loc *time.Location) (TimeWindow, error) {
	start, err := r.Start(loc)
	if err != nil {
		return TimeWindow{}, err
	}
	return WindowFor(start, time.Duration(r.DurationMinutes)*time.Minute)
}

// MoveTo places the request on w, marking date and time confirmed.
func (r *BookingRequest) MoveTo(w TimeWindow, loc *time.Location) {
	start := w.Start.In(loc)
	r.Date = start.Format("2006-01-02")
	r.StartMinute = start.Hour()*60 + start.Minute()
	r.Confidence.Date = ConfidenceConfirmed
	r.Confidence.Time = ConfidenceConfirmed
}

// Clone returns a deep copy.
func (r BookingRequest) Clone() BookingRequest {
	out := r
	if r.Attendees != nil {
		out.Attendees = append([]string(nil), r.Attendees...)
	}
	if r.PendingTimes != nil {
		out.PendingTimes = append([]int(nil), r.PendingTimes...)
	}
	return out
}
