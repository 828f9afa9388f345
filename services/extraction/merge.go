package extraction

import (
	"strings"

	"tailortalk/models"
)

// Extraction is one utterance's normalized contribution. Only fields whose
// confidence in Values is above unset are applied.
type Extraction struct {
	Values     models.BookingRequest
	Correction bool
	Ambiguity  *TimeAmbiguity
}

// Merge folds ext into prior without mutating either. A confirmed field only
// changes on correction, which leaves it tentative. Applying the same
// extraction twice yields the same request as applying it once.
func Merge(prior models.BookingRequest, ext Extraction) models.BookingRequest {
	out := prior.Clone()
	v := ext.Values
	touched := false

	for _, f := range models.RequiredFields {
		incoming := v.Confidence.Get(f)
		if incoming == models.ConfidenceUnset {
			continue
		}
		current := out.Confidence.Get(f)
		replaceable := current != models.ConfidenceConfirmed ||
			(f == models.FieldDuration && out.DefaultDuration)

		next := incoming
		switch {
		case ext.Correction:
			next = models.ConfidenceTentative
		case !replaceable:
			continue
		case current.AtLeast(incoming) && !(f == models.FieldDuration && out.DefaultDuration):
			next = current
		}

		copyField(&out, v, f)
		out.Confidence.Set(f, next)
		touched = true
		if f == models.FieldDuration {
			out.DefaultDuration = false
		}
		if f == models.FieldTime {
			out.PendingTimes = nil
		}
	}

	if c := v.Confidence.Get(models.FieldAttendees); c != models.ConfidenceUnset && len(v.Attendees) > 0 {
		out.Attendees = unionAttendees(out.Attendees, v.Attendees)
		if !out.Confidence.Get(models.FieldAttendees).AtLeast(c) {
			out.Confidence.Attendees = c
		}
		touched = true
	}

	if ext.Ambiguity != nil && out.Confidence.Get(models.FieldTime) != models.ConfidenceConfirmed {
		out.PendingTimes = append([]int(nil), ext.Ambiguity.Options...)
	}
	if touched && v.Source != models.SourceNone {
		out.Source = v.Source
	}
	return out
}

func copyField(dst *models.BookingRequest, src models.BookingRequest, f models.Field) {
	switch f {
	case models.FieldTitle:
		dst.Title = src.Title
	case models.FieldDate:
		dst.Date = src.Date
	case models.FieldTime:
		dst.StartMinute = src.StartMinute
	case models.FieldDuration:
		dst.DurationMinutes = src.DurationMinutes
	}
}

func unionAttendees(have, add []string) []string {
	out := append([]string(nil), have...)
	seen := make(map[string]bool, len(have))
	for _, a := range have {
		seen[strings.ToLower(a)] = true
	}
	for _, a := range add {
		if !seen[strings.ToLower(a)] {
			seen[strings.ToLower(a)] = true
			out = append(out, a)
		}
	}
	return out
}

// ConfirmTentative escalates every tentative slot to confirmed. It backs an
// affirmative reply to a question that restated those slots.
func ConfirmTentative(r models.BookingRequest) models.BookingRequest {
	out := r.Clone()
	fields := []models.Field{models.FieldTitle, models.FieldDate, models.FieldTime, models.FieldDuration, models.FieldAttendees}
	for _, f := range fields {
		if out.Confidence.Get(f) == models.ConfidenceTentative {
			out.Confidence.Set(f, models.ConfidenceConfirmed)
		}
	}
	return out
}

// ResetTentative drops the given slots back to tentative, keeping their values.
func ResetTentative(r models.BookingRequest, fields ...models.Field) models.BookingRequest {
	out := r.Clone()
	for _, f := range fields {
		if out.Confidence.Get(f) == models.ConfidenceConfirmed {
			out.Confidence.Set(f, models.ConfidenceTentative)
		}
	}
	return out
}
