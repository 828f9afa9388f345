package extraction

import (
	"errors"

	"tailortalk/models"
)

// ErrExtractionAmbiguous marks a recognized value with more than one reading.
// It drives a clarifying question and is never surfaced as a failure.
var ErrExtractionAmbiguous = errors.New("extraction ambiguous")

type OutcomeKind string

const (
	Resolved  OutcomeKind = "resolved"
	Partial   OutcomeKind = "partial"
	Ambiguous OutcomeKind = "ambiguous"
)

// Outcome is the tagged result of one extraction. Missing is set for Partial;
// Field, Value and Options for Ambiguous.
type Outcome struct {
	Kind    OutcomeKind
	Missing models.Field
	Field   models.Field
	Value   string
	Options []int
	// Recognized reports whether the utterance contributed any slot.
	Recognized bool
}

func (o Outcome) Err() error {
	if o.Kind == Ambiguous {
		return ErrExtractionAmbiguous
	}
	return nil
}
