package models

// CalendarEvent is an existing commitment as reported by the calendar backend.
type CalendarEvent struct {
	ID        string     `bson:"id" json:"id"`
	Window    TimeWindow `bson:"window" json:"window"`
	Title     string     `bson:"title" json:"title"`
	Attendees []string   `bson:"attendees,omitempty" json:"attendees,omitempty"`
}

// AvailabilityResult is the outcome of checking one requested window.
type AvailabilityResult struct {
	Requested    TimeWindow      `json:"requested"`
	Conflicts    []CalendarEvent `json:"conflicts"`
	Alternatives []TimeWindow    `json:"alternatives"`
}

func (r AvailabilityResult) Available() bool {
	return len(r.Conflicts) == 0
}
