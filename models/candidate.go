package models

// Candidate is the raw structured guess produced by a parser before it is
// normalized against the calendar zone and business hours. Empty strings and
// zero durations mean "not mentioned".
type Candidate struct {
	Title           string   `json:"title"`
	DateExpr        string   `json:"date"`
	TimeExpr        string   `json:"time"`
	DurationMinutes int      `json:"duration"`
	Attendees       []string `json:"attendees"`
	Score           float64  `json:"confidence"`
}

// Empty reports whether the candidate carries no slot at all.
func (c Candidate) Empty() bool {
	return c.Title == "" && c.DateExpr == "" && c.TimeExpr == "" && c.DurationMinutes == 0 && len(c.Attendees) == 0
}
