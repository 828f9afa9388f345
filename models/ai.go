package models

// TurnRequest is the payload of one chat turn.
type TurnRequest struct {
	Text string `json:"text" binding:"required"`
}

// TurnResult is what the assistant returns for one turn.
type TurnResult struct {
	SessionID    string         `json:"sessionId"`
	Reply        string         `json:"response"`
	State        State          `json:"state"`
	NextAction   string         `json:"nextAction"`
	Request      BookingRequest `json:"request"`
	Alternatives []TimeWindow   `json:"alternatives,omitempty"`
	Booking      *CalendarEvent `json:"booking,omitempty"`
}

// SessionView is the read-only projection served by GET /sessions/:id.
type SessionView struct {
	SessionID    string         `json:"sessionId"`
	State        State          `json:"state"`
	Request      BookingRequest `json:"request"`
	History      []Message      `json:"history"`
	Alternatives []TimeWindow   `json:"alternatives,omitempty"`
	Booking      *CalendarEvent `json:"booking,omitempty"`
}
