package models

import (
	"errors"
	"fmt"
	"time"
)

// State is the conversation's position in the booking flow.
type State string

const (
	StateCollecting            State = "COLLECTING"
	StateCheckingAvailability  State = "CHECKING_AVAILABILITY"
	StateProposingAlternatives State = "PROPOSING_ALTERNATIVES"
	StateAwaitingConfirmation  State = "AWAITING_CONFIRMATION"
	StateBooked                State = "BOOKED"
	StateCancelled             State = "CANCELLED"
	StateFailed                State = "FAILED"
)

var ErrIllegalTransition = errors.New("illegal state transition")

// transitions lists the non-universal edges. CANCELLED and FAILED are reachable
// from every non-terminal state; BOOKED only from AWAITING_CONFIRMATION.
var transitions = map[State][]State{
	StateCollecting:            {StateCheckingAvailability},
	StateCheckingAvailability:  {StateAwaitingConfirmation, StateProposingAlternatives, StateCollecting},
	StateProposingAlternatives: {StateAwaitingConfirmation, StateCollecting},
	StateAwaitingConfirmation:  {StateBooked, StateCollecting, StateProposingAlternatives},
}

func (s State) Terminal() bool {
	return s == StateBooked || s == StateCancelled || s == StateFailed
}

// CanTransition reports whether from -> to is an edge of the booking graph.
// Staying in a non-terminal state is always allowed.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if from == to || to == StateCancelled || to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Message is one line of the conversation.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is the persisted state of one booking conversation.
type Session struct {
	ID           string         `json:"id"`
	State        State          `json:"state"`
	Request      BookingRequest `json:"request"`
	History      []Message      `json:"history"`
	Alternatives []TimeWindow   `json:"alternatives,omitempty"`
	Booking      *CalendarEvent `json:"booking,omitempty"`
	Trail        []State        `json:"trail"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastActivity time.Time      `json:"lastActivity"`
	TTL          time.Duration  `json:"ttl"`
}

// NewSession returns a session in the initial COLLECTING state.
func NewSession(id string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:           id,
		State:        StateCollecting,
		Trail:        []State{StateCollecting},
		CreatedAt:    now,
		LastActivity: now,
		TTL:          ttl,
	}
}

// Transition moves the session along the booking graph and records the step.
func (s *Session) Transition(to State) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.State, to)
	}
	if s.State != to {
		s.State = to
		s.Trail = append(s.Trail, to)
	}
	return nil
}

// Expired reports whether the session has been idle longer than ttl.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.TTL
	}
	return ttl > 0 && now.Sub(s.LastActivity) > ttl
}

func (s *Session) AddMessage(role, content string, at time.Time) {
	s.History = append(s.History, Message{Role: role, Content: content, At: at})
}

// Visited reports whether the session ever entered state.
func (s *Session) Visited(state State) bool {
	for _, st := range s.Trail {
		if st == state {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stored state is never shared with a caller.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Request = s.Request.Clone()
	out.History = append([]Message(nil), s.History...)
	out.Alternatives = append([]TimeWindow(nil), s.Alternatives...)
	out.Trail = append([]State(nil), s.Trail...)
	if s.Booking != nil {
		b := *s.Booking
		b.Attendees = append([]string(nil), s.Booking.Attendees...)
		out.Booking = &b
	}
	return &out
}
