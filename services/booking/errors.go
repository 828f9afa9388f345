package booking

import (
	"errors"

	"tailortalk/services/session"
)

var (
	ErrAvailabilityUnreachable = errors.New("availability unreachable")
	ErrBookingConflictAtCommit = errors.New("booking conflict at commit")
	ErrBookingUnauthorized     = errors.New("booking unauthorized")
	ErrSessionExpired          = errors.New("session expired")

	ErrSessionNotFound = session.ErrSessionNotFound
	ErrSessionBusy     = session.ErrSessionBusy
)

// UserMessage maps an error kind to the only text a user may see for it.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrSessionNotFound):
		return replySessionGone
	case errors.Is(err, ErrSessionBusy):
		return "I'm still working on your previous message. Please try again in a moment."
	case errors.Is(err, ErrBookingUnauthorized):
		return replyUnauthorized
	case errors.Is(err, ErrAvailabilityUnreachable):
		return replyUnreachable
	default:
		return "Something went wrong on our side. Please try again."
	}
}
