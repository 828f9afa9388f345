package booking

import (
	"fmt"
	"strings"
	"time"

	"tailortalk/models"
	"tailortalk/services/extraction"
)

const (
	Greeting = `Hi! I can book a meeting on the calendar for you. Tell me what it's about and when, for example "design review tomorrow at 2 PM for 30 minutes".`

	replyCancelled     = "Okay, I've cancelled this booking request. Nothing was added to the calendar."
	replySessionGone   = "This booking session has expired. Please start a new booking."
	replyAlreadyBooked = "This meeting is already booked. Please start a new booking to schedule another one."
	replyEnded         = "This booking session has ended. Please start a new booking."
	replyUnreachable   = "Sorry, I couldn't reach the calendar just now, so nothing was booked. Please try again later or add the meeting to the calendar directly."
	replyUnauthorized  = "Sorry, I can't write to the calendar because of a configuration problem on our side. Nothing was booked; please let the administrator know."
	replyWhatChange    = "No problem. What would you like to change?"
	replyOtherTime     = "Okay. What other day or time would work for you?"
	replyPastTime      = "That time has already passed. What other day or time would work for you?"
	replyNoSlots       = "That time is taken and I couldn't find an open slot in the next few business days. What other day or time would work for you?"
)

func formatWindow(w models.TimeWindow, loc *time.Location) string {
	start := w.Start.In(loc)
	end := w.End.In(loc)
	return fmt.Sprintf("%s at %s", start.Format("Monday, Jan 2"), start.Format("3:04 PM")) +
		" - " + end.Format("3:04 PM")
}

func formatSlot(req models.BookingRequest) string {
	return fmt.Sprintf("%s at %s", extraction.FormatDate(req.Date), extraction.FormatClock(req.StartMinute))
}

func askFor(field models.Field, req models.BookingRequest) string {
	tentative := req.Confidence.Get(field) == models.ConfidenceTentative
	switch field {
	case models.FieldTitle:
		if tentative {
			return fmt.Sprintf("Just to confirm, should I call the meeting %q?", req.Title)
		}
		return "What should I call this meeting?"
	case models.FieldDate, models.FieldTime:
		if tentative && req.Confidence.Get(models.FieldDate) != models.ConfidenceUnset &&
			req.Confidence.Get(models.FieldTime) != models.ConfidenceUnset {
			return fmt.Sprintf("Just to confirm, %s?", formatSlot(req))
		}
		if tentative && field == models.FieldDate {
			return fmt.Sprintf("Just to confirm, %s?", extraction.FormatDate(req.Date))
		}
		if field == models.FieldDate {
			return "What day works for you?"
		}
		if req.Confidence.Get(models.FieldDate) != models.ConfidenceUnset {
			return fmt.Sprintf("What time on %s?", extraction.FormatDate(req.Date))
		}
		return "What time works for you?"
	case models.FieldDuration:
		if tentative {
			return fmt.Sprintf("Just to confirm, %s long?", extraction.FormatDuration(req.DurationMinutes))
		}
		return "How long should the meeting be?"
	}
	return "Could you tell me a bit more about the meeting?"
}

func askAmbiguous(out extraction.Outcome) string {
	if len(out.Options) == 2 {
		return fmt.Sprintf("Did you mean %s or %s for %q?",
			extraction.FormatClock(out.Options[0]), extraction.FormatClock(out.Options[1]), out.Value)
	}
	return fmt.Sprintf("I'm not sure what you meant by %q. Could you say the time with AM or PM?", out.Value)
}

func confirmPrompt(req models.BookingRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s is free. I can book %q for %s", formatSlot(req), req.Title, extraction.FormatDuration(req.DurationMinutes))
	if len(req.Attendees) > 0 {
		fmt.Fprintf(&sb, " with %s", strings.Join(req.Attendees, ", "))
	}
	sb.WriteString(". Shall I go ahead?")
	return sb.String()
}

func proposalsReply(lead string, alts []models.TimeWindow, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(lead)
	sb.WriteString(" Here are the nearest open slots:")
	for i, w := range alts {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, formatWindow(w, loc))
	}
	sb.WriteString("\nReply with a number to pick one, or tell me another time.")
	return sb.String()
}

func bookedReply(ev *models.CalendarEvent, loc *time.Location) string {
	return fmt.Sprintf("Done! %q is booked for %s.", ev.Title, formatWindow(ev.Window, loc))
}

func terminalReply(state models.State) string {
	if state == models.StateBooked {
		return replyAlreadyBooked
	}
	return replyEnded
}

// nextAction hints the client at what the user is expected to do next.
func nextAction(sess *models.Session) string {
	switch sess.State {
	case models.StateCollecting:
		if f := sess.Request.Awaiting; f != models.FieldNone {
			return "provide_" + string(f)
		}
		return "provide_details"
	case models.StateAwaitingConfirmation:
		return "confirm"
	case models.StateProposingAlternatives:
		return "select_alternative"
	case models.StateBooked:
		return "done"
	default:
		return "start_new_session"
	}
}
