package booking

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tailortalk/models"
	"tailortalk/services/calendar"
	"tailortalk/services/extraction"
	"tailortalk/utils"
)

// HandleTurn runs one user utterance through the state machine. Turns on the
// same session are serialized by the store lock.
func (s *Service) HandleTurn(ctx context.Context, sessionID, text string) (*models.TurnResult, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State.Terminal() {
		return s.result(sess, terminalReply(sess.State)), nil
	}

	now := s.now()
	sess.AddMessage(models.RoleUser, text, now)
	sess.LastActivity = now

	from := sess.State
	reply, err := s.advance(ctx, sess, text)
	if err != nil {
		s.Logger.Error("Turn aborted", zap.String("sessionId", sessionID), zap.String("state", string(from)), zap.Error(err))
		return nil, err
	}
	sess.AddMessage(models.RoleAssistant, reply, s.now())

	if sess.State == models.StateCancelled {
		if err := s.Store.Delete(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("failed to delete session: %w", err)
		}
	} else if err := s.Store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.Logger.Info("Turn handled",
		zap.String("sessionId", sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(sess.State)),
	)
	return s.result(sess, reply), nil
}

func (s *Service) advance(ctx context.Context, sess *models.Session, text string) (string, error) {
	// A reply that still schedules something is never read as a cancel.
	if extraction.IsCancel(text) && !extraction.MentionsSchedule(text) {
		if err := sess.Transition(models.StateCancelled); err != nil {
			return "", err
		}
		return replyCancelled, nil
	}

	switch sess.State {
	case models.StateProposingAlternatives:
		return s.onProposing(ctx, sess, text)
	case models.StateAwaitingConfirmation:
		return s.onAwaiting(ctx, sess, text)
	case models.StateCheckingAvailability:
		// A turn died mid-check; start over from collection.
		if err := sess.Transition(models.StateCollecting); err != nil {
			return "", err
		}
	}
	return s.collect(ctx, sess, text, extraction.TurnContext{History: sess.History})
}

func (s *Service) onProposing(ctx context.Context, sess *models.Session, text string) (string, error) {
	// "Feb 2nd at 10am instead" names a new slot; its ordinal is not a pick.
	picking := !extraction.MentionsSchedule(text) && !extraction.IsCorrection(text)
	pick, ok := 0, false
	if picking {
		pick, ok = extraction.ParseSelection(text, len(sess.Alternatives))
		if !ok && len(sess.Alternatives) == 1 && extraction.IsAffirmative(text) {
			pick, ok = 1, true
		}
	}
	if ok {
		sess.Request.MoveTo(sess.Alternatives[pick-1], s.Settings.Location)
		sess.Request.Awaiting = models.FieldNone
		sess.Alternatives = nil
		if err := sess.Transition(models.StateAwaitingConfirmation); err != nil {
			return "", err
		}
		return confirmPrompt(sess.Request), nil
	}
	if picking && extraction.IsAffirmative(text) {
		return "Which one would you like? Reply with its number.", nil
	}

	// Anything else rejects the proposals. The original slot is taken, so
	// its date and time are no longer trusted.
	if err := sess.Transition(models.StateCollecting); err != nil {
		return "", err
	}
	sess.Alternatives = nil
	sess.Request = extraction.ResetTentative(sess.Request, models.FieldDate, models.FieldTime)
	sess.Request.Awaiting = models.FieldNone

	req, out := s.Extractor.ExtractTurn(ctx, text, sess.Request, extraction.TurnContext{History: sess.History})
	if !out.Recognized {
		sess.Request.Awaiting = models.FieldDate
		return replyOtherTime, nil
	}
	return s.proceed(ctx, sess, req, out)
}

func (s *Service) onAwaiting(ctx context.Context, sess *models.Session, text string) (string, error) {
	correction := extraction.IsCorrection(text)
	if extraction.IsAffirmative(text) && !correction {
		return s.commit(ctx, sess)
	}

	// Whatever the reply changes is merged as a correction.
	req, out := s.Extractor.ExtractTurn(ctx, text, sess.Request, extraction.TurnContext{History: sess.History, Correction: true})
	switch {
	case out.Recognized:
		if err := sess.Transition(models.StateCollecting); err != nil {
			return "", err
		}
		return s.proceed(ctx, sess, req, out)

	case extraction.IsNegative(text) || correction:
		if err := sess.Transition(models.StateCollecting); err != nil {
			return "", err
		}
		sess.Request = extraction.ResetTentative(sess.Request, models.FieldDate, models.FieldTime)
		sess.Request.Awaiting = models.FieldDate
		return replyWhatChange, nil
	}
	return "Sorry, I didn't catch that. " + confirmPrompt(sess.Request), nil
}

func (s *Service) collect(ctx context.Context, sess *models.Session, text string, tc extraction.TurnContext) (string, error) {
	req, out := s.Extractor.ExtractTurn(ctx, text, sess.Request, tc)
	return s.proceed(ctx, sess, req, out)
}

// proceed stores the merged request and, once every slot is confirmed,
// checks availability.
func (s *Service) proceed(ctx context.Context, sess *models.Session, req models.BookingRequest, out extraction.Outcome) (string, error) {
	sess.Request = req

	switch out.Kind {
	case extraction.Ambiguous:
		return askAmbiguous(out), nil
	case extraction.Partial:
		if !out.Recognized && userTurns(sess) == 1 {
			return Greeting, nil
		}
		return askFor(out.Missing, req), nil
	}

	window, err := req.Window(s.Settings.Location)
	if err != nil {
		return "", err
	}
	if !window.Start.After(s.now()) {
		sess.Request = extraction.ResetTentative(req, models.FieldDate, models.FieldTime)
		sess.Request.Awaiting = models.FieldDate
		return replyPastTime, nil
	}

	if err := sess.Transition(models.StateCheckingAvailability); err != nil {
		return "", err
	}
	res, err := s.check(ctx, window)
	if err != nil {
		return s.fail(sess, err), nil
	}

	switch {
	case res.Available():
		if err := sess.Transition(models.StateAwaitingConfirmation); err != nil {
			return "", err
		}
		return confirmPrompt(sess.Request), nil
	case len(res.Alternatives) > 0:
		sess.Alternatives = res.Alternatives
		if err := sess.Transition(models.StateProposingAlternatives); err != nil {
			return "", err
		}
		return proposalsReply("That time is already taken.", res.Alternatives, s.Settings.Location), nil
	default:
		if err := sess.Transition(models.StateCollecting); err != nil {
			return "", err
		}
		sess.Request = extraction.ResetTentative(sess.Request, models.FieldDate, models.FieldTime)
		sess.Request.Awaiting = models.FieldDate
		return replyNoSlots, nil
	}
}

// commit creates the event for the confirmed window, exactly once on success.
func (s *Service) commit(ctx context.Context, sess *models.Session) (string, error) {
	req := sess.Request
	window, err := req.Window(s.Settings.Location)
	if err != nil {
		return "", err
	}

	ev, err := utils.CallWithRetry(ctx, s.policy(), func(ctx context.Context) (*models.CalendarEvent, error) {
		return s.Calendar.CreateEvent(ctx, req.Title, window, req.Attendees)
	})
	switch {
	case err == nil:
		sess.Booking = ev
		if err := sess.Transition(models.StateBooked); err != nil {
			return "", err
		}
		s.Logger.Info("Meeting booked", zap.String("sessionId", sess.ID), zap.String("eventId", ev.ID), zap.Time("start", window.Start))
		return bookedReply(ev, s.Settings.Location), nil

	case errors.Is(err, calendar.ErrConflict):
		s.Logger.Warn("Slot taken between check and commit", zap.String("sessionId", sess.ID),
			zap.Error(fmt.Errorf("%w: %v", ErrBookingConflictAtCommit, err)))
		return s.repropose(ctx, sess, window)

	default:
		return s.fail(sess, err), nil
	}
}

// repropose re-checks after a commit conflict and offers fresh alternatives.
func (s *Service) repropose(ctx context.Context, sess *models.Session, window models.TimeWindow) (string, error) {
	res, err := s.check(ctx, window)
	if err != nil {
		return s.fail(sess, err), nil
	}
	if len(res.Alternatives) > 0 {
		sess.Alternatives = res.Alternatives
		if err := sess.Transition(models.StateProposingAlternatives); err != nil {
			return "", err
		}
		return proposalsReply("Sorry, that slot was just taken.", res.Alternatives, s.Settings.Location), nil
	}
	if err := sess.Transition(models.StateCollecting); err != nil {
		return "", err
	}
	sess.Request = extraction.ResetTentative(sess.Request, models.FieldDate, models.FieldTime)
	sess.Request.Awaiting = models.FieldDate
	return replyNoSlots, nil
}

func (s *Service) check(ctx context.Context, window models.TimeWindow) (models.AvailabilityResult, error) {
	return utils.CallWithRetry(ctx, s.policy(), func(ctx context.Context) (models.AvailabilityResult, error) {
		return s.Resolver.Check(ctx, window)
	})
}

func (s *Service) policy() utils.CallPolicy {
	return utils.CallPolicy{
		Timeout:   s.Settings.CollaboratorTimeout,
		Delay:     s.Settings.RetryDelay,
		Transient: calendar.IsTransient,
	}
}

// fail moves the session to FAILED and picks the user-facing apology.
// Collaborator detail stays in the log.
func (s *Service) fail(sess *models.Session, cause error) string {
	kind := ErrAvailabilityUnreachable
	reply := replyUnreachable
	if errors.Is(cause, calendar.ErrUnauthorized) {
		kind = ErrBookingUnauthorized
		reply = replyUnauthorized
	}
	if err := sess.Transition(models.StateFailed); err != nil {
		s.Logger.Error("Cannot fail session", zap.String("sessionId", sess.ID), zap.Error(err))
	}
	s.Logger.Error("Booking failed",
		zap.String("sessionId", sess.ID),
		zap.String("kind", kind.Error()),
		zap.Error(cause),
	)
	return reply
}

func userTurns(sess *models.Session) int {
	n := 0
	for _, m := range sess.History {
		if m.Role == models.RoleUser {
			n++
		}
	}
	return n
}
