// Package booking runs the conversation state machine that turns chat turns
// into a committed calendar event.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tailortalk/config"
	"tailortalk/models"
	"tailortalk/services/availability"
	"tailortalk/services/calendar"
	"tailortalk/services/extraction"
	"tailortalk/services/session"
)

// lockWait bounds how long a turn waits behind another turn on the same session.
const lockWait = 5 * time.Second

type Service struct {
	Store     session.Store
	Extractor *extraction.Extractor
	Resolver  *availability.Resolver
	Calendar  calendar.Calendar
	Settings  config.Booking
	Logger    *zap.Logger

	now func() time.Time
}

func NewService(
	store session.Store,
	extractor *extraction.Extractor,
	resolver *availability.Resolver,
	cal calendar.Calendar,
	settings config.Booking,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Service{
		Store:     store,
		Extractor: extractor,
		Resolver:  resolver,
		Calendar:  cal,
		Settings:  settings,
		Logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the service clock, mainly for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

var _ Orchestrator = (*Service)(nil)

func (s *Service) StartSession(ctx context.Context) (string, error) {
	sess, err := s.Store.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	sess.AddMessage(models.RoleAssistant, Greeting, s.now())
	if err := s.Store.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	s.Logger.Info("Booking session started", zap.String("sessionId", sess.ID))
	return sess.ID, nil
}

func (s *Service) Session(ctx context.Context, sessionID string) (*models.SessionView, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &models.SessionView{
		SessionID:    sess.ID,
		State:        sess.State,
		Request:      sess.Request,
		History:      sess.History,
		Alternatives: sess.Alternatives,
		Booking:      sess.Booking,
	}, nil
}

// Cancel ends the session from outside the chat, e.g. a client closing it.
func (s *Service) Cancel(ctx context.Context, sessionID string) (*models.TurnResult, error) {
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
	if err := sess.Transition(models.StateCancelled); err != nil {
		return nil, err
	}
	if err := s.Store.Delete(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to delete session: %w", err)
	}
	s.Logger.Info("Booking session cancelled", zap.String("sessionId", sessionID))
	return s.result(sess, replyCancelled), nil
}

func (s *Service) lock(ctx context.Context, sessionID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	unlock, err := s.Store.Lock(lockCtx, sessionID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrSessionBusy
		}
		return nil, err
	}
	return unlock, nil
}

// load fetches a session and rejects one idle past its TTL, deleting it.
func (s *Service) load(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now(), s.Settings.SessionTTL) {
		if err := s.Store.Delete(ctx, sessionID); err != nil {
			s.Logger.Warn("Failed to delete expired session", zap.String("sessionId", sessionID), zap.Error(err))
		}
		return nil, ErrSessionExpired
	}
	return sess, nil
}

func (s *Service) result(sess *models.Session, reply string) *models.TurnResult {
	return &models.TurnResult{
		SessionID:    sess.ID,
		Reply:        reply,
		State:        sess.State,
		NextAction:   nextAction(sess),
		Request:      sess.Request,
		Alternatives: sess.Alternatives,
		Booking:      sess.Booking,
	}
}
