// Package extraction turns free-text turns into booking slots. A language
// model is tried first when configured; the rule parser always backs it up.
package extraction

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"

	"tailortalk/config"
	"tailortalk/models"
	"tailortalk/services/intelligence"
	"tailortalk/utils"
)

// ParseContext is what a parser knows about the conversation.
type ParseContext struct {
	Now      time.Time
	Location *time.Location
	Awaiting models.Field
	History  []models.Message
}

// Parser produces a raw candidate from one utterance.
type Parser interface {
	Parse(ctx context.Context, utterance string, pc ParseContext) (models.Candidate, error)
}

// NLUParser adapts a language model client to Parser.
type NLUParser struct {
	Client intelligence.NLU
}

func (p NLUParser) Parse(ctx context.Context, utterance string, pc ParseContext) (models.Candidate, error) {
	return p.Client.Complete(ctx, utterance, intelligence.Context{
		Now:      pc.Now,
		Location: pc.Location,
		Awaiting: pc.Awaiting,
		History:  pc.History,
	})
}

var (
	pmReplyRe = regexp.MustCompile(`\b(pm|p\.m\.|afternoon|evening|night)\b`)
	amReplyRe = regexp.MustCompile(`\b(am|a\.m\.|morning)\b`)
)

type Extractor struct {
	primary  Parser
	fallback Parser
	settings config.Booking
	logger   *zap.Logger
	now      func() time.Time
}

// NewExtractor wires the primary parser (nil for rules only) to the rule
// fallback.
func NewExtractor(primary Parser, settings config.Booking, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		primary:  primary,
		fallback: RuleParser{},
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the reference time, mainly for tests.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// TurnContext carries what the caller knows about the turn.
type TurnContext struct {
	// History lets the language model resolve references to earlier turns.
	History []models.Message
	// Correction treats the utterance as a correction even without a keyword.
	Correction bool
}

// Extract merges the utterance into prior and reports what is still needed.
func (e *Extractor) Extract(ctx context.Context, utterance string, prior models.BookingRequest) (models.BookingRequest, Outcome) {
	return e.ExtractTurn(ctx, utterance, prior, TurnContext{})
}

func (e *Extractor) ExtractTurn(ctx context.Context, utterance string, prior models.BookingRequest, tc TurnContext) (models.BookingRequest, Outcome) {
	loc := e.settings.Location
	if loc == nil {
		loc = time.UTC
	}
	pc := ParseContext{
		Now:      e.now().In(loc),
		Location: loc,
		Awaiting: prior.Awaiting,
		History:  tc.History,
	}

	cand, source := e.parse(ctx, utterance, pc)
	ext := e.normalize(cand, source, pc, prior, utterance)
	ext.Correction = tc.Correction || IsCorrection(utterance)

	req := Merge(prior, ext)
	recognized := ext.Values.Confidence != (models.SlotConfidence{}) || ext.Ambiguity != nil

	if prior.Awaiting != models.FieldNone &&
		req.Confidence.Get(prior.Awaiting) == models.ConfidenceTentative &&
		IsAffirmative(utterance) {
		req = ConfirmTentative(req)
		recognized = true
	}

	e.applyDefaultDuration(&req)
	out := outcomeFor(&req, ext.Ambiguity)
	out.Recognized = recognized

	e.logger.Debug("Slots extracted",
		zap.String("source", string(source)),
		zap.String("outcome", string(out.Kind)),
		zap.String("missing", string(out.Missing)),
		zap.Bool("correction", ext.Correction),
	)
	return req, out
}

func (e *Extractor) parse(ctx context.Context, utterance string, pc ParseContext) (models.Candidate, models.ExtractionSource) {
	if e.primary != nil {
		policy := utils.CallPolicy{
			Timeout: e.settings.CollaboratorTimeout,
			Delay:   e.settings.RetryDelay,
			Transient: func(err error) bool {
				return errors.Is(err, intelligence.ErrExtractionUnavailable)
			},
		}
		cand, err := utils.CallWithRetry(ctx, policy, func(ctx context.Context) (models.Candidate, error) {
			return e.primary.Parse(ctx, utterance, pc)
		})
		switch {
		case err != nil:
			e.logger.Warn("NLU unavailable, using rule parser", zap.Error(err))
		case cand.Score < e.settings.NLUMinConfidence:
			e.logger.Info("NLU confidence too low, using rule parser", zap.Float64("score", cand.Score))
		case cand.Empty():
			// Nothing recognized; the rules may still read a bare reply.
		default:
			return cand, models.SourceNLU
		}
	}
	cand, _ := e.fallback.Parse(ctx, utterance, pc)
	return cand, models.SourceFallback
}

// normalize resolves the candidate's expressions into slot values.
func (e *Extractor) normalize(cand models.Candidate, source models.ExtractionSource, pc ParseContext, prior models.BookingRequest, utterance string) Extraction {
	conf := models.ConfidenceTentative
	if cand.Score >= e.settings.NLUConfirmConfidence {
		conf = models.ConfidenceConfirmed
	}

	var ext Extraction
	v := &ext.Values
	v.Source = source

	if cand.Title != "" {
		v.Title = cand.Title
		v.Confidence.Title = conf
	}
	if cand.DateExpr != "" {
		if date, ok := ResolveDate(cand.DateExpr, pc.Now); ok {
			v.Date = date
			v.Confidence.Date = conf
		}
	}

	hours := BusinessHours{StartHour: e.settings.BusinessStartHour, EndHour: e.settings.BusinessEndHour}
	if cand.TimeExpr != "" {
		minute, amb, ok := ResolveTime(cand.TimeExpr, hours)
		switch {
		case amb != nil:
			ext.Ambiguity = amb
		case ok:
			v.StartMinute = minute
			v.Confidence.Time = conf
		}
	}
	if v.Confidence.Time == "" && len(prior.PendingTimes) > 0 {
		if minute, ok := pickPending(prior.PendingTimes, utterance); ok {
			ext.Ambiguity = nil
			v.StartMinute = minute
			v.Confidence.Time = models.ConfidenceConfirmed
		}
	}

	if cand.DurationMinutes > 0 {
		v.DurationMinutes = cand.DurationMinutes
		v.Confidence.Duration = conf
	}
	if len(cand.Attendees) > 0 {
		v.Attendees = cand.Attendees
		v.Confidence.Attendees = conf
	}
	return ext
}

// pickPending settles an earlier ambiguous time from an "AM"/"PM" reply.
func pickPending(options []int, utterance string) (int, bool) {
	t := normalize(utterance)
	wantPM := pmReplyRe.MatchString(t)
	wantAM := amReplyRe.MatchString(t)
	if wantPM == wantAM {
		if n, ok := ParseSelection(t, len(options)); ok {
			return options[n-1], true
		}
		return 0, false
	}
	for _, m := range options {
		if (m >= 12*60) == wantPM {
			return m, true
		}
	}
	return 0, false
}

func (e *Extractor) applyDefaultDuration(req *models.BookingRequest) {
	if e.settings.DefaultDuration <= 0 || req.Confidence.Get(models.FieldDuration) != models.ConfidenceUnset {
		return
	}
	for _, f := range []models.Field{models.FieldTitle, models.FieldDate, models.FieldTime} {
		if req.Confidence.Get(f) != models.ConfidenceConfirmed {
			return
		}
	}
	req.DurationMinutes = int(e.settings.DefaultDuration / time.Minute)
	req.Confidence.Duration = models.ConfidenceConfirmed
	req.DefaultDuration = true
}

func outcomeFor(req *models.BookingRequest, amb *TimeAmbiguity) Outcome {
	if amb != nil && req.Confidence.Get(models.FieldTime) != models.ConfidenceConfirmed {
		req.Awaiting = models.FieldTime
		return Outcome{Kind: Ambiguous, Field: models.FieldTime, Value: amb.Value, Options: amb.Options}
	}
	if missing := req.FirstUnconfirmed(); missing != models.FieldNone {
		req.Awaiting = missing
		return Outcome{Kind: Partial, Missing: missing}
	}
	req.Awaiting = models.FieldNone
	req.PendingTimes = nil
	return Outcome{Kind: Resolved}
}
