package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tailortalk/config"
	"tailortalk/models"
	"tailortalk/services/availability"
	"tailortalk/services/calendar"
	"tailortalk/services/extraction"
	"tailortalk/services/session"
)

type fakeCalendar struct {
	mu          sync.Mutex
	events      []models.CalendarEvent
	listErrs    []error
	stallLists  int
	createErrs  []error
	listCalls   int
	createCalls int
	created     []models.TimeWindow
}

func (f *fakeCalendar) add(ev models.CalendarEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeCalendar) ListEvents(ctx context.Context, w models.TimeWindow) ([]models.CalendarEvent, error) {
	f.mu.Lock()
	f.listCalls++
	stall := f.stallLists > 0
	if stall {
		f.stallLists--
	}
	f.mu.Unlock()
	if stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		return nil, err
	}
	var out []models.CalendarEvent
	for _, ev := range f.events {
		if ev.Window.Overlaps(w) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, title string, w models.TimeWindow, attendees []string) (*models.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return nil, err
	}
	for _, ev := range f.events {
		if ev.Window.Overlaps(w) {
			return nil, calendar.ErrConflict
		}
	}
	ev := models.CalendarEvent{ID: "evt-1", Title: title, Window: w, Attendees: attendees}
	f.events = append(f.events, ev)
	f.created = append(f.created, w)
	return &ev, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc   *Service
	cal   *fakeCalendar
	store *session.MemoryStore
	clock *clock
}

func newHarness(t *testing.T, tweaks ...func(*config.Booking)) *harness {
	t.Helper()
	// Monday, Jan 15 2024 10:00 UTC.
	clk := &clock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	settings := config.DefaultBooking()
	settings.RetryDelay = 0
	for _, tweak := range tweaks {
		tweak(&settings)
	}

	cal := &fakeCalendar{}
	store := session.NewMemoryStore(session.Options{TTL: settings.SessionTTL, Now: clk.Now})
	ex := extraction.NewExtractor(nil, settings, nil).WithClock(clk.Now)
	res := availability.NewResolver(cal, settings, nil).WithClock(clk.Now)
	svc := NewService(store, ex, res, cal, settings, nil).WithClock(clk.Now)
	return &harness{svc: svc, cal: cal, store: store, clock: clk}
}

func (h *harness) start(t *testing.T) string {
	t.Helper()
	id, err := h.svc.StartSession(context.Background())
	require.NoError(t, err)
	return id
}

func (h *harness) say(t *testing.T, id, text string) *models.TurnResult {
	t.Helper()
	res, err := h.svc.HandleTurn(context.Background(), id, text)
	require.NoError(t, err)
	return res
}

func (h *harness) trail(t *testing.T, id string) []models.State {
	t.Helper()
	sess, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return sess.Trail
}

func tue(hour, minute int) time.Time {
	return time.Date(2024, 1, 16, hour, minute, 0, 0, time.UTC)
}

func slot(t *testing.T, start time.Time, minutes int) models.TimeWindow {
	t.Helper()
	w, err := models.WindowFor(start, time.Duration(minutes)*time.Minute)
	require.NoError(t, err)
	return w
}

// assertTrail checks every step is an edge of the booking graph and that
// BOOKED is only ever entered from AWAITING_CONFIRMATION.
func assertTrail(t *testing.T, trail []models.State) {
	t.Helper()
	require.NotEmpty(t, trail)
	assert.Equal(t, models.StateCollecting, trail[0])
	for i := 1; i < len(trail); i++ {
		assert.True(t, models.CanTransition(trail[i-1], trail[i]), "illegal step %s -> %s", trail[i-1], trail[i])
		if trail[i] == models.StateBooked {
			assert.Equal(t, models.StateAwaitingConfirmation, trail[i-1])
		}
	}
}

func TestConfirmCommitsExactWindowOnce(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	res := h.say(t, id, "Book a design review tomorrow at 2 PM for 30 minutes")
	require.Equal(t, models.StateAwaitingConfirmation, res.State)
	assert.Contains(t, res.Reply, "Tuesday, Jan 16 at 2:00 PM")
	assert.Equal(t, "confirm", res.NextAction)
	assert.Zero(t, h.cal.createCalls, "no commit before confirmation")

	res = h.say(t, id, "yes")
	require.Equal(t, models.StateBooked, res.State)
	assert.Equal(t, 1, h.cal.createCalls)
	require.Len(t, h.cal.created, 1)
	assert.True(t, slot(t, tue(14, 0), 30).Equal(h.cal.created[0]))
	require.NotNil(t, res.Booking)
	assert.Equal(t, "Design review", res.Booking.Title)
	assert.Contains(t, res.Reply, "Tuesday, Jan 16 at 2:00 PM - 2:30 PM")

	trail := h.trail(t, id)
	assert.Equal(t, []models.State{
		models.StateCollecting,
		models.StateCheckingAvailability,
		models.StateAwaitingConfirmation,
		models.StateBooked,
	}, trail)
	assertTrail(t, trail)

	again := h.say(t, id, "yes")
	assert.Equal(t, models.StateBooked, again.State)
	assert.Equal(t, replyAlreadyBooked, again.Reply)
	assert.Equal(t, 1, h.cal.createCalls)
}

func TestCollectsMissingTitle(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	res := h.say(t, id, "book a meeting tomorrow at 2 PM for 30 minutes")
	assert.Equal(t, models.StateCollecting, res.State)
	assert.Equal(t, "What should I call this meeting?", res.Reply)
	assert.Equal(t, "provide_title", res.NextAction)

	res = h.say(t, id, "Quarterly planning")
	assert.Equal(t, models.StateAwaitingConfirmation, res.State)
	assert.Contains(t, res.Reply, `"Quarterly planning"`)
}

func TestTwoUnreachableChecksFail(t *testing.T) {
	h := newHarness(t)
	h.cal.listErrs = []error{calendar.ErrUnreachable, calendar.ErrUnreachable}
	id := h.start(t)

	res := h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	assert.Equal(t, models.StateFailed, res.State)
	assert.Equal(t, replyUnreachable, res.Reply)
	assert.Equal(t, 2, h.cal.listCalls)
	assert.Zero(t, h.cal.createCalls)
	assertTrail(t, h.trail(t, id))

	res = h.say(t, id, "yes")
	assert.Equal(t, models.StateFailed, res.State)
	assert.Equal(t, replyEnded, res.Reply)
	assert.Zero(t, h.cal.createCalls)
}

func TestSingleUnreachableIsRetried(t *testing.T) {
	h := newHarness(t)
	h.cal.listErrs = []error{calendar.ErrUnreachable}
	id := h.start(t)

	res := h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	assert.Equal(t, models.StateAwaitingConfirmation, res.State)
	assert.Equal(t, 2, h.cal.listCalls)
}

func TestConflictProposesAlternatives(t *testing.T) {
	h := newHarness(t)
	h.cal.add(models.CalendarEvent{ID: "planning", Title: "Planning", Window: slot(t, tue(14, 0), 60)})
	id := h.start(t)

	res := h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	require.Equal(t, models.StateProposingAlternatives, res.State)
	require.Len(t, res.Alternatives, 3)
	assert.Equal(t, tue(15, 0), res.Alternatives[0].Start)
	assert.Contains(t, res.Reply, "1. Tuesday, Jan 16 at 3:00 PM - 3:30 PM")
	assert.Equal(t, "select_alternative", res.NextAction)

	res = h.say(t, id, "option 2")
	require.Equal(t, models.StateAwaitingConfirmation, res.State)
	assert.Equal(t, 15*60+30, res.Request.StartMinute)
	assert.Empty(t, res.Alternatives)

	res = h.say(t, id, "book it")
	require.Equal(t, models.StateBooked, res.State)
	assert.True(t, slot(t, tue(15, 30), 30).Equal(h.cal.created[0]))
	assertTrail(t, h.trail(t, id))
}

func TestRejectingAlternativesReturnsToCollecting(t *testing.T) {
	h := newHarness(t)
	h.cal.add(models.CalendarEvent{ID: "planning", Window: slot(t, tue(14, 0), 60)})
	id := h.start(t)

	h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	res := h.say(t, id, "none of those work")
	assert.Equal(t, models.StateCollecting, res.State)
	assert.Equal(t, replyOtherTime, res.Reply)
	assert.Equal(t, models.ConfidenceTentative, res.Request.Confidence.Get(models.FieldTime))

	res = h.say(t, id, "wednesday at 11am")
	assert.Equal(t, models.StateAwaitingConfirmation, res.State)
	assert.Contains(t, res.Reply, "Wednesday, Jan 17 at 11:00 AM")
	assertTrail(t, h.trail(t, id))
}

func TestConflictAtCommitReproposes(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	res := h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	require.Equal(t, models.StateAwaitingConfirmation, res.State)

	// Someone else takes the slot before the user confirms.
	h.cal.add(models.CalendarEvent{ID: "race", Window: slot(t, tue(14, 0), 30)})

	res = h.say(t, id, "yes")
	assert.Equal(t, models.StateProposingAlternatives, res.State)
	assert.Contains(t, res.Reply, "that slot was just taken")
	require.NotEmpty(t, res.Alternatives)
	assert.Equal(t, tue(14, 30), res.Alternatives[0].Start)
	assert.Equal(t, 1, h.cal.createCalls)
	assert.Empty(t, h.cal.created)
	assertTrail(t, h.trail(t, id))
}

func TestUnauthorizedCommitFails(t *testing.T) {
	h := newHarness(t)
	h.cal.createErrs = []error{calendar.ErrUnauthorized}
	id := h.start(t)

	h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	res := h.say(t, id, "yes")
	assert.Equal(t, models.StateFailed, res.State)
	assert.Equal(t, replyUnauthorized, res.Reply)
	assert.Equal(t, 1, h.cal.createCalls, "unauthorized is not retried")
	assert.NotContains(t, res.Reply, "credentials")
}

func TestCorrectionWhileAwaiting(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	res := h.say(t, id, "actually make it 4pm")
	require.Equal(t, models.StateCollecting, res.State)
	assert.Equal(t, models.ConfidenceTentative, res.Request.Confidence.Get(models.FieldTime))
	assert.Equal(t, "Just to confirm, Tuesday, Jan 16 at 4:00 PM?", res.Reply)

	res = h.say(t, id, "yes")
	require.Equal(t, models.StateAwaitingConfirmation, res.State)
	res = h.say(t, id, "yes")
	require.Equal(t, models.StateBooked, res.State)
	assert.True(t, slot(t, tue(16, 0), 30).Equal(h.cal.created[0]))
	assertTrail(t, h.trail(t, id))
}

func TestNegativeWhileAwaitingAsksWhatToChange(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	res := h.say(t, id, "no")
	assert.Equal(t, models.StateCollecting, res.State)
	assert.Equal(t, replyWhatChange, res.Reply)
	assert.Zero(t, h.cal.createCalls)
}

func TestAmbiguousTimeAsksClarification(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	res := h.say(t, id, `"Retro" tomorrow at 7 for 30 minutes`)
	assert.Equal(t, models.StateCollecting, res.State)
	assert.Equal(t, `Did you mean 7:00 AM or 7:00 PM for "at 7"?`, res.Reply)
	assert.Zero(t, h.cal.listCalls)
}

func TestGreetingAndPastTime(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	res := h.say(t, id, "hello")
	assert.Equal(t, Greeting, res.Reply)

	res = h.say(t, id, `"Sync" today at 9am for 30 minutes`)
	assert.Equal(t, models.StateCollecting, res.State)
	assert.Equal(t, replyPastTime, res.Reply)
	assert.Zero(t, h.cal.listCalls)
}

func TestCancelDeletesSession(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	h.say(t, id, `"Sync" tomorrow at 2pm`)
	res := h.say(t, id, "never mind")
	assert.Equal(t, models.StateCancelled, res.State)
	assert.Equal(t, replyCancelled, res.Reply)

	_, err := h.svc.Session(context.Background(), id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, replySessionGone, UserMessage(err))
}

func TestCancelEndpoint(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	res, err := h.svc.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, res.State)
	assert.Zero(t, h.store.Len())
}

func TestExpiredSessionIsRejected(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	h.clock.Advance(31 * time.Minute)
	_, err := h.svc.HandleTurn(context.Background(), id, "tomorrow at 2pm")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, replySessionGone, UserMessage(err))
	assert.Zero(t, h.store.Len())
}

func TestTurnsOnOneSessionAreSerialized(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.HandleTurn(context.Background(), id, "hello")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view, err := h.svc.Session(context.Background(), id)
	require.NoError(t, err)
	// Greeting plus a user and assistant message per turn.
	assert.Len(t, view.History, 1+8*2)
}

func TestQuotedTitleWithCancelKeywordBooks(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	res := h.say(t, id, `"Stop-ship review" tomorrow at 2pm for 30 minutes`)
	require.Equal(t, models.StateAwaitingConfirmation, res.State)
	assert.Equal(t, "Stop-ship review", res.Request.Title)

	res = h.say(t, id, "yes")
	require.Equal(t, models.StateBooked, res.State)
	assert.True(t, slot(t, tue(14, 0), 30).Equal(h.cal.created[0]))
	assertTrail(t, h.trail(t, id))
}

func TestNegatedCancelKeepsSession(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	h.say(t, id, `"Sync" tomorrow for 30 minutes`)
	res := h.say(t, id, "don't cancel, try at 7")
	assert.NotEqual(t, models.StateCancelled, res.State)
	assert.NotEqual(t, replyCancelled, res.Reply)
	assert.Equal(t, 1, h.store.Len())
}

func TestNewDateWhileProposingIsNotASelection(t *testing.T) {
	h := newHarness(t)
	h.cal.add(models.CalendarEvent{ID: "planning", Window: slot(t, tue(14, 0), 60)})
	id := h.start(t)

	res := h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	require.Equal(t, models.StateProposingAlternatives, res.State)
	require.Len(t, res.Alternatives, 3)

	res = h.say(t, id, "let's do Feb 2nd at 10am instead")
	require.Equal(t, models.StateCollecting, res.State)
	assert.Equal(t, "2024-02-02", res.Request.Date)
	assert.Equal(t, 10*60, res.Request.StartMinute)
	assert.Empty(t, res.Alternatives)
	assert.Contains(t, res.Reply, "Friday, Feb 2 at 10:00 AM")

	res = h.say(t, id, "yes")
	require.Equal(t, models.StateAwaitingConfirmation, res.State)
	assert.Equal(t, "2024-02-02", res.Request.Date)
	assertTrail(t, h.trail(t, id))
}

func TestSingleUnreachableCommitIsRetried(t *testing.T) {
	h := newHarness(t)
	h.cal.createErrs = []error{calendar.ErrUnreachable}
	id := h.start(t)

	h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	res := h.say(t, id, "yes")
	require.Equal(t, models.StateBooked, res.State)
	assert.Equal(t, 2, h.cal.createCalls)
	require.Len(t, h.cal.created, 1)
	assert.True(t, slot(t, tue(14, 0), 30).Equal(h.cal.created[0]))
}

func TestTwoUnreachableCommitsFail(t *testing.T) {
	h := newHarness(t)
	h.cal.createErrs = []error{calendar.ErrUnreachable, calendar.ErrUnreachable}
	id := h.start(t)

	h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	res := h.say(t, id, "yes")
	assert.Equal(t, models.StateFailed, res.State)
	assert.Equal(t, replyUnreachable, res.Reply)
	assert.Equal(t, 2, h.cal.createCalls)
	assert.Empty(t, h.cal.created)
	assertTrail(t, h.trail(t, id))
}

func TestTimedOutCheckIsRetried(t *testing.T) {
	h := newHarness(t, func(b *config.Booking) {
		b.CollaboratorTimeout = 20 * time.Millisecond
	})
	h.cal.stallLists = 1
	id := h.start(t)

	res := h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	assert.Equal(t, models.StateAwaitingConfirmation, res.State)
	assert.Equal(t, 2, h.cal.listCalls)
}

func TestTwoTimedOutChecksFail(t *testing.T) {
	h := newHarness(t, func(b *config.Booking) {
		b.CollaboratorTimeout = 20 * time.Millisecond
	})
	h.cal.stallLists = 2
	id := h.start(t)

	res := h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	assert.Equal(t, models.StateFailed, res.State)
	assert.Equal(t, replyUnreachable, res.Reply)
	assert.Equal(t, 2, h.cal.listCalls)
}

func TestNoAlternativesReturnsToCollecting(t *testing.T) {
	h := newHarness(t)
	// Busy from Tuesday until well past the look-ahead horizon.
	h.cal.add(models.CalendarEvent{ID: "offsite", Window: slot(t, tue(0, 0), 16*24*60)})
	id := h.start(t)

	res := h.say(t, id, `"Sync" tomorrow at 2pm for 30 minutes`)
	assert.Equal(t, models.StateCollecting, res.State)
	assert.Equal(t, replyNoSlots, res.Reply)
	assert.Empty(t, res.Alternatives)
	assert.Equal(t, models.ConfidenceTentative, res.Request.Confidence.Get(models.FieldDate))
	assert.Equal(t, models.ConfidenceTentative, res.Request.Confidence.Get(models.FieldTime))
	assert.Zero(t, h.cal.createCalls)
	assertTrail(t, h.trail(t, id))
}
