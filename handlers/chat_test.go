package handlers

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tailortalk/config"
	"tailortalk/models"
	"tailortalk/services/availability"
	"tailortalk/services/booking"
	"tailortalk/services/calendar"
	"tailortalk/services/extraction"
	"tailortalk/services/session"
	"tailortalk/services/speech"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(ctx context.Context, clip speech.Clip, language string) (string, error) {
	return f.text, f.err
}

func newTestRouter(t *testing.T, tr speech.Transcriber) (*gin.Engine, *calendar.MemoryCalendar) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	now := func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }
	settings := config.DefaultBooking()
	settings.RetryDelay = 0

	cal := calendar.NewMemoryCalendar()
	store := session.NewMemoryStore(session.Options{TTL: settings.SessionTTL, Now: now})
	ex := extraction.NewExtractor(nil, settings, nil).WithClock(now)
	res := availability.NewResolver(cal, settings, nil).WithClock(now)
	svc := booking.NewService(store, ex, res, cal, settings, nil).WithClock(now)

	h := NewChatHandler(svc)
	r := gin.New()
	r.POST("/sessions", h.StartSessionHandler)
	r.GET("/sessions/:id", h.GetSessionHandler)
	r.DELETE("/sessions/:id", h.CancelSessionHandler)
	r.POST("/sessions/:id/turns", h.TurnHandler)
	r.POST("/sessions/:id/voice", h.VoiceTurnHandler(tr))
	return r, cal
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func startSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(r, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var res models.TurnResult
	decode(t, w, &res)
	assert.Equal(t, booking.Greeting, res.Reply)
	require.NotEmpty(t, res.SessionID)
	return res.SessionID
}

func TestChatBookingFlow(t *testing.T) {
	r, cal := newTestRouter(t, nil)
	id := startSession(t, r)

	w := do(r, http.MethodPost, "/sessions/"+id+"/turns", `{"text":"Book a design review tomorrow at 2 PM for 30 minutes"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res models.TurnResult
	decode(t, w, &res)
	assert.Equal(t, models.StateAwaitingConfirmation, res.State)
	assert.Equal(t, "confirm", res.NextAction)

	w = do(r, http.MethodPost, "/sessions/"+id+"/turns", `{"text":"yes"}`)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &res)
	assert.Equal(t, models.StateBooked, res.State)
	require.NotNil(t, res.Booking)
	assert.Equal(t, "Design review", res.Booking.Title)

	events, err := cal.ListEvents(context.Background(), models.TimeWindow{
		Start: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	w = do(r, http.MethodGet, "/sessions/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var view models.SessionView
	decode(t, w, &view)
	assert.Equal(t, models.StateBooked, view.State)
	assert.Len(t, view.History, 5)
}

func TestTurnValidation(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	id := startSession(t, r)

	w := do(r, http.MethodPost, "/sessions/"+id+"/turns", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/sessions/"+id+"/turns", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownSession(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := do(r, http.MethodPost, "/sessions/nope/turns", `{"text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Contains(t, body["message"], "start a new booking")

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/sessions/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/sessions/nope", "").Code)
}

func TestCancelSession(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	id := startSession(t, r)

	w := do(r, http.MethodDelete, "/sessions/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var res models.TurnResult
	decode(t, w, &res)
	assert.Equal(t, models.StateCancelled, res.State)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/sessions/"+id, "").Code)
}

type stubOrchestrator struct {
	err error
}

func (s stubOrchestrator) StartSession(ctx context.Context) (string, error) { return "", s.err }
func (s stubOrchestrator) HandleTurn(ctx context.Context, id, text string) (*models.TurnResult, error) {
	return nil, s.err
}
func (s stubOrchestrator) Session(ctx context.Context, id string) (*models.SessionView, error) {
	return nil, s.err
}
func (s stubOrchestrator) Cancel(ctx context.Context, id string) (*models.TurnResult, error) {
	return nil, s.err
}

func TestErrorStatuses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("load: %w", booking.ErrSessionExpired), http.StatusGone},
		{fmt.Errorf("lock: %w", booking.ErrSessionBusy), http.StatusConflict},
		{booking.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("save session: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewChatHandler(stubOrchestrator{err: tc.err})
		r := gin.New()
		r.POST("/sessions/:id/turns", h.TurnHandler)

		w := do(r, http.MethodPost, "/sessions/x/turns", `{"text":"hi"}`)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		assert.NotContains(t, w.Body.String(), "connection refused")
	}
}

func wavUpload(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var wav bytes.Buffer
	header := []any{
		[4]byte{'R', 'I', 'F', 'F'}, uint32(36 + 3200), [4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '}, uint32(16), uint16(1), uint16(1),
		uint32(16000), uint32(32000), uint16(2), uint16(16),
		[4]byte{'d', 'a', 't', 'a'}, uint32(3200),
	}
	for _, v := range header {
		require.NoError(t, binary.Write(&wav, binary.LittleEndian, v))
	}
	wav.Write(make([]byte, 3200))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", filename)
	require.NoError(t, err)
	_, err = part.Write(wav.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestVoiceTurn(t *testing.T) {
	r, _ := newTestRouter(t, fakeTranscriber{text: "Book a design review tomorrow at 2 PM for 30 minutes"})
	id := startSession(t, r)

	body, contentType := wavUpload(t, "note.wav")
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/voice", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Transcript string       `json:"transcript"`
		State      models.State `json:"state"`
	}
	decode(t, w, &res)
	assert.Equal(t, "Book a design review tomorrow at 2 PM for 30 minutes", res.Transcript)
	assert.Equal(t, models.StateAwaitingConfirmation, res.State)
}

func TestVoiceTurnRejections(t *testing.T) {
	r, _ := newTestRouter(t, fakeTranscriber{err: speech.ErrNoSpeech})
	id := startSession(t, r)

	body, contentType := wavUpload(t, "note.mp3")
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/voice", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, contentType = wavUpload(t, "note.wav")
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/voice", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	disabled, _ := newTestRouter(t, nil)
	w = do(disabled, http.MethodPost, "/sessions/"+id+"/voice", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
