// Package intelligence adapts hosted language models into slot candidates
// for the booking conversation.
package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tailortalk/models"
)

// ErrExtractionUnavailable means the model could not be reached or returned
// something unusable. Callers fall back to the deterministic parser.
var ErrExtractionUnavailable = errors.New("extraction unavailable")

// Context is what the model sees besides the utterance.
type Context struct {
	Now      time.Time
	Location *time.Location
	Awaiting models.Field
	History  []models.Message
}

// NLU turns one utterance into a structured candidate.
type NLU interface {
	Complete(ctx context.Context, utterance string, c Context) (models.Candidate, error)
}

const systemPrompt = `You extract meeting booking details from a chat message.
Reply with a single JSON object and nothing else:
{"title": string, "date": string, "time": string, "duration": integer, "attendees": [string], "confidence": number}
Rules:
- "date" is YYYY-MM-DD resolved against the current date, or "" when not mentioned.
- "time" is HH:MM in 24h form, or the user's words when AM/PM is unclear, or "".
- "duration" is minutes, 0 when not mentioned.
- "title" is the meeting name only when the user names it; generic words like "meeting" are "".
- "attendees" are e-mail addresses or person names the user wants to invite.
- "confidence" is between 0 and 1 and reflects how sure you are overall.`

func buildPrompt(utterance string, c Context) string {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	now := c.Now.In(loc)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Current date and time: %s (%s, zone %s)\n", now.Format("2006-01-02 15:04"), now.Weekday(), loc.String())
	if c.Awaiting != models.FieldNone {
		fmt.Fprintf(&sb, "The assistant just asked the user for the %s.\n", c.Awaiting)
	}
	if n := len(c.History); n > 0 {
		start := 0
		if n > 6 {
			start = n - 6
		}
		sb.WriteString("Recent conversation:\n")
		for _, m := range c.History[start:] {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}
	fmt.Fprintf(&sb, "Message: %s\n", utterance)
	return sb.String()
}

// parseCandidate decodes the model's JSON reply, tolerating code fences.
func parseCandidate(raw string) (models.Candidate, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "{"); i > 0 {
		raw = raw[i:]
	}

	var cand models.Candidate
	if err := json.Unmarshal([]byte(raw), &cand); err != nil {
		return models.Candidate{}, fmt.Errorf("%w: decode model reply: %v", ErrExtractionUnavailable, err)
	}
	if cand.Score < 0 {
		cand.Score = 0
	}
	if cand.Score > 1 {
		cand.Score = 1
	}
	if cand.DurationMinutes < 0 {
		cand.DurationMinutes = 0
	}
	return cand, nil
}
