package extraction

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"tailortalk/models"
)

var (
	dateExprRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(day after tomorrow|tomorrow|today|tonight)\b`),
		regexp.MustCompile(`(?i)\b\d{4}-\d{2}-\d{2}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`),
		regexp.MustCompile(`(?i)\b(?:` + monthAlt + `)\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?(?:` + monthAlt + `)\b`),
		regexp.MustCompile(`(?i)\b(?:(?:next|this|coming)\s+)?(?:` + weekdayAlt + `)\b`),
	}

	timeExprRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(noon|midday|midnight)\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?)(?:\s|$|[,.!?])`),
		regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\b(?:\s*(?:in the morning|in the afternoon|in the evening|at night))?`),
		regexp.MustCompile(`(?i)\b(?:at|around)\s+\d{1,2}(?:\s*o'?clock)?(?:\s+(?:in the morning|in the afternoon|in the evening|at night))?(?:\s|$|[,.!?])`),
	}

	hoursMinutesRe = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:hours?|hrs?)\b(?:\s*(?:and\s*)?(\d+)\s*(?:minutes?|mins?)\b)?`)
	minutesRe      = regexp.MustCompile(`(?i)\b(\d+)\s*-?\s*(?:minutes?|mins?)\b`)
	durationWords  = []struct {
		re      *regexp.Regexp
		minutes int
	}{
		{regexp.MustCompile(`(?i)\b(?:an?|one) hour and a half\b`), 90},
		{regexp.MustCompile(`(?i)\bhalf (?:an )?hour\b`), 30},
		{regexp.MustCompile(`(?i)\bquarter (?:of an )?hour\b`), 15},
		{regexp.MustCompile(`(?i)\b(?:an|one) hour\b`), 60},
		{regexp.MustCompile(`(?i)\btwo hours\b`), 120},
	}

	quotedTitleRe = regexp.MustCompile(`["“]([^"”]{1,80})["”]`)
	namedTitleRe  = regexp.MustCompile(`(?i)\b(?:titled|called|named|entitled|about|regarding)\s+(.+?)(?:\s+(?:on|at|for|with|tomorrow|today|tonight|next|this|from)\b|[.,!?]|$)`)
	nounTitleRe   = regexp.MustCompile(`(?i)\b(?:a|an|the|my|our)\s+((?:[\w'-]+\s+){1,3}?)(meeting|call|sync|standup|stand-up|appointment|interview|review|demo|session|lunch|one-on-one|1:1|check-in|catch-up|kickoff|retro|retrospective|workshop|presentation)\b`)
	titleReplyRe  = regexp.MustCompile(`(?i)^(?:it'?s|call it|the title is|title:?|name it)\s+`)

	emailRe    = regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`)
	withNameRe = regexp.MustCompile(`\bwith\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?(?:(?:,\s*|,?\s+and\s+)[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)*)`)
	nameSplit  = regexp.MustCompile(`,\s*(?:and\s+)?|\s+and\s+`)
	bareNumRe  = regexp.MustCompile(`^\d{1,3}$`)
)

// Words that describe a meeting's shape rather than name it.
var fillerQualifiers = map[string]bool{
	"quick": true, "short": true, "brief": true, "new": true, "small": true, "long": true,
	"minute": true, "hour": true, "half-hour": true, "one-hour": true, "little": true,
	"meeting": true, "call": true,
}

var nonNames = map[string]bool{
	"Me": true, "Us": true, "Them": true, "Everyone": true, "Someone": true,
}

// RuleParser is the deterministic pattern-based parser. It never fails and
// reports full confidence for anything it recognizes.
type RuleParser struct{}

func (RuleParser) Parse(_ context.Context, utterance string, pc ParseContext) (models.Candidate, error) {
	text := strings.Join(strings.Fields(utterance), " ")
	cand := models.Candidate{Score: 1}

	cand.DateExpr = firstMatch(dateExprRes, text)
	cand.TimeExpr = strings.TrimRight(strings.TrimSpace(firstMatch(timeExprRes, text)), ",.!?")
	cand.DurationMinutes = parseDuration(text)
	cand.Title = parseTitle(text)
	cand.Attendees = parseAttendees(text)

	// Short replies to a targeted question carry the bare value.
	switch pc.Awaiting {
	case models.FieldTitle:
		if cand.Title == "" && cand.DateExpr == "" && cand.TimeExpr == "" && cand.DurationMinutes == 0 &&
			!IsAffirmative(text) && !IsNegative(text) && !IsCancel(text) {
			cand.Title = bareTitle(text)
		}
	case models.FieldTime:
		if cand.TimeExpr == "" {
			if _, amb, ok := ResolveTime(text, BusinessHours{}); ok || amb != nil {
				cand.TimeExpr = text
			}
		}
	case models.FieldDuration:
		if cand.DurationMinutes == 0 && bareNumRe.MatchString(text) {
			n, _ := strconv.Atoi(text)
			if n < 10 {
				n *= 60
			}
			cand.DurationMinutes = n
		}
	}
	return cand, nil
}

// firstMatch returns the match of the highest-priority pattern.
func firstMatch(res []*regexp.Regexp, text string) string {
	for _, re := range res {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// MentionsSchedule reports whether text names a date, a clock time or a
// duration the rule parser can read.
func MentionsSchedule(text string) bool {
	text = strings.Join(strings.Fields(text), " ")
	return firstMatch(dateExprRes, text) != "" || firstMatch(timeExprRes, text) != "" || parseDuration(text) > 0
}

func parseDuration(text string) int {
	for _, w := range durationWords {
		if w.re.MatchString(text) {
			return w.minutes
		}
	}
	if m := hoursMinutesRe.FindStringSubmatch(text); m != nil {
		h, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			total := int(h * 60)
			if m[2] != "" {
				extra, _ := strconv.Atoi(m[2])
				total += extra
			}
			if total > 0 {
				return total
			}
		}
	}
	if m := minutesRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

func parseTitle(text string) string {
	if m := quotedTitleRe.FindStringSubmatch(text); m != nil {
		return cleanTitle(m[1])
	}
	if m := namedTitleRe.FindStringSubmatch(text); m != nil && !startsWithDigit(m[1]) {
		return cleanTitle(m[1])
	}
	if m := nounTitleRe.FindStringSubmatch(text); m != nil {
		var kept []string
		for _, w := range strings.Fields(m[1]) {
			lw := strings.ToLower(w)
			if fillerQualifiers[lw] || strings.ContainsAny(lw, "0123456789") {
				continue
			}
			kept = append(kept, w)
		}
		if len(kept) == 0 {
			return ""
		}
		return cleanTitle(strings.Join(kept, " ") + " " + m[2])
	}
	return ""
}

func bareTitle(text string) string {
	t := titleReplyRe.ReplaceAllString(text, "")
	if len(t) > 80 {
		return ""
	}
	return cleanTitle(t)
}

func cleanTitle(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'.,!?`)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func parseAttendees(text string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(a string) {
		key := strings.ToLower(a)
		if a == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, a)
	}
	for _, e := range emailRe.FindAllString(text, -1) {
		add(strings.ToLower(e))
	}
	for _, m := range withNameRe.FindAllStringSubmatch(text, -1) {
		for _, name := range nameSplit.Split(m[1], -1) {
			name = strings.TrimSpace(name)
			first := strings.Fields(name)
			if len(first) == 0 || nonNames[first[0]] || isCalendarWord(first[0]) {
				continue
			}
			add(name)
		}
	}
	return out
}

func isCalendarWord(w string) bool {
	lw := strings.ToLower(w)
	_, day := weekdays[lw]
	_, month := months[lw]
	return day || month
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
