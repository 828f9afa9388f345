package extraction

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// A cancel is a command: the keyword opens the reply, after at most some
	// filler or a polite lead-in, and is followed by a word break other than a
	// hyphen so "stop-ship review" stays a title.
	cancelRe = regexp.MustCompile(`^(?:(?:ok(?:ay)?|no|oh|well|hmm|actually|just|please|sorry)[,.!]?\s+)*` +
		`(?:(?:i want to|i'd like to|i would like to|let's|lets|can you|could you|please)\s+)?` +
		`(?:cancel|never\s?mind|forget (?:it|about it)|stop|abort)(?:$|[\s,.!?])`)
	negatedCancelRe = regexp.MustCompile(`\b(?:don'?t|do not|dont|no need to|not)\s+(?:\w+\s+)?(?:cancel|stop|abort)\b`)
	affirmStartRe = regexp.MustCompile(`^(yes|yeah|yep|yup|sure|ok|okay|correct|confirm(ed)?|perfect|great|absolutely|definitely)\b`)
	affirmRe      = regexp.MustCompile(`\b(book it|go ahead|that works|sounds good|that's right|that is right|please do|do it|confirm)\b`)
	negativeRe    = regexp.MustCompile(`^(no|nope|nah|not really|don't|do not|wrong|wait)\b|\b(not that|another time|different time|doesn't work|does not work)\b`)
	correctionRe  = regexp.MustCompile(`\b(actually|instead|rather|change (it|that|the \w+) to|make it|switch (it )?to|move it to)\b|^no,`)

	bareNumberRe = regexp.MustCompile(`^#?([1-9])\.?$`)
	numberedRe   = regexp.MustCompile(`\b(?:option|choice|number|slot|#)\s*#?([1-9])\b`)
	ordinalRe    = regexp.MustCompile(`\b(first|second|third|fourth|fifth|1st|2nd|3rd|4th|5th)\b`)
	lastOneRe    = regexp.MustCompile(`\b(last|final)\s+(one|option|slot)\b`)
)

var ordinals = map[string]int{
	"first": 1, "1st": 1,
	"second": 2, "2nd": 2,
	"third": 3, "3rd": 3,
	"fourth": 4, "4th": 4,
	"fifth": 5, "5th": 5,
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// IsCancel reports an explicit request to abandon the booking. Keywords
// inside a longer request ("do not stop", a quoted title) do not count.
func IsCancel(text string) bool {
	t := normalize(text)
	return cancelRe.MatchString(t) && !negatedCancelRe.MatchString(t)
}

// IsAffirmative reports a yes-like reply that is not also a refusal.
func IsAffirmative(text string) bool {
	t := normalize(text)
	if IsNegative(t) {
		return false
	}
	return affirmStartRe.MatchString(t) || affirmRe.MatchString(t)
}

// IsNegative reports a no-like reply.
func IsNegative(text string) bool {
	return negativeRe.MatchString(normalize(text))
}

// IsCorrection reports an utterance that explicitly replaces an earlier value.
func IsCorrection(text string) bool {
	return correctionRe.MatchString(normalize(text))
}

// ParseSelection returns the 1-based option picked out of n, if any.
func ParseSelection(text string, n int) (int, bool) {
	t := normalize(text)
	pick := 0
	if m := bareNumberRe.FindStringSubmatch(t); m != nil {
		pick, _ = strconv.Atoi(m[1])
	} else if m := numberedRe.FindStringSubmatch(t); m != nil {
		pick, _ = strconv.Atoi(m[1])
	} else if m := ordinalRe.FindStringSubmatch(t); m != nil {
		pick = ordinals[m[1]]
	} else if lastOneRe.MatchString(t) {
		pick = n
	}
	if pick < 1 || pick > n {
		return 0, false
	}
	return pick, true
}
