package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

const (
	weekdayAlt = `sunday|monday|tuesday|wednesday|thursday|friday|saturday`
	monthAlt   = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`
)

var (
	isoDateRe      = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	relWeekdayRe   = regexp.MustCompile(`^(?:(next|this|coming)\s+)?(` + weekdayAlt + `)$`)
	slashDateRe    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{2}|\d{4}))?$`)
	monthDayRe     = regexp.MustCompile(`^(` + monthAlt + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?$`)
	dayMonthRe     = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthAlt + `)(?:,?\s+(\d{4}))?$`)
	clockRe        = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)?\s*(in the morning|in the afternoon|in the evening|at night|tonight|morning|afternoon|evening)?$`)
	timeFillerRe   = regexp.MustCompile(`^(at|around|about|by)\s+|\s*o'?clock`)
	dateFillerRe   = regexp.MustCompile(`^(on|for)\s+|^the\s+`)
	meridiemPMHint = regexp.MustCompile(`afternoon|evening|night|tonight`)
)

// BusinessHours is the daily window used to disambiguate bare hours.
type BusinessHours struct {
	StartHour int
	EndHour   int
}

func (h BusinessHours) contains(minute int) bool {
	return minute >= h.StartHour*60 && minute < h.EndHour*60
}

func (h BusinessHours) distance(minute int) int {
	switch {
	case minute < h.StartHour*60:
		return h.StartHour*60 - minute
	case minute >= h.EndHour*60:
		return minute - h.EndHour*60
	default:
		return 0
	}
}

// ResolveDate turns a relative or absolute date expression into a
// "2006-01-02" date in now's location.
func ResolveDate(expr string, now time.Time) (string, bool) {
	e := dateFillerRe.ReplaceAllString(normalize(expr), "")
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch e {
	case "":
		return "", false
	case "today", "tonight", "this evening", "this afternoon", "this morning":
		return today.Format(dateLayout), true
	case "tomorrow", "tmrw", "tomorrow morning", "tomorrow afternoon", "tomorrow evening":
		return today.AddDate(0, 0, 1).Format(dateLayout), true
	case "day after tomorrow", "the day after tomorrow":
		return today.AddDate(0, 0, 2).Format(dateLayout), true
	}

	if m := isoDateRe.FindStringSubmatch(e); m != nil {
		d, err := time.ParseInLocation(dateLayout, m[0], now.Location())
		if err != nil {
			return "", false
		}
		return d.Format(dateLayout), true
	}

	if m := relWeekdayRe.FindStringSubmatch(e); m != nil {
		target := weekdays[m[2]]
		ahead := (int(target) - int(today.Weekday()) + 7) % 7
		if ahead == 0 && m[1] != "this" {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead).Format(dateLayout), true
	}

	if m := slashDateRe.FindStringSubmatch(e); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		return calendarDate(today, time.Month(month), day, m[3])
	}
	if m := monthDayRe.FindStringSubmatch(e); m != nil {
		day, _ := strconv.Atoi(m[2])
		return calendarDate(today, months[m[1]], day, m[3])
	}
	if m := dayMonthRe.FindStringSubmatch(e); m != nil {
		day, _ := strconv.Atoi(m[1])
		return calendarDate(today, months[m[2]], day, m[3])
	}
	return "", false
}

// calendarDate builds month/day, rolling into next year when no year is given
// and the date already passed.
func calendarDate(today time.Time, month time.Month, day int, yearStr string) (string, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return "", false
	}
	year := today.Year()
	if yearStr != "" {
		y, err := strconv.Atoi(yearStr)
		if err != nil {
			return "", false
		}
		if y < 100 {
			y += 2000
		}
		year = y
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, today.Location())
	if d.Month() != month {
		return "", false
	}
	if yearStr == "" && d.Before(today) {
		d = d.AddDate(1, 0, 0)
	}
	return d.Format(dateLayout), true
}

// TimeAmbiguity describes a clock expression with more than one reading.
type TimeAmbiguity struct {
	Value   string
	Options []int
}

// ResolveTime turns a clock expression into minutes from midnight. A bare
// hour 1-7 resolves to the AM/PM reading inside business hours, otherwise
// the reading nearest to them; a tie is reported as ambiguous.
func ResolveTime(expr string, hours BusinessHours) (int, *TimeAmbiguity, bool) {
	e := strings.TrimSpace(timeFillerRe.ReplaceAllString(normalize(expr), ""))
	switch e {
	case "":
		return 0, nil, false
	case "noon", "midday", "12 noon":
		return 12 * 60, nil, true
	case "midnight":
		return 0, nil, true
	}

	m := clockRe.FindStringSubmatch(e)
	if m == nil {
		return 0, nil, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || minute > 59 {
		return 0, nil, false
	}

	meridiem := strings.ReplaceAll(m[3], ".", "")
	if meridiem == "" && m[4] != "" {
		meridiem = "am"
		if meridiemPMHint.MatchString(m[4]) {
			meridiem = "pm"
		}
	}

	switch meridiem {
	case "am":
		if hour > 12 || hour == 0 {
			return 0, nil, false
		}
		if hour == 12 {
			hour = 0
		}
		return hour*60 + minute, nil, true
	case "pm":
		if hour > 12 || hour == 0 {
			return 0, nil, false
		}
		if hour != 12 {
			hour += 12
		}
		return hour*60 + minute, nil, true
	}

	// A leading zero ("07:00") or a 24h hour is explicit.
	if strings.HasPrefix(m[1], "0") || hour == 0 || hour >= 8 {
		return hour*60 + minute, nil, true
	}

	am := hour*60 + minute
	pm := am + 12*60
	amIn, pmIn := hours.contains(am), hours.contains(pm)
	switch {
	case amIn && !pmIn:
		return am, nil, true
	case pmIn && !amIn:
		return pm, nil, true
	case !amIn && !pmIn:
		da, dp := hours.distance(am), hours.distance(pm)
		if da < dp {
			return am, nil, true
		}
		if dp < da {
			return pm, nil, true
		}
	}
	return 0, &TimeAmbiguity{Value: strings.TrimSpace(expr), Options: []int{am, pm}}, true
}

// FormatClock renders minutes from midnight as "2:30 PM".
func FormatClock(minute int) string {
	t := time.Date(2000, 1, 1, minute/60, minute%60, 0, 0, time.UTC)
	return t.Format("3:04 PM")
}

// FormatDate renders a "2006-01-02" date as "Monday, Jan 15".
func FormatDate(date string) string {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("Monday, Jan 2")
}

// FormatDuration renders a slot duration in minutes for replies.
func FormatDuration(minutes int) string {
	switch {
	case minutes == 60:
		return "1 hour"
	case minutes%60 == 0:
		return fmt.Sprintf("%d hours", minutes/60)
	case minutes > 60:
		return fmt.Sprintf("%dh %dmin", minutes/60, minutes%60)
	default:
		return fmt.Sprintf("%d minutes", minutes)
	}
}
