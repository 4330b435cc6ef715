// Package datetime converts the many date and time spellings found in
// imported calendars, spreadsheets and AI output into absolute instants.
//
// Slash-delimited dates are always read month-first (M/D/YYYY). Exports from
// day-first locales will be misread; this is a known product decision and is
// deliberately not guessed around.
package datetime

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Result is a parsed instant plus whether the source only named a day.
type Result struct {
	Time   time.Time
	AllDay bool
}

// Normalizer parses date and time strings relative to a location and a
// reference clock. "Local" in ICS terms means the normalizer's location.
type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

// New creates a normalizer for loc. A nil loc means time.Local.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc, now: time.Now}
}

// WithClock sets the reference clock used for relative terms like "tomorrow".
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Location returns the zone naive timestamps are interpreted in.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04Z07:00",
		time.RFC1123Z,
		time.RFC1123,
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
	longDateLayouts = []string{
		"January 2, 2006",
		"Jan 2, 2006",
		"Monday, January 2, 2006",
		"Mon, Jan 2, 2006",
		"January 2 2006",
		"Jan 2 2006",
		"2 January 2006",
		"2 Jan 2006",
	}

	slashDateRe   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})(?:[ T]+(.+))?$`)
	isoDateRe     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	icsDateRe     = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	icsDateTimeRe = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})T(\d{2})(\d{2})(\d{2})(Z?)$`)

	clock12Re     = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(?::(\d{2}))?\s*([ap])\.?\s*m\.?$`)
	clock24Re     = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	nextWeekdayRe = regexp.MustCompile(`^(next|this)\s+([a-z]+)$`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
	"sun":      time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// Parse combines a date string and an optional time-of-day string into an
// instant. When clock is non-empty its hour and minute replace the parsed
// date's, and seconds are zeroed. The second return value is false whenever
// either part cannot be understood.
func (n *Normalizer) Parse(date, clock string) (Result, bool) {
	res, ok := n.ParseDate(date)
	if !ok {
		return Result{}, false
	}

	clock = strings.TrimSpace(clock)
	if clock == "" {
		return res, true
	}

	h, m, ok := ParseClock(clock)
	if !ok {
		return Result{}, false
	}
	t := res.Time
	return Result{Time: time.Date(t.Year(), t.Month(), t.Day(), h, m, 0, 0, t.Location())}, true
}

// ParseDate parses a date, or a date with time, trying in order: native
// ISO 8601 / RFC forms, M/D/YYYY, YYYY-MM-DD, ICS basic format and finally
// relative words (today, tomorrow, weekday names).
func (n *Normalizer) ParseDate(value string) (Result, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Result{}, false
	}

	if res, ok := n.parseNative(value); ok {
		return res, true
	}
	if res, ok := n.parseSlash(value); ok {
		return res, true
	}
	if m := isoDateRe.FindStringSubmatch(value); m != nil {
		return n.dateOnly(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if res, ok := n.parseICSBasic(value); ok {
		return res, true
	}
	return n.parseRelative(value)
}

func (n *Normalizer) parseNative(value string) (Result, bool) {
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return Result{Time: t}, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, n.loc); err == nil {
			return Result{Time: t}, true
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", value, n.loc); err == nil {
		return Result{Time: t, AllDay: true}, true
	}
	for _, layout := range longDateLayouts {
		if t, err := time.ParseInLocation(layout, value, n.loc); err == nil {
			return Result{Time: t, AllDay: true}, true
		}
	}
	return Result{}, false
}

func (n *Normalizer) parseSlash(value string) (Result, bool) {
	m := slashDateRe.FindStringSubmatch(value)
	if m == nil {
		return Result{}, false
	}

	year := atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}
	res, ok := n.dateOnly(year, atoi(m[1]), atoi(m[2]))
	if !ok || m[4] == "" {
		return res, ok
	}

	h, min, ok := ParseClock(m[4])
	if !ok {
		return Result{}, false
	}
	t := res.Time
	return Result{Time: time.Date(t.Year(), t.Month(), t.Day(), h, min, 0, 0, n.loc)}, true
}

func (n *Normalizer) parseICSBasic(value string) (Result, bool) {
	if m := icsDateRe.FindStringSubmatch(value); m != nil {
		return n.dateOnly(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}

	m := icsDateTimeRe.FindStringSubmatch(value)
	if m == nil {
		return Result{}, false
	}
	loc := n.loc
	if m[7] == "Z" {
		loc = time.UTC
	}
	layout := "20060102T150405"
	t, err := time.ParseInLocation(layout, value[:15], loc)
	if err != nil {
		return Result{}, false
	}
	return Result{Time: t}, true
}

func (n *Normalizer) parseRelative(value string) (Result, bool) {
	now := n.now().In(n.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, n.loc)
	word := strings.ToLower(value)

	switch word {
	case "today", "tonight":
		return Result{Time: today, AllDay: true}, true
	case "tomorrow":
		return Result{Time: today.AddDate(0, 0, 1), AllDay: true}, true
	case "yesterday":
		return Result{Time: today.AddDate(0, 0, -1), AllDay: true}, true
	}

	qualifier := ""
	if m := nextWeekdayRe.FindStringSubmatch(word); m != nil {
		qualifier, word = m[1], m[2]
	}
	target, ok := weekdays[word]
	if !ok {
		return Result{}, false
	}

	daysUntil := (int(target) - int(now.Weekday()) + 7) % 7
	switch qualifier {
	case "this":
		// this friday on a friday is today
	case "next":
		if daysUntil == 0 {
			daysUntil = 7
		}
		daysUntil += 7
	default:
		if daysUntil == 0 {
			daysUntil = 7
		}
	}
	return Result{Time: today.AddDate(0, 0, daysUntil), AllDay: true}, true
}

// dateOnly builds midnight of the given calendar day, rejecting days that do
// not exist (2024-02-30) instead of letting time.Date roll them over.
func (n *Normalizer) dateOnly(year, month, day int) (Result, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Result{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, n.loc)
	if t.Month() != time.Month(month) || t.Day() != day {
		return Result{}, false
	}
	return Result{Time: t, AllDay: true}, true
}

// ParseClock parses "H:MM AM/PM" (12 AM is hour 0, 12 PM stays 12), "HH:MM"
// and "HH:MM:SS" 24-hour values, plus "noon" and "midnight".
func ParseClock(value string) (hour, minute int, ok bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "":
		return 0, 0, false
	case "noon":
		return 12, 0, true
	case "midnight":
		return 0, 0, true
	}

	if m := clock12Re.FindStringSubmatch(v); m != nil {
		hour = atoi(m[1])
		if m[2] != "" {
			minute = atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return 0, 0, false
		}
		switch {
		case m[4] == "a" && hour == 12:
			hour = 0
		case m[4] == "p" && hour != 12:
			hour += 12
		}
		return hour, minute, true
	}

	if m := clock24Re.FindStringSubmatch(v); m != nil {
		hour, minute = atoi(m[1]), atoi(m[2])
		if hour > 23 || minute > 59 {
			return 0, 0, false
		}
		return hour, minute, true
	}
	return 0, 0, false
}

// NormalizeClock rewrites a time-of-day string as 24-hour "HH:MM". Values
// that cannot be parsed are returned trimmed but otherwise untouched.
func NormalizeClock(value string) string {
	value = strings.TrimSpace(value)
	if h, m, ok := ParseClock(value); ok {
		return FormatClock(h, m)
	}
	return value
}

// FormatDate renders the calendar day of t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatClock renders an hour and minute as HH:MM.
func FormatClock(hour, minute int) string {
	return strconv.Itoa(hour/10) + strconv.Itoa(hour%10) + ":" + strconv.Itoa(minute/10) + strconv.Itoa(minute%10)
}

// ParseICSValue parses a DTSTART/DTEND value using its property parameters.
// VALUE=DATE forces a date-only reading; TZID selects the zone for naive
// timestamps when the zone is known to the host, falling back to the
// normalizer's location otherwise.
func (n *Normalizer) ParseICSValue(value string, params map[string]string) (Result, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Result{}, false
	}

	if strings.EqualFold(params["VALUE"], "DATE") {
		if m := icsDateRe.FindStringSubmatch(value); m != nil {
			return n.dateOnly(atoi(m[1]), atoi(m[2]), atoi(m[3]))
		}
	}

	if tzid := params["TZID"]; tzid != "" && !strings.HasSuffix(value, "Z") {
		if loc, err := time.LoadLocation(strings.Trim(tzid, `"`)); err == nil {
			zoned := &Normalizer{loc: loc, now: n.now}
			return zoned.ParseDate(value)
		}
	}
	return n.ParseDate(value)
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
