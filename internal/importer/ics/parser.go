// Package ics reads and writes the subset of iCalendar used for trip
// calendars: VEVENT blocks with UID, SUMMARY, DESCRIPTION, LOCATION,
// DTSTART and DTEND. Recurrence rules are reported, never expanded.
package ics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/chravel/chravel-import/internal/importer/datetime"
	"github.com/chravel/chravel-import/internal/importer/tokenize"
	"github.com/chravel/chravel-import/internal/model"
)

// MissingCalendarError is reported when the VCALENDAR wrapper is absent.
const MissingCalendarError = "Invalid ICS file: missing BEGIN:VCALENDAR or END:VCALENDAR"

// Parameter values may be quoted, and a quoted value may contain ':' or ';'.
var propertyRe = regexp.MustCompile(`^([A-Za-z0-9-]+)((?:;(?:[^:";]|"[^"]*")*)*):(.*)$`)

// property is one content line of a VEVENT.
type property struct {
	name   string
	params map[string]string
	value  string
}

// Parser converts ICS text into parsed events.
type Parser struct {
	norm *datetime.Normalizer
	now  func() time.Time
}

// NewParser creates a parser that resolves floating times with norm.
func NewParser(norm *datetime.Normalizer) *Parser {
	if norm == nil {
		norm = datetime.New(nil)
	}
	return &Parser{norm: norm, now: time.Now}
}

// WithClock sets the clock used for generated UIDs.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

// Parse extracts every VEVENT of an ICS document. It never fails: structural
// problems make the result invalid, and events without a title or a start
// are skipped with a numbered diagnostic.
func (p *Parser) Parse(text string) model.ICSResult {
	lines := tokenize.UnfoldICS(text)
	if !hasCalendarWrapper(lines) {
		return model.ICSResult{Events: []model.ParsedEvent{}, Errors: []string{MissingCalendarError}}
	}

	result := model.ICSResult{Events: []model.ParsedEvent{}, Errors: []string{}}
	stamp := p.now().UnixMilli()

	blocks := splitEvents(lines)
	for i, props := range blocks {
		event, warnings, err := p.buildEvent(i+1, props)
		if err != "" {
			result.Errors = append(result.Errors, err)
			continue
		}
		if event.UID == "" {
			event.UID = fmt.Sprintf("imported-%d-%d", stamp, i)
		}
		result.Events = append(result.Events, event)
		result.Errors = append(result.Errors, warnings...)
	}

	if len(blocks) == 0 {
		result.Errors = append(result.Errors, "No events found in ICS file")
	}
	result.IsValid = len(result.Events) > 0
	return result
}

func (p *Parser) buildEvent(n int, props map[string]property) (model.ParsedEvent, []string, string) {
	title := strings.TrimSpace(UnescapeText(props["SUMMARY"].value))
	if title == "" {
		return model.ParsedEvent{}, nil, fmt.Sprintf("Event #%d: Missing SUMMARY (title)", n)
	}

	dtstart, ok := props["DTSTART"]
	if !ok {
		return model.ParsedEvent{}, nil, fmt.Sprintf("Event #%d: Missing or invalid DTSTART", n)
	}
	start, ok := p.norm.ParseICSValue(dtstart.value, dtstart.params)
	if !ok {
		return model.ParsedEvent{}, nil, fmt.Sprintf("Event #%d: Missing or invalid DTSTART", n)
	}

	end := start.Time
	if dtend, ok := props["DTEND"]; ok {
		if res, ok := p.norm.ParseICSValue(dtend.value, dtend.params); ok {
			end = res.Time
		}
	}

	event := model.ParsedEvent{
		UID:         strings.TrimSpace(props["UID"].value),
		Title:       title,
		StartTime:   start.Time,
		EndTime:     end,
		Location:    strings.TrimSpace(UnescapeText(props["LOCATION"].value)),
		Description: strings.TrimSpace(UnescapeText(props["DESCRIPTION"].value)),
		IsAllDay:    start.AllDay,
	}

	var warnings []string
	if rule, ok := props["RRULE"]; ok {
		warnings = append(warnings, recurrenceWarning(n, rule.value))
	}
	return event, warnings, ""
}

// recurrenceWarning names the rule's frequency when rrule can parse it.
func recurrenceWarning(n int, value string) string {
	msg := fmt.Sprintf("Event #%d: Recurring events (RRULE) are not supported; imported as a single occurrence", n)
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return msg
	}
	if freq := frequencyName(opt.Freq); freq != "" {
		msg += " (" + freq + " rule)"
	}
	return msg
}

func frequencyName(f rrule.Frequency) string {
	switch f {
	case rrule.YEARLY:
		return "yearly"
	case rrule.MONTHLY:
		return "monthly"
	case rrule.WEEKLY:
		return "weekly"
	case rrule.DAILY:
		return "daily"
	case rrule.HOURLY:
		return "hourly"
	case rrule.MINUTELY:
		return "minutely"
	case rrule.SECONDLY:
		return "secondly"
	}
	return ""
}

func hasCalendarWrapper(lines []string) bool {
	var begin, end bool
	for _, line := range lines {
		switch strings.ToUpper(strings.TrimSpace(line)) {
		case "BEGIN:VCALENDAR":
			begin = true
		case "END:VCALENDAR":
			end = true
		}
	}
	return begin && end
}

// splitEvents groups the content lines of each VEVENT. Sub-components such
// as VALARM are skipped so their properties cannot shadow the event's own.
// The first occurrence of a property wins.
func splitEvents(lines []string) []map[string]property {
	var (
		blocks  []map[string]property
		current map[string]property
		depth   int
	)

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		upper := strings.ToUpper(line)

		switch {
		case upper == "BEGIN:VEVENT":
			current = map[string]property{}
			depth = 0
			continue
		case upper == "END:VEVENT":
			if current != nil {
				blocks = append(blocks, current)
			}
			current = nil
			continue
		case current == nil:
			continue
		case strings.HasPrefix(upper, "BEGIN:"):
			depth++
			continue
		case strings.HasPrefix(upper, "END:"):
			if depth > 0 {
				depth--
			}
			continue
		case depth > 0:
			continue
		}

		prop, ok := parseProperty(line)
		if !ok {
			continue
		}
		if _, seen := current[prop.name]; !seen {
			current[prop.name] = prop
		}
	}
	return blocks
}

func parseProperty(line string) (property, bool) {
	m := propertyRe.FindStringSubmatch(line)
	if m == nil {
		return property{}, false
	}

	prop := property{
		name:   strings.ToUpper(m[1]),
		params: map[string]string{},
		value:  m[3],
	}
	for _, param := range splitParams(strings.TrimPrefix(m[2], ";")) {
		if k, v, ok := strings.Cut(param, "="); ok {
			v = strings.Trim(strings.TrimSpace(v), `"`)
			prop.params[strings.ToUpper(strings.TrimSpace(k))] = v
		}
	}
	return prop, true
}

// splitParams splits a parameter list on the semicolons outside quotes.
func splitParams(s string) []string {
	var parts []string
	quoted := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ';':
			if !quoted {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// UnescapeText reverses RFC 5545 TEXT escaping: \n and \N become a newline,
// and \, \; \\ become the bare character. Unknown escapes are kept as is.
func UnescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		switch next := s[i+1]; next {
		case 'n', 'N':
			sb.WriteByte('\n')
		case ',', ';', '\\':
			sb.WriteByte(next)
		default:
			sb.WriteByte('\\')
			sb.WriteByte(next)
		}
		i++
	}
	return sb.String()
}
