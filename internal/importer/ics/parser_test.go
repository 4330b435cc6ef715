package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chravel/chravel-import/internal/importer/datetime"
	"github.com/chravel/chravel-import/internal/model"
)

var fixedNow = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

func newTestParser() *Parser {
	return NewParser(datetime.New(time.UTC)).WithClock(func() time.Time { return fixedNow })
}

func calendar(body ...string) string {
	lines := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//Test//EN"}, body...)
	lines = append(lines, "END:VCALENDAR")
	return strings.Join(lines, "\r\n") + "\r\n"
}

// Parse Tests

func TestParse_WellFormedEvent(t *testing.T) {
	text := calendar(
		"BEGIN:VEVENT",
		"UID:abc-123@example.com",
		`SUMMARY:Meeting\, Planning`,
		"DTSTART:20240115T100000Z",
		"DTEND:20240115T120000Z",
		`LOCATION:Room 4\; East Wing`,
		`DESCRIPTION:Line one\nLine two \\ done`,
		"END:VEVENT",
	)

	result := newTestParser().Parse(text)

	require.True(t, result.IsValid)
	require.Len(t, result.Events, 1)
	assert.Empty(t, result.Errors)

	e := result.Events[0]
	assert.Equal(t, "abc-123@example.com", e.UID)
	assert.Equal(t, "Meeting, Planning", e.Title)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), e.StartTime)
	assert.Equal(t, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), e.EndTime)
	assert.Equal(t, "Room 4; East Wing", e.Location)
	assert.Equal(t, "Line one\nLine two \\ done", e.Description)
	assert.False(t, e.IsAllDay)
}

func TestParse_AllDayWithoutEnd(t *testing.T) {
	text := calendar(
		"BEGIN:VEVENT",
		"SUMMARY:Arrival day",
		"DTSTART;VALUE=DATE:20240125",
		"END:VEVENT",
	)

	result := newTestParser().Parse(text)

	require.Len(t, result.Events, 1)
	e := result.Events[0]
	assert.True(t, e.IsAllDay)
	assert.Equal(t, e.StartTime, e.EndTime)
	assert.Equal(t, time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC), e.StartTime)
}

func TestParse_MissingFieldsSkipped(t *testing.T) {
	text := calendar(
		"BEGIN:VEVENT",
		"DTSTART:20240115T100000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:No start",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:Good one",
		"DTSTART:20240116T100000Z",
		"END:VEVENT",
	)

	result := newTestParser().Parse(text)

	assert.True(t, result.IsValid)
	assert.Len(t, result.Events, 1)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "Event #1: Missing SUMMARY (title)", result.Errors[0])
	assert.Equal(t, "Event #2: Missing or invalid DTSTART", result.Errors[1])
}

func TestParse_InvalidDTStart(t *testing.T) {
	text := calendar(
		"BEGIN:VEVENT",
		"SUMMARY:Broken",
		"DTSTART:not-a-date",
		"END:VEVENT",
	)

	result := newTestParser().Parse(text)

	assert.False(t, result.IsValid)
	assert.Empty(t, result.Events)
	assert.Equal(t, []string{"Event #1: Missing or invalid DTSTART"}, result.Errors)
}

func TestParse_StructuralRejection(t *testing.T) {
	tests := []string{
		"BEGIN:VEVENT\nSUMMARY:x\nDTSTART:20240115T100000Z\nEND:VEVENT\n",
		"BEGIN:VCALENDAR\nBEGIN:VEVENT\nSUMMARY:x\nDTSTART:20240115T100000Z\nEND:VEVENT\n",
		"",
	}

	for _, text := range tests {
		result := newTestParser().Parse(text)
		assert.False(t, result.IsValid)
		assert.Empty(t, result.Events)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "VCALENDAR")
	}
}

func TestParse_WrapperIsCaseInsensitive(t *testing.T) {
	text := "  begin:vcalendar \nBEGIN:VEVENT\nSUMMARY:x\nDTSTART:20240115\nEND:VEVENT\nEnd:VCalendar\n"

	result := newTestParser().Parse(text)
	assert.True(t, result.IsValid)
}

func TestParse_GeneratedUID(t *testing.T) {
	text := calendar(
		"BEGIN:VEVENT", "SUMMARY:First", "DTSTART:20240115T100000Z", "END:VEVENT",
		"BEGIN:VEVENT", "SUMMARY:Second", "DTSTART:20240116T100000Z", "END:VEVENT",
	)

	result := newTestParser().Parse(text)

	require.Len(t, result.Events, 2)
	assert.Equal(t, "imported-1704873600000-0", result.Events[0].UID)
	assert.Equal(t, "imported-1704873600000-1", result.Events[1].UID)
}

func TestParse_FoldedLines(t *testing.T) {
	text := "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nSUMMARY:A very long title that\r\n  continues here\r\nDTSTART:2024011\r\n\t5T100000Z\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

	result := newTestParser().Parse(text)

	require.Len(t, result.Events, 1)
	assert.Equal(t, "A very long title that continues here", result.Events[0].Title)
	assert.Equal(t, 15, result.Events[0].StartTime.Day())
}

func TestParse_RecurrenceWarning(t *testing.T) {
	text := calendar(
		"BEGIN:VEVENT",
		"SUMMARY:Standup",
		"DTSTART:20240115T090000Z",
		"RRULE:FREQ=WEEKLY;BYDAY=MO,WE",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:Odd",
		"DTSTART:20240115T090000Z",
		"RRULE:NONSENSE",
		"END:VEVENT",
	)

	result := newTestParser().Parse(text)

	assert.True(t, result.IsValid)
	assert.Len(t, result.Events, 2)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Event #1: Recurring events (RRULE) are not supported")
	assert.Contains(t, result.Errors[0], "weekly")
	assert.Equal(t, "Event #2: Recurring events (RRULE) are not supported; imported as a single occurrence", result.Errors[1])
}

func TestParse_ParametersAndAlarms(t *testing.T) {
	text := calendar(
		"BEGIN:VEVENT",
		"SUMMARY;LANGUAGE=en:Dinner",
		"DTSTART;TZID=Unknown/Zone:20240115T190000",
		"BEGIN:VALARM",
		"DESCRIPTION:Reminder",
		"TRIGGER:-PT15M",
		"END:VALARM",
		"DESCRIPTION:Table for six",
		"END:VEVENT",
	)

	result := newTestParser().Parse(text)

	require.Len(t, result.Events, 1)
	e := result.Events[0]
	assert.Equal(t, "Dinner", e.Title)
	assert.Equal(t, "Table for six", e.Description)
	assert.Equal(t, time.Date(2024, 1, 15, 19, 0, 0, 0, time.UTC), e.StartTime)
}

func TestParse_QuotedParameterValues(t *testing.T) {
	text := calendar(
		"BEGIN:VEVENT",
		"SUMMARY:Dinner",
		`DTSTART;TZID="UTC":20240115T190000`,
		`DESCRIPTION;ALTREP="cid:part1@example.org";LANGUAGE=en:Bring wine`,
		`LOCATION;X-NOTE="a;b:c":Cafe`,
		"END:VEVENT",
	)

	result := newTestParser().Parse(text)

	require.Len(t, result.Events, 1)
	e := result.Events[0]
	assert.Equal(t, "Bring wine", e.Description)
	assert.Equal(t, "Cafe", e.Location)
	assert.Equal(t, time.Date(2024, 1, 15, 19, 0, 0, 0, time.UTC), e.StartTime)
}

func TestParse_EmptyCalendar(t *testing.T) {
	result := newTestParser().Parse(calendar())

	assert.False(t, result.IsValid)
	assert.Empty(t, result.Events)
	assert.Equal(t, []string{"No events found in ICS file"}, result.Errors)
}

// Escaping Tests

func TestUnescapeText(t *testing.T) {
	assert.Equal(t, "Meeting, Planning", UnescapeText(`Meeting\, Planning`))
	assert.Equal(t, "plain text", UnescapeText("plain text"))
	assert.Equal(t, "a\nb\nc", UnescapeText(`a\nb\Nc`))
	assert.Equal(t, `a;b\c`, UnescapeText(`a\;b\\c`))
	assert.Equal(t, `keep \x and trailing \`, UnescapeText(`keep \x and trailing \`))
}

// Export Tests

func TestExport_RoundTrip(t *testing.T) {
	events := []model.ParsedEvent{
		{
			UID:         "evt-1",
			Title:       "Dinner, drinks; dancing",
			StartTime:   time.Date(2024, 1, 15, 19, 0, 0, 0, time.UTC),
			EndTime:     time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC),
			Location:    "Harbour Bar",
			Description: strings.Repeat("A long description that has to be folded. ", 4),
		},
		{
			UID:       "evt-2",
			Title:     "Beach day",
			StartTime: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
			IsAllDay:  true,
		},
	}

	data := Export(events, ExportOptions{Stamp: fixedNow})
	result := newTestParser().Parse(string(data))

	require.True(t, result.IsValid, "errors: %v", result.Errors)
	require.Len(t, result.Events, 2)

	first := result.Events[0]
	assert.Equal(t, "evt-1", first.UID)
	assert.Equal(t, events[0].Title, first.Title)
	assert.True(t, events[0].StartTime.Equal(first.StartTime))
	assert.True(t, events[0].EndTime.Equal(first.EndTime))
	assert.Equal(t, "Harbour Bar", first.Location)
	assert.Equal(t, strings.TrimSpace(events[0].Description), first.Description)
	assert.False(t, first.IsAllDay)

	second := result.Events[1]
	assert.True(t, second.IsAllDay)
	assert.Equal(t, events[1].StartTime, second.StartTime)
	assert.Equal(t, events[1].StartTime.AddDate(0, 0, 1), second.EndTime)
}
