package datetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var est = time.FixedZone("EST", -5*3600)

// Wednesday
var refNow = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

func newTestNormalizer(loc *time.Location) *Normalizer {
	return New(loc).WithClock(func() time.Time { return refNow })
}

// Date Tests

func TestParseDate_Formats(t *testing.T) {
	n := newTestNormalizer(est)

	tests := []struct {
		name   string
		input  string
		want   time.Time
		allDay bool
	}{
		{"iso date", "2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, est), true},
		{"iso unpadded", "2024-3-5", time.Date(2024, 3, 5, 0, 0, 0, 0, est), true},
		{"rfc3339 utc", "2024-03-15T10:00:00Z", time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), false},
		{"rfc3339 offset", "2024-03-15T10:00:00+02:00", time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC), false},
		{"naive timestamp", "2024-03-15T10:30:00", time.Date(2024, 3, 15, 10, 30, 0, 0, est), false},
		{"naive with space", "2024-03-15 18:45", time.Date(2024, 3, 15, 18, 45, 0, 0, est), false},
		{"long month", "March 15, 2024", time.Date(2024, 3, 15, 0, 0, 0, 0, est), true},
		{"short month", "Mar 15, 2024", time.Date(2024, 3, 15, 0, 0, 0, 0, est), true},
		{"slash four digit year", "03/15/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, est), true},
		{"slash unpadded", "3/5/2024", time.Date(2024, 3, 5, 0, 0, 0, 0, est), true},
		{"slash two digit year", "3/15/24", time.Date(2024, 3, 15, 0, 0, 0, 0, est), true},
		{"slash with time", "03/15/2024 2:30 PM", time.Date(2024, 3, 15, 14, 30, 0, 0, est), false},
		{"ics date", "20240315", time.Date(2024, 3, 15, 0, 0, 0, 0, est), true},
		{"ics utc", "20240315T090000Z", time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC), false},
		{"ics local", "20240315T090000", time.Date(2024, 3, 15, 9, 0, 0, 0, est), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := n.ParseDate(tt.input)
			require.True(t, ok, "expected %q to parse", tt.input)
			assert.True(t, tt.want.Equal(res.Time), "got %s want %s", res.Time, tt.want)
			assert.Equal(t, tt.allDay, res.AllDay)
		})
	}
}

func TestParseDate_SlashIsMonthFirst(t *testing.T) {
	n := newTestNormalizer(time.UTC)

	res, ok := n.ParseDate("04/05/2024")
	require.True(t, ok)
	assert.Equal(t, time.April, res.Time.Month())
	assert.Equal(t, 5, res.Time.Day())

	_, ok = n.ParseDate("13/01/2024")
	assert.False(t, ok, "day-first dates with day > 12 are rejected, not swapped")
}

func TestParseDate_Invalid(t *testing.T) {
	n := newTestNormalizer(time.UTC)

	for _, input := range []string{"", "   ", "TBD", "2024-02-30", "02/30/2024", "20241301", "someday"} {
		_, ok := n.ParseDate(input)
		assert.False(t, ok, "expected %q to be rejected", input)
	}
}

func TestParseDate_Relative(t *testing.T) {
	n := newTestNormalizer(time.UTC)

	tests := []struct {
		input string
		day   int
	}{
		{"today", 13},
		{"Tomorrow", 14},
		{"yesterday", 12},
		{"friday", 15},
		{"wednesday", 20},
		{"this wednesday", 13},
		{"next friday", 22},
		{"Mon", 18},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res, ok := n.ParseDate(tt.input)
			require.True(t, ok)
			assert.Equal(t, time.Date(2024, 3, tt.day, 0, 0, 0, 0, time.UTC), res.Time)
			assert.True(t, res.AllDay)
		})
	}
}

// Time Tests

func TestParse_WithClock(t *testing.T) {
	n := newTestNormalizer(time.UTC)

	tests := []struct {
		date  string
		clock string
		hour  int
		min   int
	}{
		{"2024-03-15", "2:30 PM", 14, 30},
		{"2024-03-15", "12:00 AM", 0, 0},
		{"2024-03-15", "12:15 PM", 12, 15},
		{"2024-03-15", "9am", 9, 0},
		{"2024-03-15", "9:05 p.m.", 21, 5},
		{"2024-03-15", "18:45", 18, 45},
		{"2024-03-15", "07:10:59", 7, 10},
		{"2024-03-15T23:59:59Z", "08:00", 8, 0},
	}

	for _, tt := range tests {
		t.Run(tt.date+" "+tt.clock, func(t *testing.T) {
			res, ok := n.Parse(tt.date, tt.clock)
			require.True(t, ok)
			assert.Equal(t, tt.hour, res.Time.Hour())
			assert.Equal(t, tt.min, res.Time.Minute())
			assert.Equal(t, 0, res.Time.Second())
			assert.Equal(t, 15, res.Time.Day())
			assert.False(t, res.AllDay)
		})
	}
}

func TestParse_EmptyClockKeepsDate(t *testing.T) {
	n := newTestNormalizer(time.UTC)

	res, ok := n.Parse("2024-03-15", "  ")
	require.True(t, ok)
	assert.True(t, res.AllDay)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), res.Time)
}

func TestParse_BadClockIsNull(t *testing.T) {
	n := newTestNormalizer(time.UTC)

	for _, clock := range []string{"25:00", "13:00 PM", "0:30 AM", "noonish", "10:75"} {
		_, ok := n.Parse("2024-03-15", clock)
		assert.False(t, ok, "expected clock %q to be rejected", clock)
	}
}

func TestParseClock(t *testing.T) {
	h, m, ok := ParseClock("noon")
	require.True(t, ok)
	assert.Equal(t, 12, h)
	assert.Equal(t, 0, m)

	h, _, ok = ParseClock("Midnight")
	require.True(t, ok)
	assert.Equal(t, 0, h)
}

func TestNormalizeClock(t *testing.T) {
	assert.Equal(t, "21:05", NormalizeClock("9:05 pm"))
	assert.Equal(t, "09:00", NormalizeClock(" 9:00 "))
	assert.Equal(t, "TBD", NormalizeClock(" TBD "))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "2024-03-05", FormatDate(time.Date(2024, 3, 5, 22, 0, 0, 0, time.UTC)))
	assert.Equal(t, "07:05", FormatClock(7, 5))
	assert.Equal(t, "23:59", FormatClock(23, 59))
}

// ICS Value Tests

func TestParseICSValue(t *testing.T) {
	n := newTestNormalizer(est)

	res, ok := n.ParseICSValue("20240315", map[string]string{"VALUE": "DATE"})
	require.True(t, ok)
	assert.True(t, res.AllDay)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, est), res.Time)

	res, ok = n.ParseICSValue("20240315T090000Z", nil)
	require.True(t, ok)
	assert.Equal(t, time.UTC, res.Time.Location())
	assert.False(t, res.AllDay)

	res, ok = n.ParseICSValue("20240315T090000", map[string]string{"TZID": "Not/AZone"})
	require.True(t, ok)
	assert.True(t, time.Date(2024, 3, 15, 9, 0, 0, 0, est).Equal(res.Time))

	_, ok = n.ParseICSValue("", nil)
	assert.False(t, ok)
}
