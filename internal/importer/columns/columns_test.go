package columns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chravel/chravel-import/internal/errors"
)

func TestRegexDetector_CalendarHeaders(t *testing.T) {
	d := NewRegexDetector()

	mapping, ok := d.Detect([]string{"Date", "Event", "Location"}, CalendarSchema)
	require.True(t, ok)
	assert.Equal(t, 0, mapping[RoleDate])
	assert.Equal(t, 1, mapping[RoleTitle])
	assert.Equal(t, 2, mapping[RoleLocation])
	assert.False(t, mapping.Has(RoleStartTime))
}

func TestRegexDetector_Synonyms(t *testing.T) {
	d := NewRegexDetector()

	mapping, ok := d.Detect([]string{" Session Title ", "DAY", "Start_Time:", "Ends", "Room", "Speakers"}, AgendaSchema)
	require.True(t, ok)
	assert.Equal(t, 0, mapping[RoleTitle])
	assert.Equal(t, 1, mapping[RoleDate])
	assert.Equal(t, 2, mapping[RoleStartTime])
	assert.Equal(t, 3, mapping[RoleEndTime])
	assert.Equal(t, 4, mapping[RoleLocation])
	assert.Equal(t, 5, mapping[RoleSpeakers])
}

func TestRegexDetector_FirstMatchWinsAndNoReassignment(t *testing.T) {
	d := NewRegexDetector()

	// "Summary" matches both title and description; title claims it first so
	// description falls to the later "Notes" column.
	mapping, ok := d.Detect([]string{"Summary", "Title", "Date", "Notes"}, CalendarSchema)
	require.True(t, ok)
	assert.Equal(t, 0, mapping[RoleTitle])
	assert.Equal(t, 3, mapping[RoleDescription])
}

func TestRegexDetector_WholeHeaderMatchOnly(t *testing.T) {
	d := NewRegexDetector()

	_, ok := d.Detect([]string{"Event organiser", "Date"}, CalendarSchema)
	assert.False(t, ok)
}

func TestRegexDetector_RequiredRoles(t *testing.T) {
	d := NewRegexDetector()

	_, ok := d.Detect([]string{"Event", "Location"}, CalendarSchema)
	assert.False(t, ok, "calendar needs a date column")

	mapping, ok := d.Detect([]string{"Artist", "Stage"}, LineupSchema)
	require.True(t, ok, "lineup does not need a date column")
	assert.Equal(t, 0, mapping[RoleSpeakers])
}

func TestScanHeaderRow_SkipsBannerRows(t *testing.T) {
	rows := [][]string{
		{"My Schedule"},
		{},
		{"Session", "Start", "Speaker"},
		{"Opening", "9:00", "Jane Doe"},
	}

	idx, mapping, err := ScanHeaderRow(rows, NewRegexDetector(), LineupSchema, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 2, mapping[RoleSpeakers])
	assert.Equal(t, 0, mapping[RoleTitle])
	assert.Equal(t, 1, mapping[RoleStartTime])
}

func TestScanHeaderRow_HighestScoreThenEarliest(t *testing.T) {
	rows := [][]string{
		{"Title", "Date"},
		{"Title", "Date", "Location"},
		{"Title", "Date", "Venue"},
	}

	idx, _, err := ScanHeaderRow(rows, NewRegexDetector(), CalendarSchema, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestScanHeaderRow_WindowLimit(t *testing.T) {
	rows := make([][]string, 12)
	for i := range rows {
		rows[i] = []string{"filler"}
	}
	rows[11] = []string{"Title", "Date"}

	_, _, err := ScanHeaderRow(rows, NewRegexDetector(), CalendarSchema, DefaultScanWindow)
	require.Error(t, err)
}

func TestScanHeaderRow_ErrorListsHeaders(t *testing.T) {
	rows := [][]string{
		{"", ""},
		{"Foo", "Bar Baz"},
		{"1", "2"},
	}

	_, _, err := ScanHeaderRow(rows, NewRegexDetector(), CalendarSchema, 10)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNoHeader, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), `"Foo"`)
	assert.Contains(t, err.Error(), `"Bar Baz"`)
	assert.Contains(t, err.Error(), "title, date")
}

func TestScanHeaderRow_CustomDetector(t *testing.T) {
	rows := [][]string{{"a", "b"}, {"x", "y"}}
	d := DetectorFunc(func(headers []string, schema Schema) (Mapping, bool) {
		if headers[0] == "x" {
			return Mapping{RoleTitle: 1, RoleDate: 0}, true
		}
		return nil, false
	})

	idx, mapping, err := ScanHeaderRow(rows, d, CalendarSchema, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "y", mapping.Cell([]string{"x", " y "}, RoleTitle))
}

func TestMappingCell_ShortRow(t *testing.T) {
	m := Mapping{RoleLocation: 5}
	assert.Equal(t, "", m.Cell([]string{"a"}, RoleLocation))
	assert.Equal(t, "", m.Cell([]string{"a"}, RoleTrack))
}
