package sheet

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/chravel/chravel-import/internal/errors"
	"github.com/chravel/chravel-import/internal/importer/columns"
	"github.com/chravel/chravel-import/internal/importer/datetime"
	"github.com/chravel/chravel-import/internal/importer/dedupe"
	"github.com/chravel/chravel-import/internal/model"
)

var speakerSplitRe = regexp.MustCompile(`(?i)\s*[,;&]\s*|\s+and\s+`)

// Extractor maps spreadsheet rows onto import records after locating the
// header row.
type Extractor struct {
	norm     *datetime.Normalizer
	detector columns.Detector
	window   int
	now      func() time.Time
}

// NewExtractor creates an extractor. A nil detector means the built-in
// regex detector.
func NewExtractor(norm *datetime.Normalizer, detector columns.Detector) *Extractor {
	if norm == nil {
		norm = datetime.New(nil)
	}
	if detector == nil {
		detector = columns.NewRegexDetector()
	}
	return &Extractor{
		norm:     norm,
		detector: detector,
		window:   columns.DefaultScanWindow,
		now:      time.Now,
	}
}

// WithClock sets the clock used for generated UIDs.
func (x *Extractor) WithClock(now func() time.Time) *Extractor {
	x.now = now
	return x
}

// WithScanWindow overrides how many leading rows are header candidates.
func (x *Extractor) WithScanWindow(n int) *Extractor {
	if n > 0 {
		x.window = n
	}
	return x
}

// dataRows walks the rows below the header, skipping blank ones. fn receives
// the 1-based sheet row number.
func dataRows(rows [][]string, header int, fn func(rowNum int, row []string)) {
	for i := header + 1; i < len(rows); i++ {
		if columns.IsBlank(rows[i]) {
			continue
		}
		fn(i+1, rows[i])
	}
}

func rowError(rowNum int) string {
	return fmt.Sprintf("Row %d: Could not parse", rowNum)
}

// Events maps rows onto calendar events.
func (x *Extractor) Events(rows [][]string, format model.SourceFormat) model.CalendarResult {
	header, m, err := columns.ScanHeaderRow(rows, x.detector, columns.CalendarSchema, x.window)
	if err != nil {
		return model.InvalidCalendar(format, apperrors.UserMessage(err))
	}

	result := model.CalendarResult{Events: []model.ParsedEvent{}, Errors: []string{}, SourceFormat: format}
	stamp := x.now().UnixMilli()

	dataRows(rows, header, func(rowNum int, row []string) {
		title := m.Cell(row, columns.RoleTitle)
		date := m.Cell(row, columns.RoleDate)
		if title == "" || date == "" {
			result.Errors = append(result.Errors, rowError(rowNum))
			return
		}

		// An unreadable start time falls back to the date alone.
		start, ok := x.norm.Parse(date, m.Cell(row, columns.RoleStartTime))
		if !ok {
			start, ok = x.norm.ParseDate(date)
		}
		if !ok {
			result.Errors = append(result.Errors, rowError(rowNum))
			return
		}

		end := start.Time
		if endClock := m.Cell(row, columns.RoleEndTime); endClock != "" && !start.AllDay {
			if res, ok := x.norm.Parse(date, endClock); ok {
				end = res.Time
			}
		}

		result.Events = append(result.Events, model.ParsedEvent{
			UID:         fmt.Sprintf("imported-%d-%d", stamp, len(result.Events)),
			Title:       title,
			StartTime:   start.Time,
			EndTime:     end,
			Location:    m.Cell(row, columns.RoleLocation),
			Description: m.Cell(row, columns.RoleDescription),
			IsAllDay:    start.AllDay,
		})
	})

	result.IsValid = len(result.Events) > 0
	return result
}

// Sessions maps rows onto agenda sessions.
func (x *Extractor) Sessions(rows [][]string, format model.SourceFormat) model.AgendaResult {
	header, m, err := columns.ScanHeaderRow(rows, x.detector, columns.AgendaSchema, x.window)
	if err != nil {
		return model.InvalidAgenda(format, apperrors.UserMessage(err))
	}

	result := model.AgendaResult{Sessions: []model.ParsedAgendaSession{}, Errors: []string{}, SourceFormat: format}

	dataRows(rows, header, func(rowNum int, row []string) {
		title := m.Cell(row, columns.RoleTitle)
		day, ok := x.norm.ParseDate(m.Cell(row, columns.RoleDate))
		if title == "" || !ok {
			result.Errors = append(result.Errors, rowError(rowNum))
			return
		}

		result.Sessions = append(result.Sessions, model.ParsedAgendaSession{
			Title:       title,
			Description: m.Cell(row, columns.RoleDescription),
			SessionDate: datetime.FormatDate(day.Time),
			StartTime:   datetime.NormalizeClock(m.Cell(row, columns.RoleStartTime)),
			EndTime:     datetime.NormalizeClock(m.Cell(row, columns.RoleEndTime)),
			Location:    m.Cell(row, columns.RoleLocation),
			Track:       m.Cell(row, columns.RoleTrack),
			Speakers:    SplitSpeakers(m.Cell(row, columns.RoleSpeakers)),
		})
	})

	result.IsValid = len(result.Sessions) > 0
	return result
}

// Names collects lineup names from the names column.
func (x *Extractor) Names(rows [][]string, format model.SourceFormat) model.LineupResult {
	header, m, err := columns.ScanHeaderRow(rows, x.detector, columns.LineupSchema, x.window)
	if err != nil {
		return model.InvalidLineup(format, apperrors.UserMessage(err))
	}

	var raw []string
	errs := []string{}
	dataRows(rows, header, func(rowNum int, row []string) {
		name := m.Cell(row, columns.RoleSpeakers)
		if name == "" {
			errs = append(errs, rowError(rowNum))
			return
		}
		raw = append(raw, name)
	})

	names := dedupe.UniqueNames(raw)
	return model.LineupResult{
		Names:        names,
		Errors:       errs,
		IsValid:      len(names) > 0,
		SourceFormat: format,
	}
}

// SplitSpeakers splits a speakers cell on commas, semicolons, ampersands and
// the word "and".
func SplitSpeakers(cell string) []string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	var out []string
	for _, part := range speakerSplitRe.Split(cell, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
