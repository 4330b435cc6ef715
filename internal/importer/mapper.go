package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/chravel/chravel-import/internal/importer/aiextract"
	"github.com/chravel/chravel-import/internal/importer/datetime"
	"github.com/chravel/chravel-import/internal/model"
)

// Mapper turns extraction service records into import records.
type Mapper struct {
	norm *datetime.Normalizer
	now  func() time.Time
}

// NewMapper creates a mapper.
func NewMapper(norm *datetime.Normalizer, now func() time.Time) *Mapper {
	if norm == nil {
		norm = datetime.New(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &Mapper{norm: norm, now: now}
}

// Events maps raw events. Records without a title or whose start cannot be
// read are skipped with an error; confidence stays aligned with the kept
// events.
func (m *Mapper) Events(resp *aiextract.Response, format model.SourceFormat) model.CalendarResult {
	result := model.CalendarResult{
		Events:       []model.ParsedEvent{},
		Errors:       append([]string{}, resp.RecordErrors...),
		SourceFormat: format,
	}
	stamp := m.now().UnixMilli()

	for i, raw := range resp.Events {
		title := strings.TrimSpace(raw.Title)
		if title == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Event #%d: Missing title", i+1))
			continue
		}
		start, ok := m.norm.Parse(raw.StartTime, "")
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("Event #%d: Could not parse start time %q", i+1, raw.StartTime))
			continue
		}

		end := start.Time
		if raw.EndTime != "" {
			if res, ok := m.norm.Parse(raw.EndTime, ""); ok {
				end = res.Time
			}
		}

		uid := strings.TrimSpace(raw.UID)
		if uid == "" {
			uid = fmt.Sprintf("imported-%d-%d", stamp, len(result.Events))
		}

		result.Events = append(result.Events, model.ParsedEvent{
			UID:         uid,
			Title:       title,
			StartTime:   start.Time,
			EndTime:     end,
			Location:    strings.TrimSpace(raw.Location),
			Description: strings.TrimSpace(raw.Description),
			IsAllDay:    raw.IsAllDay || start.AllDay,
		})
		result.Confidence = append(result.Confidence, aiextract.ConfidenceOf(raw.Confidence))
	}

	if format == model.FormatURL {
		result.EventsFound = resp.Found(model.KindCalendar)
	}
	result.IsValid = len(result.Events) > 0
	if !result.IsValid {
		result.Errors = append(result.Errors, noItemsMessage("events", format))
	}
	return result
}

// Sessions maps raw sessions. Records with a blank title are skipped with an
// error. Dates and times are normalized when they parse and passed through
// otherwise.
func (m *Mapper) Sessions(resp *aiextract.Response, format model.SourceFormat) model.AgendaResult {
	result := model.AgendaResult{
		Sessions:     []model.ParsedAgendaSession{},
		Errors:       append([]string{}, resp.RecordErrors...),
		SourceFormat: format,
	}

	for i, raw := range resp.Sessions {
		title := strings.TrimSpace(raw.Title)
		if title == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Session #%d: Missing title", i+1))
			continue
		}

		date := strings.TrimSpace(raw.SessionDate)
		if d, ok := m.norm.ParseDate(date); ok && date != "" {
			date = datetime.FormatDate(d.Time)
		}

		result.Sessions = append(result.Sessions, model.ParsedAgendaSession{
			Title:       title,
			Description: strings.TrimSpace(raw.Description),
			SessionDate: date,
			StartTime:   datetime.NormalizeClock(raw.StartTime),
			EndTime:     datetime.NormalizeClock(raw.EndTime),
			Location:    strings.TrimSpace(raw.Location),
			Track:       strings.TrimSpace(raw.Track),
			Speakers:    cleanNames(raw.Speakers),
		})
		result.Confidence = append(result.Confidence, aiextract.ConfidenceOf(raw.Confidence))
	}

	if format == model.FormatURL {
		result.SessionsFound = resp.Found(model.KindAgenda)
	}
	result.IsValid = len(result.Sessions) > 0
	if !result.IsValid {
		result.Errors = append(result.Errors, noItemsMessage("sessions", format))
	}
	return result
}

// SessionsFromICS converts calendar events into agenda sessions. All-day
// events keep only their date.
func (m *Mapper) SessionsFromICS(res model.ICSResult) model.AgendaResult {
	result := model.AgendaResult{
		Sessions:     []model.ParsedAgendaSession{},
		Errors:       append([]string{}, res.Errors...),
		SourceFormat: model.FormatICS,
	}
	loc := m.norm.Location()

	for _, ev := range res.Events {
		start := ev.StartTime.In(loc)
		s := model.ParsedAgendaSession{
			Title:       ev.Title,
			Description: ev.Description,
			SessionDate: datetime.FormatDate(start),
			Location:    ev.Location,
		}
		if !ev.IsAllDay {
			s.StartTime = datetime.FormatClock(start.Hour(), start.Minute())
			if ev.EndTime.After(ev.StartTime) {
				end := ev.EndTime.In(loc)
				s.EndTime = datetime.FormatClock(end.Hour(), end.Minute())
			}
		}
		result.Sessions = append(result.Sessions, s)
	}

	result.IsValid = res.IsValid && len(result.Sessions) > 0
	return result
}

func noItemsMessage(noun string, format model.SourceFormat) string {
	switch format {
	case model.FormatURL:
		return fmt.Sprintf("No %s found on this page", noun)
	case model.FormatText:
		return fmt.Sprintf("No %s found in the text", noun)
	default:
		return fmt.Sprintf("No %s found in the file", noun)
	}
}

func cleanNames(names []string) []string {
	var out []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
