// Package model holds the unified representations produced by the import
// pipeline. Every value here is ephemeral: it lives for one import call until
// the caller persists or discards it.
package model

import "time"

// SourceFormat identifies which extractor produced a result.
type SourceFormat string

const (
	FormatICS   SourceFormat = "ics"
	FormatCSV   SourceFormat = "csv"
	FormatExcel SourceFormat = "excel"
	FormatPDF   SourceFormat = "pdf"
	FormatImage SourceFormat = "image"
	FormatText  SourceFormat = "text"
	FormatURL   SourceFormat = "url"
)

// Kind is the import kind a caller asked for.
type Kind string

const (
	KindCalendar Kind = "calendar"
	KindAgenda   Kind = "agenda"
	KindLineup   Kind = "lineup"
)

// ParsedEvent is one imported calendar event.
//
// EndTime equals StartTime when the source had no end. EndTime >= StartTime
// is not enforced; inconsistent sources pass through unchanged.
type ParsedEvent struct {
	UID         string    `json:"uid" yaml:"uid"`
	Title       string    `json:"title" yaml:"title"`
	StartTime   time.Time `json:"startTime" yaml:"start_time"`
	EndTime     time.Time `json:"endTime" yaml:"end_time"`
	Location    string    `json:"location,omitempty" yaml:"location,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	IsAllDay    bool      `json:"isAllDay" yaml:"is_all_day"`
}

// ParsedAgendaSession is one session of an event agenda. Dates and times are
// kept as strings because sessions are relative to the event's own days.
type ParsedAgendaSession struct {
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	SessionDate string   `json:"session_date,omitempty" yaml:"session_date,omitempty"` // YYYY-MM-DD
	StartTime   string   `json:"start_time,omitempty" yaml:"start_time,omitempty"`     // HH:MM
	EndTime     string   `json:"end_time,omitempty" yaml:"end_time,omitempty"`         // HH:MM
	Location    string   `json:"location,omitempty" yaml:"location,omitempty"`
	Track       string   `json:"track,omitempty" yaml:"track,omitempty"`
	Speakers    []string `json:"speakers,omitempty" yaml:"speakers,omitempty"`
}

// ICSResult is the outcome of the pure ICS parser.
type ICSResult struct {
	Events  []ParsedEvent `json:"events"`
	Errors  []string      `json:"errors"`
	IsValid bool          `json:"isValid"`
}

// CalendarResult is the envelope returned by every calendar import path.
// Confidence is aligned by index with Events and only set for AI formats.
type CalendarResult struct {
	Events       []ParsedEvent `json:"events" yaml:"events"`
	Errors       []string      `json:"errors" yaml:"errors"`
	IsValid      bool          `json:"isValid" yaml:"is_valid"`
	SourceFormat SourceFormat  `json:"sourceFormat" yaml:"source_format"`
	Confidence   []float64     `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	EventsFound  int           `json:"eventsFound,omitempty" yaml:"events_found,omitempty"`
}

// AgendaResult is the envelope returned by every agenda import path.
type AgendaResult struct {
	Sessions      []ParsedAgendaSession `json:"sessions" yaml:"sessions"`
	Errors        []string              `json:"errors" yaml:"errors"`
	IsValid       bool                  `json:"isValid" yaml:"is_valid"`
	SourceFormat  SourceFormat          `json:"sourceFormat" yaml:"source_format"`
	Confidence    []float64             `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	SessionsFound int                   `json:"sessionsFound,omitempty" yaml:"sessions_found,omitempty"`
}

// LineupResult is the envelope returned by every lineup import path.
type LineupResult struct {
	Names        []string     `json:"names" yaml:"names"`
	Errors       []string     `json:"errors" yaml:"errors"`
	IsValid      bool         `json:"isValid" yaml:"is_valid"`
	SourceFormat SourceFormat `json:"sourceFormat" yaml:"source_format"`
	NamesFound   int          `json:"namesFound,omitempty" yaml:"names_found,omitempty"`
}

// InvalidCalendar builds a failed calendar result carrying a single error.
func InvalidCalendar(format SourceFormat, msg string) CalendarResult {
	return CalendarResult{Events: []ParsedEvent{}, Errors: []string{msg}, SourceFormat: format}
}

// InvalidAgenda builds a failed agenda result carrying a single error.
func InvalidAgenda(format SourceFormat, msg string) AgendaResult {
	return AgendaResult{Sessions: []ParsedAgendaSession{}, Errors: []string{msg}, SourceFormat: format}
}

// InvalidLineup builds a failed lineup result carrying a single error.
func InvalidLineup(format SourceFormat, msg string) LineupResult {
	return LineupResult{Names: []string{}, Errors: []string{msg}, SourceFormat: format}
}

// ItemCount returns how many items the result carries.
func (r CalendarResult) ItemCount() int { return len(r.Events) }

// ItemCount returns how many items the result carries.
func (r AgendaResult) ItemCount() int { return len(r.Sessions) }

// ItemCount returns how many items the result carries.
func (r LineupResult) ItemCount() int { return len(r.Names) }

// Valid reports whether the import produced usable items.
func (r CalendarResult) Valid() bool { return r.IsValid }

// Valid reports whether the import produced usable items.
func (r AgendaResult) Valid() bool { return r.IsValid }

// Valid reports whether the import produced usable items.
func (r LineupResult) Valid() bool { return r.IsValid }

// Problems returns the result's error strings.
func (r CalendarResult) Problems() []string { return r.Errors }

// Problems returns the result's error strings.
func (r AgendaResult) Problems() []string { return r.Errors }

// Problems returns the result's error strings.
func (r LineupResult) Problems() []string { return r.Errors }

// ParseKind validates an import kind name.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindCalendar, KindAgenda, KindLineup:
		return k, true
	}
	return "", false
}
