package store

import (
	"crypto/rand"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/chravel/chravel-import/internal/model"
)

// Event is a calendar event accepted into a trip
type Event struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	TripID       string    `gorm:"index:idx_event_trip_start" json:"trip_id"`
	UID          string    `json:"uid"`
	Title        string    `json:"title"`
	StartTime    time.Time `gorm:"index:idx_event_trip_start" json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Location     string    `json:"location"`
	Description  string    `json:"description" gorm:"type:text"`
	IsAllDay     bool      `json:"is_all_day"`
	SourceFormat string    `json:"source_format"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is an agenda session accepted into a trip
type Session struct {
	ID           string          `gorm:"primaryKey" json:"id"`
	TripID       string          `gorm:"index:idx_session_trip_date" json:"trip_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description" gorm:"type:text"`
	SessionDate  string          `gorm:"index:idx_session_trip_date" json:"session_date"`
	StartTime    string          `json:"start_time"`
	EndTime      string          `json:"end_time"`
	Location     string          `json:"location"`
	Track        string          `json:"track"`
	Speakers     json.RawMessage `json:"speakers,omitempty" gorm:"type:text"`
	SourceFormat string          `json:"source_format"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LineupMember is one performer or speaker on a trip's lineup
type LineupMember struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	TripID    string    `gorm:"uniqueIndex:idx_lineup_trip_name" json:"trip_id"`
	Name      string    `json:"name"`
	NameKey   string    `gorm:"uniqueIndex:idx_lineup_trip_name" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ImportRecord is the audit entry written for every import call
type ImportRecord struct {
	ID           string          `gorm:"primaryKey" json:"id"`
	TripID       string          `gorm:"index" json:"trip_id,omitempty"`
	Kind         string          `json:"kind"`
	Source       string          `json:"source"`
	SourceFormat string          `json:"source_format"`
	IsValid      bool            `json:"is_valid"`
	Items        int             `json:"items"`
	Saved        int             `json:"saved"`
	Duplicates   int             `json:"duplicates"`
	Errors       json.RawMessage `json:"errors,omitempty" gorm:"type:text"`
	DurationMs   int64           `json:"duration_ms"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
}

// BeforeCreate hook for Event
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = generateID("evt")
	}
	return nil
}

// BeforeCreate hook for Session
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = generateID("ses")
	}
	return nil
}

// BeforeCreate hook for LineupMember
func (l *LineupMember) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = generateID("lin")
	}
	if l.NameKey == "" {
		l.NameKey = nameKey(l.Name)
	}
	return nil
}

// BeforeCreate hook for ImportRecord
func (r *ImportRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateID("imp")
	}
	return nil
}

// ToParsed converts a stored event back into the import representation
func (e Event) ToParsed() model.ParsedEvent {
	return model.ParsedEvent{
		UID:         e.UID,
		Title:       e.Title,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Location:    e.Location,
		Description: e.Description,
		IsAllDay:    e.IsAllDay,
	}
}

// ToParsed converts a stored session back into the import representation
func (s Session) ToParsed() model.ParsedAgendaSession {
	var speakers []string
	_ = FromJSON(s.Speakers, &speakers)
	return model.ParsedAgendaSession{
		Title:       s.Title,
		Description: s.Description,
		SessionDate: s.SessionDate,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Location:    s.Location,
		Track:       s.Track,
		Speakers:    speakers,
	}
}

func nameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// generateID creates a unique ID with nanosecond precision
func generateID(prefix string) string {
	return prefix + "_" + time.Now().Format("20060102150405") + "_" + randomString(8)
}

// randomString generates a cryptographically secure random string
func randomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	rand.Read(b)
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}

// ToJSON converts struct to JSON bytes
func ToJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// FromJSON parses JSON bytes into struct
func FromJSON(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
