// Package aiextract wraps the external extraction service: it uploads files
// to temporary object storage, invokes the service and validates what comes
// back. Mapping raw records onto the import model happens in the caller.
package aiextract

import (
	"context"

	"github.com/chravel/chravel-import/internal/model"
)

// DefaultConfidence is used when a record carries no confidence score.
const DefaultConfidence = 0.8

// UploadOptions mirrors the storage bucket's upload flags
type UploadOptions struct {
	ContentType string
	Upsert      bool
}

// ObjectStorage is the temporary object store AI file imports go through
type ObjectStorage interface {
	Upload(ctx context.Context, path string, data []byte, opts UploadOptions) error
	PublicURL(path string) string
	Remove(ctx context.Context, paths []string) error
}

// Service is the opaque extraction function
type Service interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// ServiceFunc adapts a function to Service
type ServiceFunc func(ctx context.Context, req Request) (*Response, error)

func (f ServiceFunc) Invoke(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Request is the extraction service's input
type Request struct {
	FileURL        string     `json:"fileUrl,omitempty" validate:"omitempty,url"`
	FileType       string     `json:"fileType,omitempty"`
	MessageText    string     `json:"messageText,omitempty"`
	ExtractionType model.Kind `json:"extractionType" validate:"required,oneof=calendar agenda lineup"`
	URL            string     `json:"url,omitempty" validate:"omitempty,url"`
}

// RawEvent is one calendar event as the service returns it
type RawEvent struct {
	UID         string   `json:"uid,omitempty"`
	Title       string   `json:"title" validate:"required"`
	StartTime   string   `json:"startTime" validate:"required"`
	EndTime     string   `json:"endTime,omitempty"`
	Location    string   `json:"location,omitempty"`
	Description string   `json:"description,omitempty"`
	IsAllDay    bool     `json:"isAllDay,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// RawSession is one agenda session as the service returns it
type RawSession struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description,omitempty"`
	SessionDate string   `json:"session_date,omitempty"`
	StartTime   string   `json:"start_time,omitempty"`
	EndTime     string   `json:"end_time,omitempty"`
	Location    string   `json:"location,omitempty"`
	Track       string   `json:"track,omitempty"`
	Speakers    []string `json:"speakers,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Response is the extraction service's output. Found counts are only set
// by URL scans and report items seen before the service filtered them.
type Response struct {
	Success       *bool        `json:"success,omitempty"`
	Error         string       `json:"error,omitempty"`
	Events        []RawEvent   `json:"events,omitempty"`
	Sessions      []RawSession `json:"sessions,omitempty"`
	Names         []string     `json:"names,omitempty"`
	EventsFound   *int         `json:"events_found,omitempty" validate:"omitempty,gte=0"`
	SessionsFound *int         `json:"sessions_found,omitempty" validate:"omitempty,gte=0"`
	NamesFound    *int         `json:"names_found,omitempty" validate:"omitempty,gte=0"`

	// RecordErrors lists records dropped by validation.
	RecordErrors []string `json:"-"`
}

// OK reports whether the service signalled success. A missing flag counts
// as success when no error text was returned.
func (r *Response) OK() bool {
	if r.Success != nil {
		return *r.Success
	}
	return r.Error == ""
}

// ConfidenceOf returns c or the default.
func ConfidenceOf(c *float64) float64 {
	if c == nil {
		return DefaultConfidence
	}
	return *c
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// Found returns the pre-filter count for kind.
func (r *Response) Found(kind model.Kind) int {
	switch kind {
	case model.KindAgenda:
		return intOrZero(r.SessionsFound)
	case model.KindLineup:
		return intOrZero(r.NamesFound)
	default:
		return intOrZero(r.EventsFound)
	}
}
