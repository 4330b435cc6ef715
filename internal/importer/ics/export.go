package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/chravel/chravel-import/internal/model"
)

// DefaultProductID identifies calendars written by Export.
const DefaultProductID = "-//Chravel//Trip Calendar//EN"

// ExportOptions controls Export output.
type ExportOptions struct {
	ProductID string
	// Stamp is written as DTSTAMP on every event. Zero means now.
	Stamp time.Time
}

// Export serializes events as a VCALENDAR document that Parse can read back.
// All-day events are written with VALUE=DATE and an exclusive DTEND one day
// after the start when the event has no later end of its own.
func Export(events []model.ParsedEvent, opts ExportOptions) []byte {
	if opts.ProductID == "" {
		opts.ProductID = DefaultProductID
	}
	if opts.Stamp.IsZero() {
		opts.Stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetProductId(opts.ProductID)
	cal.SetMethod(ical.MethodPublish)

	for _, e := range events {
		ev := cal.AddEvent(e.UID)
		ev.SetDtStampTime(opts.Stamp.UTC())
		ev.SetSummary(e.Title)
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}

		if e.IsAllDay {
			end := e.EndTime
			if !end.After(e.StartTime) {
				end = e.StartTime.AddDate(0, 0, 1)
			}
			ev.SetAllDayStartAt(e.StartTime)
			ev.SetAllDayEndAt(end)
			continue
		}
		ev.SetStartAt(e.StartTime.UTC())
		ev.SetEndAt(e.EndTime.UTC())
	}

	return []byte(cal.Serialize())
}
