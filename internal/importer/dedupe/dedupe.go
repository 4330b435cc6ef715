// Package dedupe builds canonical keys for imported records and flags the
// ones already present in a trip. Matching is exact on the normalized key:
// typos and punctuation differences are not caught.
package dedupe

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chravel/chravel-import/internal/model"
)

const keySep = "|"

// IndexSet holds indices into a parsed item list.
type IndexSet map[int]struct{}

// Has reports whether i is in the set.
func (s IndexSet) Has(i int) bool {
	_, ok := s[i]
	return ok
}

// Sorted returns the indices in ascending order.
func (s IndexSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// NormalizeField case-folds, trims and collapses internal whitespace runs.
func NormalizeField(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// EventKey is "<start-ms>|<end-ms>|<title>". A zero end falls back to start.
func EventKey(start, end time.Time, title string) string {
	if end.IsZero() {
		end = start
	}
	return strconv.FormatInt(start.UnixMilli(), 10) + keySep +
		strconv.FormatInt(end.UnixMilli(), 10) + keySep +
		NormalizeField(title)
}

// SessionKey joins the normalized title, date, start time and location.
// Empty fields still take their slot in the key.
func SessionKey(title, date, start, location string) string {
	return strings.Join([]string{
		NormalizeField(title),
		NormalizeField(date),
		NormalizeField(start),
		NormalizeField(location),
	}, keySep)
}

// ExistingEvent is the minimal shape of a stored event needed for matching.
type ExistingEvent struct {
	Title     string
	StartTime time.Time
	EndTime   time.Time
}

// ExistingSession is the minimal shape of a stored agenda session.
type ExistingSession struct {
	Title       string
	SessionDate string
	StartTime   string
	Location    string
}

// FindDuplicateEvents returns the indices of parsed events whose key matches
// an existing event.
func FindDuplicateEvents(parsed []model.ParsedEvent, existing []ExistingEvent) IndexSet {
	known := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		known[EventKey(e.StartTime, e.EndTime, e.Title)] = struct{}{}
	}

	dupes := IndexSet{}
	for i, e := range parsed {
		if _, ok := known[EventKey(e.StartTime, e.EndTime, e.Title)]; ok {
			dupes[i] = struct{}{}
		}
	}
	return dupes
}

// FindDuplicateAgendaSessions returns the indices of parsed sessions whose
// key matches an existing session.
func FindDuplicateAgendaSessions(parsed []model.ParsedAgendaSession, existing []ExistingSession) IndexSet {
	known := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		known[SessionKey(s.Title, s.SessionDate, s.StartTime, s.Location)] = struct{}{}
	}

	dupes := IndexSet{}
	for i, s := range parsed {
		if _, ok := known[SessionKey(s.Title, s.SessionDate, s.StartTime, s.Location)]; ok {
			dupes[i] = struct{}{}
		}
	}
	return dupes
}

// UniqueNames trims names, drops empty ones, keeps the first casing of
// case-insensitive duplicates and sorts the result alphabetically without
// regard to case.
func UniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.Join(strings.Fields(name), " ")
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
