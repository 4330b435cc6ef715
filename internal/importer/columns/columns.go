// Package columns infers which spreadsheet column carries which field of an
// imported record from the header row.
package columns

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/chravel/chravel-import/internal/errors"
	"github.com/chravel/chravel-import/internal/model"
)

// DefaultScanWindow is how many leading rows are considered as header
// candidates.
const DefaultScanWindow = 10

// Role is the semantic meaning of a column.
type Role string

const (
	RoleDate        Role = "date"
	RoleTitle       Role = "title"
	RoleStartTime   Role = "start_time"
	RoleEndTime     Role = "end_time"
	RoleLocation    Role = "location"
	RoleDescription Role = "description"
	RoleTrack       Role = "track"
	RoleSpeakers    Role = "speakers"
)

// Schema lists the roles an import kind needs and the roles it can use.
// Roles are matched in order, required first.
type Schema struct {
	Kind     model.Kind
	Required []Role
	Optional []Role
}

var (
	CalendarSchema = Schema{
		Kind:     model.KindCalendar,
		Required: []Role{RoleTitle, RoleDate},
		Optional: []Role{RoleStartTime, RoleEndTime, RoleLocation, RoleDescription},
	}
	AgendaSchema = Schema{
		Kind:     model.KindAgenda,
		Required: []Role{RoleTitle, RoleDate},
		Optional: []Role{RoleStartTime, RoleEndTime, RoleLocation, RoleDescription, RoleTrack, RoleSpeakers},
	}
	// LineupSchema's required column is the one holding performer or speaker
	// names; dates are irrelevant for a lineup.
	LineupSchema = Schema{
		Kind:     model.KindLineup,
		Required: []Role{RoleSpeakers},
		Optional: []Role{RoleTitle, RoleDate, RoleStartTime, RoleLocation, RoleTrack},
	}
)

// SchemaFor returns the predefined schema of an import kind.
func SchemaFor(kind model.Kind) Schema {
	switch kind {
	case model.KindAgenda:
		return AgendaSchema
	case model.KindLineup:
		return LineupSchema
	default:
		return CalendarSchema
	}
}

func (s Schema) roles() []Role {
	roles := make([]Role, 0, len(s.Required)+len(s.Optional))
	roles = append(roles, s.Required...)
	return append(roles, s.Optional...)
}

// Mapping maps a role to its zero-based column index.
type Mapping map[Role]int

// Has reports whether role was assigned a column.
func (m Mapping) Has(role Role) bool {
	_, ok := m[role]
	return ok
}

// Cell returns the trimmed value of role's column in row, or "" when the
// role is unmapped or the row is too short.
func (m Mapping) Cell(row []string, role Role) string {
	idx, ok := m[role]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Score counts the optional roles present in the mapping.
func (m Mapping) Score(schema Schema) int {
	score := 0
	for _, role := range schema.Optional {
		if m.Has(role) {
			score++
		}
	}
	return score
}

// Detector turns a header row into a column mapping. It returns false when
// the schema's required roles cannot all be satisfied.
type Detector interface {
	Detect(headers []string, schema Schema) (Mapping, bool)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(headers []string, schema Schema) (Mapping, bool)

func (f DetectorFunc) Detect(headers []string, schema Schema) (Mapping, bool) {
	return f(headers, schema)
}

var defaultPatterns = map[Role]*regexp.Regexp{
	RoleTitle:       regexp.MustCompile(`^(title|event|events|event name|event title|name|summary|subject|session|session name|session title|activity|talk|talk title|topic|what|item)$`),
	RoleDate:        regexp.MustCompile(`^(date|day|dates|event date|session date|start date|when|date of event)$`),
	RoleStartTime:   regexp.MustCompile(`^(start|starts|start time|starting|begin|begins|begin time|from|time|start at|starts at)$`),
	RoleEndTime:     regexp.MustCompile(`^(end|ends|end time|ending|finish|finishes|until|to|end at|ends at)$`),
	RoleLocation:    regexp.MustCompile(`^(location|venue|place|where|room|address|stage|hall|area)$`),
	RoleDescription: regexp.MustCompile(`^(description|details|notes|note|info|information|about|summary|desc|abstract)$`),
	RoleTrack:       regexp.MustCompile(`^(track|tracks|category|type|stream|theme)$`),
	RoleSpeakers:    regexp.MustCompile(`^(speakers?|presenters?|hosts?|names?|artists?|performers?|lineup|line up|acts?|moderators?|panelists?|djs?|bands?|talent|who)$`),
}

var headerNoise = strings.NewReplacer("_", " ", "-", " ", ":", "", "*", "", ".", "")

// NormalizeHeader lower-cases a header, maps separators to spaces and
// collapses whitespace so "Start_Time:" and "start time" compare equal.
func NormalizeHeader(h string) string {
	h = headerNoise.Replace(strings.ToLower(h))
	return strings.Join(strings.Fields(h), " ")
}

// RegexDetector matches each header against a fixed pattern per role. For
// each role the first matching column wins and a column is never assigned
// to two roles.
type RegexDetector struct {
	Patterns map[Role]*regexp.Regexp
}

// NewRegexDetector returns a detector using the built-in synonym patterns.
func NewRegexDetector() *RegexDetector {
	return &RegexDetector{Patterns: defaultPatterns}
}

func (d *RegexDetector) Detect(headers []string, schema Schema) (Mapping, bool) {
	patterns := d.Patterns
	if patterns == nil {
		patterns = defaultPatterns
	}

	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = NormalizeHeader(h)
	}

	mapping := Mapping{}
	used := make(map[int]bool, len(headers))
	for _, role := range schema.roles() {
		re, ok := patterns[role]
		if !ok {
			continue
		}
		for i, h := range normalized {
			if h == "" || used[i] {
				continue
			}
			if re.MatchString(h) {
				mapping[role] = i
				used[i] = true
				break
			}
		}
	}

	for _, role := range schema.Required {
		if !mapping.Has(role) {
			return nil, false
		}
	}
	return mapping, true
}

// ScanHeaderRow looks at up to window leading rows and returns the index and
// mapping of the best header candidate: the row satisfying the required roles
// with the most optional roles matched, earliest row on ties.
func ScanHeaderRow(rows [][]string, d Detector, schema Schema, window int) (int, Mapping, error) {
	if window <= 0 {
		window = DefaultScanWindow
	}
	if window > len(rows) {
		window = len(rows)
	}

	bestRow, bestScore := -1, -1
	var best Mapping
	for i := 0; i < window; i++ {
		if isBlank(rows[i]) {
			continue
		}
		mapping, ok := d.Detect(rows[i], schema)
		if !ok {
			continue
		}
		if score := mapping.Score(schema); score > bestScore {
			bestRow, bestScore, best = i, score, mapping
		}
	}

	if bestRow < 0 {
		return -1, nil, headerError(rows[:window], schema)
	}
	return bestRow, best, nil
}

func headerError(rows [][]string, schema Schema) error {
	required := make([]string, len(schema.Required))
	for i, r := range schema.Required {
		required[i] = string(r)
	}

	var seen []string
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		for _, cell := range row {
			if c := strings.TrimSpace(cell); c != "" {
				seen = append(seen, fmt.Sprintf("%q", c))
			}
		}
		break
	}

	msg := fmt.Sprintf("Could not find required columns (%s)", strings.Join(required, ", "))
	if len(seen) == 0 {
		msg += ". No header values found"
	} else {
		msg += ". Headers found: " + strings.Join(seen, ", ")
	}
	return apperrors.New(apperrors.CodeNoHeader, msg)
}

// IsBlank reports whether every cell of row is empty after trimming.
func IsBlank(row []string) bool {
	return isBlank(row)
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
