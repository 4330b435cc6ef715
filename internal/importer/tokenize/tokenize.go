// Package tokenize contains the low-level line handling shared by the ICS and
// CSV extractors: ICS unfolding and quoted CSV field splitting.
package tokenize

import "strings"

// NormalizeNewlines converts CRLF and lone CR line endings to LF.
func NormalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// UnfoldICS splits ICS text into logical content lines. A physical line that
// starts with a space or tab continues the previous line; the single leading
// whitespace character is removed before joining.
func UnfoldICS(text string) []string {
	physical := strings.Split(NormalizeNewlines(text), "\n")
	lines := make([]string, 0, len(physical))

	for _, line := range physical {
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// SplitLines normalizes newlines, strips a UTF-8 BOM and splits CSV text into
// physical lines. A trailing empty line produced by a final newline is dropped.
func SplitLines(text string) []string {
	text = strings.TrimPrefix(text, "\ufeff")
	lines := strings.Split(NormalizeNewlines(text), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// SplitCSVLine splits one CSV line into fields with a single-pass scanner.
// Double-quoted fields may contain commas, and "" inside a quoted field is an
// escaped quote. Quoted fields spanning several lines are not supported.
func SplitCSVLine(line string) []string {
	fields := make([]string, 0, 8)
	var sb strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"' && inQuotes && i+1 < len(line) && line[i+1] == '"':
			sb.WriteByte('"')
			i++
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			fields = append(fields, sb.String())
			sb.Reset()
		default:
			sb.WriteByte(ch)
		}
	}
	fields = append(fields, sb.String())
	return fields
}

// ReadCSV tokenizes a whole CSV document into trimmed rows.
func ReadCSV(text string) [][]string {
	lines := SplitLines(text)
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		fields := SplitCSVLine(line)
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		rows = append(rows, fields)
	}
	return rows
}
