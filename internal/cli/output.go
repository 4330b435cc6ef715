package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/chravel/chravel-import/internal/model"
	"github.com/chravel/chravel-import/internal/pipeline"
)

// Output formats for import results
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// defaultFormat is table on a terminal and JSON when piped
func defaultFormat(f *os.File) string {
	if term.IsTerminal(int(f.Fd())) {
		return FormatTable
	}
	return FormatJSON
}

func checkFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

// Render writes out in the given format
func Render(w io.Writer, out *pipeline.Outcome, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		_, err := io.WriteString(w, renderTable(lipgloss.NewRenderer(w), out))
		return err
	}
	return checkFormat(format)
}

func renderTable(r *lipgloss.Renderer, out *pipeline.Outcome) string {
	title := r.NewStyle().Bold(true)
	good := r.NewStyle().Foreground(lipgloss.Color("10"))
	bad := r.NewStyle().Foreground(lipgloss.Color("9"))
	dim := r.NewStyle().Faint(true)

	var headers []string
	var rows [][]string
	var format model.SourceFormat
	var confidence []float64

	switch res := out.Result.(type) {
	case model.CalendarResult:
		format, confidence = res.SourceFormat, res.Confidence
		headers = []string{"#", "Title", "Start", "End", "Location"}
		for i, ev := range res.Events {
			rows = append(rows, []string{fmt.Sprint(i + 1), ev.Title, eventTime(ev.StartTime.Format, ev.IsAllDay), eventTime(ev.EndTime.Format, ev.IsAllDay), ev.Location})
		}
	case model.AgendaResult:
		format, confidence = res.SourceFormat, res.Confidence
		headers = []string{"#", "Title", "Date", "Time", "Location", "Speakers"}
		for i, s := range res.Sessions {
			rows = append(rows, []string{fmt.Sprint(i + 1), s.Title, s.SessionDate, timeRange(s.StartTime, s.EndTime), s.Location, strings.Join(s.Speakers, ", ")})
		}
	case model.LineupResult:
		format = res.SourceFormat
		headers = []string{"#", "Name"}
		for i, name := range res.Names {
			rows = append(rows, []string{fmt.Sprint(i + 1), name})
		}
	}

	if len(confidence) == len(rows) && len(rows) > 0 {
		headers = append(headers, "Conf")
		for i := range rows {
			rows[i] = append(rows[i], fmt.Sprintf("%.2f", confidence[i]))
		}
	}

	var sb strings.Builder
	status := good.Render("valid")
	if !out.Result.Valid() {
		status = bad.Render("invalid")
	}
	sb.WriteString(title.Render(heading(out.Kind)))
	sb.WriteString(dim.Render(fmt.Sprintf("  format=%s items=%d ", orDash(string(format)), out.Result.ItemCount())))
	sb.WriteString(status)
	sb.WriteString("\n")

	if len(rows) > 0 {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(dim).
			Headers(headers...).
			Rows(rows...)
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}

	for _, p := range out.Result.Problems() {
		sb.WriteString(bad.Render("  ! " + p))
		sb.WriteString("\n")
	}

	if out.Saved != nil {
		sb.WriteString(good.Render(fmt.Sprintf("Saved %d", out.Saved.Saved)))
		if n := len(out.Saved.Duplicates); n > 0 {
			sb.WriteString(dim.Render(fmt.Sprintf(", skipped %d duplicate(s)", n)))
		}
		sb.WriteString("\n")
	}
	if out.ImportID != "" {
		sb.WriteString(dim.Render("Import " + out.ImportID))
		sb.WriteString("\n")
	}
	return sb.String()
}

func heading(kind model.Kind) string {
	k := string(kind)
	if k == "" {
		return "Import"
	}
	return strings.ToUpper(k[:1]) + k[1:] + " import"
}

func eventTime(format func(string) string, allDay bool) string {
	if allDay {
		return format("2006-01-02")
	}
	return format("2006-01-02 15:04")
}

func timeRange(start, end string) string {
	switch {
	case start == "" && end == "":
		return ""
	case end == "":
		return start
	}
	return start + "-" + end
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
