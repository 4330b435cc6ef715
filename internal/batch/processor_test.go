package batch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chravel/chravel-import/internal/importer"
	"github.com/chravel/chravel-import/internal/importer/datetime"
	"github.com/chravel/chravel-import/internal/metrics"
	"github.com/chravel/chravel-import/internal/model"
	"github.com/chravel/chravel-import/internal/pipeline"
)

type fakeImporter struct {
	calls   atomic.Int32
	respond func(req pipeline.Request) (*pipeline.Outcome, error)
}

func (f *fakeImporter) Import(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
	f.calls.Add(1)
	return f.respond(req)
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxConcurrency != 3 {
		t.Errorf("Expected MaxConcurrency 3, got %d", cfg.MaxConcurrency)
	}
	if cfg.Timeout != 2*time.Minute {
		t.Errorf("Expected Timeout 2m, got %v", cfg.Timeout)
	}
	if cfg.Retries != 0 {
		t.Errorf("Expected Retries 0, got %d", cfg.Retries)
	}
}

func TestNewProcessor_Defaults(t *testing.T) {
	p := NewProcessor(&fakeImporter{}, Config{}, nil)

	if p.config.MaxConcurrency != 1 {
		t.Errorf("Expected MaxConcurrency 1, got %d", p.config.MaxConcurrency)
	}
	if p.config.Timeout <= 0 {
		t.Error("Timeout should be positive")
	}
	if p.logger == nil {
		t.Error("logger should default to a no-op logger")
	}
}

func TestCollect(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.csv":             "x",
		"b.ics":             "y",
		".hidden":           "z",
		"a.csv.result.json": "{}",
	})
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	single := filepath.Join(t.TempDir(), "single.txt")
	if err := os.WriteFile(single, []byte("s"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := Collect([]string{dir, single})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := []string{filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.ics"), single}
	if len(files) != len(want) {
		t.Fatalf("Expected %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestCollect_Missing(t *testing.T) {
	if _, err := Collect([]string{filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Error("Expected error for a missing path")
	}
}

func TestProcess_OrderAndCounts(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"1.csv": "ok",
		"2.csv": "bad",
		"3.csv": "ok",
		"4.csv": "boom",
	})
	files, err := Collect([]string{dir})
	if err != nil {
		t.Fatal(err)
	}

	fake := &fakeImporter{respond: func(req pipeline.Request) (*pipeline.Outcome, error) {
		switch string(req.File.Data) {
		case "ok":
			return &pipeline.Outcome{Kind: req.Kind, Result: model.LineupResult{
				Names: []string{"A", "B"}, IsValid: true, SourceFormat: model.FormatCSV,
			}}, nil
		case "bad":
			return &pipeline.Outcome{Kind: req.Kind, Result: model.InvalidLineup(model.FormatCSV, "No names found")}, nil
		}
		return nil, errors.New("store unavailable")
	}}

	p := NewProcessor(fake, Config{MaxConcurrency: 3}, nil)
	result := p.Process(context.Background(), model.KindLineup, files)

	if fake.calls.Load() != 4 {
		t.Errorf("Expected 4 import calls, got %d", fake.calls.Load())
	}
	if result.Total != 4 || result.Success != 2 || result.Failed != 2 {
		t.Errorf("Unexpected counts: total=%d success=%d failed=%d", result.Total, result.Success, result.Failed)
	}
	for i, item := range result.Items {
		if item.Path != files[i] {
			t.Errorf("Items[%d].Path = %s, want %s", i, item.Path, files[i])
		}
	}
	if result.Items[0].Items != 2 || result.Items[0].Format != "csv" {
		t.Errorf("Unexpected first item: %+v", result.Items[0])
	}
	if len(result.Items[1].Problems) != 1 || result.Items[1].Problems[0] != "No names found" {
		t.Errorf("Expected problems on second item, got %+v", result.Items[1])
	}
	if result.Items[3].Error != "store unavailable" {
		t.Errorf("Expected error on fourth item, got %q", result.Items[3].Error)
	}

	failed := result.Failures()
	if len(failed) != 2 {
		t.Fatalf("Expected 2 failures, got %d", len(failed))
	}
}

func TestProcess_PassesRequestSettings(t *testing.T) {
	dir := writeFiles(t, map[string]string{"agenda.pdf": "x"})

	var got pipeline.Request
	fake := &fakeImporter{respond: func(req pipeline.Request) (*pipeline.Outcome, error) {
		got = req
		return &pipeline.Outcome{Kind: req.Kind, Result: model.AgendaResult{IsValid: true}}, nil
	}}

	p := NewProcessor(fake, Config{TripID: "trip-9", Commit: true, Retries: 2}, nil)
	p.Process(context.Background(), model.KindAgenda, []string{filepath.Join(dir, "agenda.pdf")})

	if got.TripID != "trip-9" || !got.Commit || got.Retries != 2 {
		t.Errorf("Unexpected request: %+v", got)
	}
	if got.File == nil || got.File.Name != "agenda.pdf" {
		t.Fatalf("Expected file agenda.pdf, got %+v", got.File)
	}
	if got.File.ContentType != "application/pdf" {
		t.Errorf("Unexpected content type %q", got.File.ContentType)
	}
}

func TestProcess_UnreadableFile(t *testing.T) {
	fake := &fakeImporter{respond: func(req pipeline.Request) (*pipeline.Outcome, error) {
		t.Fatal("importer must not be called")
		return nil, nil
	}}

	p := NewProcessor(fake, DefaultConfig(), nil)
	result := p.Process(context.Background(), model.KindAgenda, []string{filepath.Join(t.TempDir(), "gone.pdf")})

	if result.Failed != 1 || result.Items[0].Error == "" {
		t.Errorf("Expected a read failure, got %+v", result.Items[0])
	}
}

func TestProcess_WithPipeline(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.csv": "Date,Event\n2024-03-01,Kickoff\n",
		"b.csv": "nothing useful here\n",
	})
	files, err := Collect([]string{dir})
	if err != nil {
		t.Fatal(err)
	}

	m := metrics.New()
	im := importer.New(importer.Options{Normalizer: datetime.New(time.UTC), Metrics: m})
	p := NewProcessor(pipeline.New(im, nil, m, nil), Config{MaxConcurrency: 2}, nil)

	result := p.Process(context.Background(), model.KindCalendar, files)
	if result.Success != 1 || result.Failed != 1 {
		t.Errorf("Expected one success and one failure, got %s", result.Summary())
	}
	if result.Items[0].Items != 1 {
		t.Errorf("Expected one event from a.csv, got %d", result.Items[0].Items)
	}
}

func TestResult_SaveAndSummary(t *testing.T) {
	result := &Result{
		Kind:    model.KindCalendar,
		Total:   2,
		Success: 1,
		Failed:  1,
		Items: []OutputItem{
			{Path: "a.csv", Success: true, Format: "csv", Items: 3, Saved: 2, Duplicates: 1},
			{Path: "b.pdf", Error: "boom", Problems: []string{"AI parsing failed: timeout"}},
		},
	}

	summary := result.Summary()
	if !strings.Contains(summary, "Total:     2") || !strings.Contains(summary, "Failed:    1") {
		t.Errorf("Unexpected summary:\n%s", summary)
	}

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "out.json")
	if err := result.Save(jsonPath); err != nil {
		t.Fatalf("Save json: %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded.Total != 2 || len(decoded.Items) != 2 {
		t.Errorf("Unexpected decoded result: %+v", decoded)
	}

	txtPath := filepath.Join(dir, "out.txt")
	if err := result.Save(txtPath); err != nil {
		t.Fatalf("Save text: %v", err)
	}
	text, err := os.ReadFile(txtPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"=== a.csv ===", "Saved: 2 | Duplicates: 1", "Error: boom", "  - AI parsing failed: timeout"} {
		if !strings.Contains(string(text), want) {
			t.Errorf("text report missing %q:\n%s", want, text)
		}
	}

	s, err := result.ToJSON()
	if err != nil || !strings.Contains(s, `"kind": "calendar"`) {
		t.Errorf("ToJSON = %q, %v", s, err)
	}
}
