// Package batch imports many files of one kind concurrently.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chravel/chravel-import/internal/importer"
	"github.com/chravel/chravel-import/internal/model"
	"github.com/chravel/chravel-import/internal/pipeline"
)

// Importer runs a single import
type Importer interface {
	Import(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

type Processor struct {
	importer Importer
	config   Config
	logger   *zap.Logger
}

type Config struct {
	MaxConcurrency int
	Timeout        time.Duration
	Retries        int
	TripID         string
	Commit         bool
}

// OutputItem is the outcome of one file
type OutputItem struct {
	Path       string        `json:"path"`
	Success    bool          `json:"success"`
	Format     string        `json:"format,omitempty"`
	Items      int           `json:"items"`
	Saved      int           `json:"saved,omitempty"`
	Duplicates int           `json:"duplicates,omitempty"`
	Problems   []string      `json:"problems,omitempty"`
	Error      string        `json:"error,omitempty"`
	ImportID   string        `json:"import_id,omitempty"`
	Duration   time.Duration `json:"duration"`
}

type Result struct {
	Kind      model.Kind    `json:"kind"`
	Total     int           `json:"total"`
	Success   int           `json:"success"`
	Failed    int           `json:"failed"`
	Items     []OutputItem  `json:"items"`
	Duration  time.Duration `json:"duration"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 3,
		Timeout:        2 * time.Minute,
		Retries:        0,
	}
}

func NewProcessor(im Importer, cfg Config, logger *zap.Logger) *Processor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		importer: im,
		config:   cfg,
		logger:   logger.Named("batch"),
	}
}

// Collect expands paths into the files to import. Directories contribute
// their regular files, non-recursively. Hidden files and inbox result files
// are skipped.
func Collect(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".result.json") {
				continue
			}
			files = append(files, filepath.Join(p, name))
		}
	}
	return files, nil
}

// Process imports every file under kind. Items keep the order of files.
func (p *Processor) Process(ctx context.Context, kind model.Kind, files []string) *Result {
	result := &Result{
		Kind:      kind,
		Total:     len(files),
		StartTime: time.Now(),
		Items:     make([]OutputItem, len(files)),
	}

	jobs := make(chan int, len(files))
	for i := range files {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < p.config.MaxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, kind, files, jobs, result.Items)
		}()
	}
	wg.Wait()

	for _, item := range result.Items {
		if item.Success {
			result.Success++
		} else {
			result.Failed++
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	p.logger.Info("Batch finished",
		zap.String("kind", string(kind)),
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration),
	)
	return result
}

// worker writes only to the slots of the indexes it receives
func (p *Processor) worker(ctx context.Context, kind model.Kind, files []string, jobs <-chan int, out []OutputItem) {
	for i := range jobs {
		out[i] = p.processItem(ctx, kind, files[i])
	}
}

func (p *Processor) processItem(ctx context.Context, kind model.Kind, path string) OutputItem {
	output := OutputItem{Path: path}
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		output.Error = err.Error()
		output.Duration = time.Since(start)
		return output
	}

	itemCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	name := filepath.Base(path)
	out, err := p.importer.Import(itemCtx, pipeline.Request{
		Kind: kind,
		File: &importer.File{
			Name:        name,
			ContentType: mime.TypeByExtension(filepath.Ext(name)),
			Data:        data,
		},
		TripID:  p.config.TripID,
		Commit:  p.config.Commit,
		Retries: p.config.Retries,
	})
	output.Duration = time.Since(start)
	if err != nil {
		output.Error = err.Error()
		p.logger.Warn("Batch item failed", zap.String("path", path), zap.Error(err))
		return output
	}

	output.Success = out.Result.Valid()
	output.Items = out.Result.ItemCount()
	output.Problems = out.Result.Problems()
	output.Format = formatOf(out.Result)
	output.ImportID = out.ImportID
	if out.Saved != nil {
		output.Saved = out.Saved.Saved
		output.Duplicates = len(out.Saved.Duplicates)
	}
	return output
}

func formatOf(r importer.Result) string {
	switch v := r.(type) {
	case model.CalendarResult:
		return string(v.SourceFormat)
	case model.AgendaResult:
		return string(v.SourceFormat)
	case model.LineupResult:
		return string(v.SourceFormat)
	}
	return ""
}

// Failures returns the unsuccessful items sorted by path
func (r *Result) Failures() []OutputItem {
	var failed []OutputItem
	for _, item := range r.Items {
		if !item.Success {
			failed = append(failed, item)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].Path < failed[j].Path })
	return failed
}

// Save writes the result to path as JSON, or as a plain text report when
// path does not end in .json.
func (r *Result) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		encoder := json.NewEncoder(file)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)
	}

	for _, item := range r.Items {
		fmt.Fprintf(file, "=== %s ===\n", item.Path)
		fmt.Fprintf(file, "Success: %v | Format: %s | Items: %d", item.Success, item.Format, item.Items)
		if item.Saved > 0 || item.Duplicates > 0 {
			fmt.Fprintf(file, " | Saved: %d | Duplicates: %d", item.Saved, item.Duplicates)
		}
		fmt.Fprintln(file)
		if item.Error != "" {
			fmt.Fprintf(file, "Error: %s\n", item.Error)
		}
		for _, pr := range item.Problems {
			fmt.Fprintf(file, "  - %s\n", pr)
		}
		fmt.Fprintf(file, "Time: %v\n\n", item.Duration)
	}
	return nil
}

func (r *Result) Summary() string {
	var sb strings.Builder
	sb.WriteString("=== Batch Import Summary ===\n")
	sb.WriteString(fmt.Sprintf("Kind:      %s\n", r.Kind))
	sb.WriteString(fmt.Sprintf("Total:     %d\n", r.Total))
	sb.WriteString(fmt.Sprintf("Success:   %d\n", r.Success))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", r.Failed))
	sb.WriteString(fmt.Sprintf("Duration:  %v\n", r.Duration))
	return sb.String()
}

func (r *Result) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
