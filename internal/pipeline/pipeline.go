// Package pipeline runs an import end to end: extraction with optional
// retries, the audit log entry and, when asked, saving the items to a trip.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/chravel/chravel-import/internal/errors"
	"github.com/chravel/chravel-import/internal/importer"
	"github.com/chravel/chravel-import/internal/importer/dedupe"
	"github.com/chravel/chravel-import/internal/importer/ics"
	"github.com/chravel/chravel-import/internal/metrics"
	"github.com/chravel/chravel-import/internal/model"
	"github.com/chravel/chravel-import/internal/retry"
	"github.com/chravel/chravel-import/internal/store"
)

// ErrNoStore is returned for operations that need persistence when the
// pipeline runs without a store.
var ErrNoStore = errors.New("no store configured")

// Request describes one import. Exactly one of File, URL and Text is used,
// in that order of preference.
type Request struct {
	Kind    model.Kind
	File    *importer.File
	URL     string
	Text    string
	TripID  string
	Commit  bool
	Retries int
}

// Outcome is what an import produced
type Outcome struct {
	Kind     model.Kind        `json:"kind" yaml:"kind"`
	Result   importer.Result   `json:"result" yaml:"result"`
	Saved    *store.SaveResult `json:"saved,omitempty" yaml:"saved,omitempty"`
	ImportID string            `json:"importId,omitempty" yaml:"import_id,omitempty"`
}

// Pipeline ties the importer to the store
type Pipeline struct {
	importer *importer.Importer
	store    *store.Store
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates a pipeline. st may be nil for parse-only use.
func New(im *importer.Importer, st *store.Store, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Pipeline{
		importer: im,
		store:    st,
		metrics:  m,
		logger:   logger.Named("pipeline"),
	}
}

// Importer returns the underlying importer
func (p *Pipeline) Importer() *importer.Importer {
	return p.importer
}

// HasStore reports whether imports can be committed
func (p *Pipeline) HasStore() bool {
	return p.store != nil
}

// Import runs req. The returned error covers bad requests and storage
// failures only; extraction problems are reported inside the result.
func (p *Pipeline) Import(ctx context.Context, req Request) (*Outcome, error) {
	if _, ok := model.ParseKind(string(req.Kind)); !ok {
		return nil, apperrors.New(apperrors.ErrBadRequest.Code, fmt.Sprintf("unknown import kind %q", req.Kind))
	}
	if req.Commit && p.store == nil {
		return nil, ErrNoStore
	}
	if req.Commit && strings.TrimSpace(req.TripID) == "" {
		return nil, apperrors.New(apperrors.ErrBadRequest.Code, "a trip is required to commit an import")
	}

	run, source, err := p.runner(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := retry.Do(ctx, retry.Policy{Attempts: req.Retries + 1, Logger: p.logger}, run)
	elapsed := time.Since(start)

	out := &Outcome{Kind: req.Kind, Result: result}
	if p.store == nil {
		return out, nil
	}

	rec := store.NewImportRecord(req.TripID, req.Kind, source, formatOf(result), result.Valid(), result.ItemCount(), result.Problems(), elapsed)
	if req.Commit && result.Valid() {
		saved, err := p.commit(ctx, req.TripID, result)
		if err != nil {
			return out, err
		}
		out.Saved = &saved
		rec.Saved = saved.Saved
		rec.Duplicates = len(saved.Duplicates)
		p.metrics.RecordDuplicates(string(req.Kind), len(saved.Duplicates))
	}

	if err := p.store.RecordImport(ctx, rec); err != nil {
		p.logger.Warn("Import log entry not written", zap.Error(err))
	} else {
		out.ImportID = rec.ID
	}
	return out, nil
}

func (p *Pipeline) runner(req Request) (func(context.Context) importer.Result, string, error) {
	im := p.importer
	switch {
	case req.File != nil:
		f := *req.File
		return func(ctx context.Context) importer.Result {
			r, _ := im.ParseFile(ctx, req.Kind, f)
			return r
		}, f.Name, nil
	case strings.TrimSpace(req.URL) != "":
		return func(ctx context.Context) importer.Result {
			r, _ := im.ParseURL(ctx, req.Kind, req.URL)
			return r
		}, req.URL, nil
	case strings.TrimSpace(req.Text) != "":
		return func(ctx context.Context) importer.Result {
			r, _ := im.ParseText(ctx, req.Kind, req.Text)
			return r
		}, "text", nil
	}
	return nil, "", apperrors.New(apperrors.ErrBadRequest.Code, "one of file, url or text is required")
}

func (p *Pipeline) commit(ctx context.Context, tripID string, result importer.Result) (store.SaveResult, error) {
	switch r := result.(type) {
	case model.CalendarResult:
		return p.store.SaveEvents(ctx, tripID, r.Events, r.SourceFormat)
	case model.AgendaResult:
		return p.store.SaveSessions(ctx, tripID, r.Sessions, r.SourceFormat)
	case model.LineupResult:
		return p.store.SaveLineup(ctx, tripID, r.Names)
	}
	return store.SaveResult{}, fmt.Errorf("cannot commit %T", result)
}

// DuplicateEvents returns the indices of events already stored for tripID
func (p *Pipeline) DuplicateEvents(ctx context.Context, tripID string, events []model.ParsedEvent) ([]int, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	existing, err := p.store.ExistingEvents(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return dedupe.FindDuplicateEvents(events, existing).Sorted(), nil
}

// DuplicateSessions returns the indices of sessions already stored for tripID
func (p *Pipeline) DuplicateSessions(ctx context.Context, tripID string, sessions []model.ParsedAgendaSession) ([]int, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	existing, err := p.store.ExistingSessions(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return dedupe.FindDuplicateAgendaSessions(sessions, existing).Sorted(), nil
}

// ExportCalendar renders a trip's stored events as an ICS document
func (p *Pipeline) ExportCalendar(ctx context.Context, tripID string) ([]byte, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	events, err := p.store.Events(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return ics.Export(events, ics.ExportOptions{}), nil
}

// History lists recent imports
func (p *Pipeline) History(ctx context.Context, tripID string, limit int) ([]store.ImportRecord, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	return p.store.ListImports(ctx, tripID, limit)
}

func formatOf(r importer.Result) model.SourceFormat {
	switch v := r.(type) {
	case model.CalendarResult:
		return v.SourceFormat
	case model.AgendaResult:
		return v.SourceFormat
	case model.LineupResult:
		return v.SourceFormat
	}
	return ""
}
