// Package importer routes calendar, agenda and lineup imports to the right
// extractor and wraps every call in the result envelope callers consume.
// Expected failures never surface as Go errors: they come back as results
// with IsValid false and a readable message in Errors.
package importer

import (
	"context"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	apperrors "github.com/chravel/chravel-import/internal/errors"
	"github.com/chravel/chravel-import/internal/importer/aiextract"
	"github.com/chravel/chravel-import/internal/importer/columns"
	"github.com/chravel/chravel-import/internal/importer/datetime"
	"github.com/chravel/chravel-import/internal/importer/dedupe"
	"github.com/chravel/chravel-import/internal/importer/ics"
	"github.com/chravel/chravel-import/internal/importer/sheet"
	"github.com/chravel/chravel-import/internal/metrics"
	"github.com/chravel/chravel-import/internal/model"
)

// UnsupportedFileMessage is returned for calendar files of unknown type.
const UnsupportedFileMessage = "Unsupported file type. Please upload an ICS, CSV, Excel, PDF or image file."

// Options configures an Importer. Every field is optional.
type Options struct {
	Normalizer *datetime.Normalizer
	Detector   columns.Detector
	ScanWindow int
	Storage    aiextract.ObjectStorage
	Service    aiextract.Service
	Timeout    time.Duration
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Importer is the entry point for every import path.
type Importer struct {
	ics     *ics.Parser
	sheet   *sheet.Extractor
	ai      *aiextract.Extractor
	mapper  *Mapper
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates an importer.
func New(opts Options) *Importer {
	if opts.Normalizer == nil {
		opts.Normalizer = datetime.New(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var storage aiextract.ObjectStorage
	if opts.Storage != nil {
		storage = &countingStorage{ObjectStorage: opts.Storage, metrics: opts.Metrics}
	}

	return &Importer{
		ics:     ics.NewParser(opts.Normalizer).WithClock(opts.Now),
		sheet:   sheet.NewExtractor(opts.Normalizer, opts.Detector).WithClock(opts.Now).WithScanWindow(opts.ScanWindow),
		ai:      aiextract.NewExtractor(storage, opts.Service, opts.Timeout, opts.Logger).WithClock(opts.Now),
		mapper:  NewMapper(opts.Normalizer, opts.Now),
		logger:  opts.Logger.Named("importer"),
		metrics: opts.Metrics,
	}
}

// call tracks one public import call for logging and metrics.
type call struct {
	im       *Importer
	kind     model.Kind
	source   string
	start    time.Time
	panicked bool
}

func (im *Importer) begin(kind model.Kind, source string) *call {
	im.metrics.ImportStarted()
	return &call{im: im, kind: kind, source: source, start: time.Now()}
}

func (c *call) end(format model.SourceFormat, items int, errs []string, valid bool) {
	c.im.metrics.ImportFinished()

	outcome := metrics.OutcomeInvalid
	switch {
	case c.panicked:
		outcome = metrics.OutcomePanic
	case valid:
		outcome = metrics.OutcomeValid
	}
	elapsed := time.Since(c.start)
	c.im.metrics.RecordImport(string(c.kind), string(format), outcome, items, len(errs), elapsed)

	fields := []zap.Field{
		zap.String("kind", string(c.kind)),
		zap.String("source", c.source),
		zap.String("format", string(format)),
		zap.Int("items", items),
		zap.Int("errors", len(errs)),
		zap.Bool("valid", valid),
		zap.Duration("elapsed", elapsed),
	}
	switch {
	case c.panicked:
		c.im.logger.Error("Import panicked", append(fields, zap.Strings("messages", errs))...)
	case !valid:
		c.im.logger.Warn("Import produced no items", append(fields, zap.Strings("messages", errs))...)
	default:
		c.im.logger.Info("Import finished", fields...)
	}
}

// panicMessage renders a recovered value the way results show errors.
func (c *call) panicMessage(r any) string {
	c.panicked = true
	switch v := r.(type) {
	case error:
		return apperrors.UserMessage(v)
	case string:
		if v != "" {
			return v
		}
	}
	return "Unknown error"
}

// Calendar

// ParseCalendarFile imports calendar events from an uploaded file. Files of
// unknown type are rejected without any network call.
func (im *Importer) ParseCalendarFile(ctx context.Context, f File) (result model.CalendarResult) {
	c := im.begin(model.KindCalendar, f.Name)
	format, known := DetectFormat(f.Name, f.ContentType)
	defer func() {
		if r := recover(); r != nil {
			result = model.InvalidCalendar(format, c.panicMessage(r))
		}
		c.end(result.SourceFormat, len(result.Events), result.Errors, result.IsValid)
	}()

	if !known {
		im.logger.Debug("Rejected calendar file", zap.String("name", f.Name), zap.String("ext", extOf(f.Name)))
		return model.InvalidCalendar("", UnsupportedFileMessage)
	}

	switch format {
	case model.FormatICS:
		return calendarFromICS(im.ics.Parse(string(f.Data)))
	case model.FormatCSV:
		return im.sheet.Events(sheet.ReadCSV(f.Data), format)
	case model.FormatExcel:
		rows, err := sheet.ReadExcel(f.Data, filepath.Ext(f.Name))
		if err != nil {
			return model.InvalidCalendar(format, apperrors.UserMessage(err))
		}
		return im.sheet.Events(rows, format)
	case model.FormatText:
		return im.calendarText(ctx, string(f.Data), format)
	default:
		resp, err := im.ai.ExtractFile(ctx, model.KindCalendar, f.Name, mimeTypeOf(f, format), f.Data)
		if err != nil {
			return model.InvalidCalendar(format, apperrors.UserMessage(err))
		}
		return im.mapper.Events(resp, format)
	}
}

// ParseICSContent parses ICS text. It performs no I/O.
func (im *Importer) ParseICSContent(text string) (result model.ICSResult) {
	c := im.begin(model.KindCalendar, "ics-content")
	defer func() {
		if r := recover(); r != nil {
			result = model.ICSResult{Events: []model.ParsedEvent{}, Errors: []string{c.panicMessage(r)}}
		}
		c.end(model.FormatICS, len(result.Events), result.Errors, result.IsValid)
	}()
	return im.ics.Parse(text)
}

// ParseCalendarURL scans a web page for events.
func (im *Importer) ParseCalendarURL(ctx context.Context, pageURL string) (result model.CalendarResult) {
	c := im.begin(model.KindCalendar, pageURL)
	defer func() {
		if r := recover(); r != nil {
			result = model.InvalidCalendar(model.FormatURL, c.panicMessage(r))
		}
		c.end(result.SourceFormat, len(result.Events), result.Errors, result.IsValid)
	}()

	resp, err := im.ai.ExtractURL(ctx, model.KindCalendar, pageURL)
	if err != nil {
		return model.InvalidCalendar(model.FormatURL, apperrors.UserMessage(err))
	}
	return im.mapper.Events(resp, model.FormatURL)
}

// ParseTextWithAI extracts events from freeform text.
func (im *Importer) ParseTextWithAI(ctx context.Context, text string) (result model.CalendarResult) {
	c := im.begin(model.KindCalendar, "text")
	defer func() {
		if r := recover(); r != nil {
			result = model.InvalidCalendar(model.FormatText, c.panicMessage(r))
		}
		c.end(result.SourceFormat, len(result.Events), result.Errors, result.IsValid)
	}()
	return im.calendarText(ctx, text, model.FormatText)
}

func (im *Importer) calendarText(ctx context.Context, text string, format model.SourceFormat) model.CalendarResult {
	resp, err := im.ai.ExtractText(ctx, model.KindCalendar, text)
	if err != nil {
		return model.InvalidCalendar(format, apperrors.UserMessage(err))
	}
	return im.mapper.Events(resp, format)
}

func calendarFromICS(res model.ICSResult) model.CalendarResult {
	return model.CalendarResult{
		Events:       res.Events,
		Errors:       res.Errors,
		IsValid:      res.IsValid,
		SourceFormat: model.FormatICS,
	}
}

// Agenda

// ParseAgendaFile imports agenda sessions from an uploaded file. Files of
// unknown type go to the extraction service, as text when they are valid
// UTF-8 and as a document otherwise.
func (im *Importer) ParseAgendaFile(ctx context.Context, f File) (result model.AgendaResult) {
	c := im.begin(model.KindAgenda, f.Name)
	format, known := DetectFormat(f.Name, f.ContentType)
	if !known {
		format = fallbackFormat(f.Data)
	}
	defer func() {
		if r := recover(); r != nil {
			result = model.InvalidAgenda(format, c.panicMessage(r))
		}
		c.end(result.SourceFormat, len(result.Sessions), result.Errors, result.IsValid)
	}()

	switch format {
	case model.FormatICS:
		return im.mapper.SessionsFromICS(im.ics.Parse(string(f.Data)))
	case model.FormatCSV:
		return im.sheet.Sessions(sheet.ReadCSV(f.Data), format)
	case model.FormatExcel:
		rows, err := sheet.ReadExcel(f.Data, filepath.Ext(f.Name))
		if err != nil {
			return model.InvalidAgenda(format, apperrors.UserMessage(err))
		}
		return im.sheet.Sessions(rows, format)
	case model.FormatText:
		return im.agendaText(ctx, string(f.Data), format)
	default:
		resp, err := im.ai.ExtractFile(ctx, model.KindAgenda, f.Name, mimeTypeOf(f, format), f.Data)
		if err != nil {
			return model.InvalidAgenda(format, apperrors.UserMessage(err))
		}
		return im.mapper.Sessions(resp, format)
	}
}

// ParseAgendaURL scans a web page for agenda sessions.
func (im *Importer) ParseAgendaURL(ctx context.Context, pageURL string) (result model.AgendaResult) {
	c := im.begin(model.KindAgenda, pageURL)
	defer func() {
		if r := recover(); r != nil {
			result = model.InvalidAgenda(model.FormatURL, c.panicMessage(r))
		}
		c.end(result.SourceFormat, len(result.Sessions), result.Errors, result.IsValid)
	}()

	resp, err := im.ai.ExtractURL(ctx, model.KindAgenda, pageURL)
	if err != nil {
		return model.InvalidAgenda(model.FormatURL, apperrors.UserMessage(err))
	}
	return im.mapper.Sessions(resp, model.FormatURL)
}

// ParseAgendaText extracts agenda sessions from freeform text.
func (im *Importer) ParseAgendaText(ctx context.Context, text string) (result model.AgendaResult) {
	c := im.begin(model.KindAgenda, "text")
	defer func() {
		if r := recover(); r != nil {
			result = model.InvalidAgenda(model.FormatText, c.panicMessage(r))
		}
		c.end(result.SourceFormat, len(result.Sessions), result.Errors, result.IsValid)
	}()
	return im.agendaText(ctx, text, model.FormatText)
}

func (im *Importer) agendaText(ctx context.Context, text string, format model.SourceFormat) model.AgendaResult {
	resp, err := im.ai.ExtractText(ctx, model.KindAgenda, text)
	if err != nil {
		return model.InvalidAgenda(format, apperrors.UserMessage(err))
	}
	return im.mapper.Sessions(resp, format)
}

// Lineup

// ParseLineupFile imports lineup names from an uploaded file, with the same
// fallback as agenda files for unknown types.
func (im *Importer) ParseLineupFile(ctx context.Context, f File) (result model.LineupResult) {
	c := im.begin(model.KindLineup, f.Name)
	format, known := DetectFormat(f.Name, f.ContentType)
	if !known || format == model.FormatICS {
		format = fallbackFormat(f.Data)
	}
	defer func() {
		if r := recover(); r != nil {
			result = model.InvalidLineup(format, c.panicMessage(r))
		}
		c.end(result.SourceFormat, len(result.Names), result.Errors, result.IsValid)
	}()

	switch format {
	case model.FormatCSV:
		return im.sheet.Names(sheet.ReadCSV(f.Data), format)
	case model.FormatExcel:
		rows, err := sheet.ReadExcel(f.Data, filepath.Ext(f.Name))
		if err != nil {
			return model.InvalidLineup(format, apperrors.UserMessage(err))
		}
		return im.sheet.Names(rows, format)
	case model.FormatText:
		return im.lineupText(ctx, string(f.Data), format)
	default:
		resp, err := im.ai.ExtractFile(ctx, model.KindLineup, f.Name, mimeTypeOf(f, format), f.Data)
		if err != nil {
			return model.InvalidLineup(format, apperrors.UserMessage(err))
		}
		return im.mapper.Names(resp, format)
	}
}

// ParseLineupURL scans a web page for performers or speakers.
func (im *Importer) ParseLineupURL(ctx context.Context, pageURL string) (result model.LineupResult) {
	c := im.begin(model.KindLineup, pageURL)
	defer func() {
		if r := recover(); r != nil {
			result = model.InvalidLineup(model.FormatURL, c.panicMessage(r))
		}
		c.end(result.SourceFormat, len(result.Names), result.Errors, result.IsValid)
	}()

	resp, err := im.ai.ExtractURL(ctx, model.KindLineup, pageURL)
	if err != nil {
		return model.InvalidLineup(model.FormatURL, apperrors.UserMessage(err))
	}
	return im.mapper.Names(resp, model.FormatURL)
}

// ParseLineupText extracts lineup names from freeform text.
func (im *Importer) ParseLineupText(ctx context.Context, text string) (result model.LineupResult) {
	c := im.begin(model.KindLineup, "text")
	defer func() {
		if r := recover(); r != nil {
			result = model.InvalidLineup(model.FormatText, c.panicMessage(r))
		}
		c.end(result.SourceFormat, len(result.Names), result.Errors, result.IsValid)
	}()
	return im.lineupText(ctx, text, model.FormatText)
}

func (im *Importer) lineupText(ctx context.Context, text string, format model.SourceFormat) model.LineupResult {
	resp, err := im.ai.ExtractText(ctx, model.KindLineup, text)
	if err != nil {
		return model.InvalidLineup(format, apperrors.UserMessage(err))
	}
	return im.mapper.Names(resp, format)
}

// Duplicates

// FindDuplicateEvents returns the indices of parsed events already present
// in existing.
func FindDuplicateEvents(parsed []model.ParsedEvent, existing []dedupe.ExistingEvent) dedupe.IndexSet {
	return dedupe.FindDuplicateEvents(parsed, existing)
}

// FindDuplicateAgendaSessions returns the indices of parsed sessions
// already present in existing.
func FindDuplicateAgendaSessions(parsed []model.ParsedAgendaSession, existing []dedupe.ExistingSession) dedupe.IndexSet {
	return dedupe.FindDuplicateAgendaSessions(parsed, existing)
}

// fallbackFormat picks text or document extraction for unrecognised files.
func fallbackFormat(data []byte) model.SourceFormat {
	if len(data) > 0 && utf8.Valid(data) {
		return model.FormatText
	}
	return model.FormatPDF
}

func extOf(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// countingStorage records uploads and failed cleanups.
type countingStorage struct {
	aiextract.ObjectStorage
	metrics *metrics.Metrics
}

func (s *countingStorage) Upload(ctx context.Context, path string, data []byte, opts aiextract.UploadOptions) error {
	if err := s.ObjectStorage.Upload(ctx, path, data, opts); err != nil {
		return err
	}
	s.metrics.RecordUpload()
	return nil
}

func (s *countingStorage) Remove(ctx context.Context, paths []string) error {
	err := s.ObjectStorage.Remove(ctx, paths)
	if err != nil {
		s.metrics.RecordCleanupFailure()
	}
	return err
}
