package aiextract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/chravel/chravel-import/internal/errors"
	"github.com/chravel/chravel-import/internal/model"
)

var (
	errNoService = errors.New("no extraction service configured")
	errNoStorage = errors.New("no object storage configured")
)

// Extractor runs the file, URL and text flows against a Service. It never
// retries; callers that want retries wrap the import call.
type Extractor struct {
	storage ObjectStorage
	service Service
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewExtractor creates an extractor. storage may be nil when only URL and
// text imports are used. A zero timeout means 90 seconds.
func NewExtractor(storage ObjectStorage, service Service, timeout time.Duration, logger *zap.Logger) *Extractor {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		storage: storage,
		service: service,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for upload paths.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// UploadPath builds "<kind>-imports/<epoch-ms>-<uuid>.<ext>".
func UploadPath(kind model.Kind, filename string, now time.Time) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s-imports/%d-%s.%s", kind, now.UnixMilli(), uuid.NewString(), ext)
}

// Instruction is the MIME-aware prompt sent with an uploaded file.
func Instruction(kind model.Kind, mimeType string) string {
	what := map[model.Kind]string{
		model.KindCalendar: "calendar events",
		model.KindAgenda:   "agenda sessions",
		model.KindLineup:   "lineup names (performers, speakers or artists)",
	}[kind]

	switch {
	case mimeType == "application/pdf":
		return "Extract " + what + " from this PDF document."
	case strings.HasPrefix(mimeType, "image/"):
		return "Extract " + what + " from this image. Read any printed schedule, poster or screenshot text."
	default:
		return "Extract " + what + " from this document."
	}
}

// ExtractFile uploads data, asks the service to read it and removes the
// upload again. The remove is issued exactly once whatever happens after the
// upload succeeded, and its error is ignored.
func (e *Extractor) ExtractFile(ctx context.Context, kind model.Kind, filename, mimeType string, data []byte) (*Response, error) {
	if e.storage == nil {
		return nil, apperrors.New(apperrors.CodeUpload, "Failed to upload file", errNoStorage)
	}
	if e.service == nil {
		return nil, apperrors.New(apperrors.CodeExtraction, "AI parsing failed", errNoService)
	}

	path := UploadPath(kind, filename, e.now())
	if err := e.storage.Upload(ctx, path, data, UploadOptions{ContentType: mimeType, Upsert: false}); err != nil {
		return nil, apperrors.New(apperrors.CodeUpload, "Failed to upload file", err)
	}
	defer func() {
		// Cleanup must outlive a cancelled import context.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := e.storage.Remove(cleanupCtx, []string{path}); err != nil {
			e.logger.Debug("Temporary upload not removed", zap.String("path", path), zap.Error(err))
		}
	}()

	return e.invoke(ctx, Request{
		FileURL:        e.storage.PublicURL(path),
		FileType:       mimeType,
		MessageText:    Instruction(kind, mimeType),
		ExtractionType: kind,
	})
}

// ExtractURL asks the service to scan a web page.
func (e *Extractor) ExtractURL(ctx context.Context, kind model.Kind, pageURL string) (*Response, error) {
	if e.service == nil {
		return nil, apperrors.New(apperrors.CodeScrape, "Failed to scan website", errNoService)
	}
	resp, err := e.invoke(ctx, Request{URL: strings.TrimSpace(pageURL), ExtractionType: kind})
	if err != nil {
		if apperrors.GetCode(err) == apperrors.CodeInvalidResponse {
			return nil, err
		}
		return nil, apperrors.New(apperrors.CodeScrape, "Failed to scan website", unwrapExtraction(err))
	}
	return resp, nil
}

// ExtractText passes text straight to the service.
func (e *Extractor) ExtractText(ctx context.Context, kind model.Kind, text string) (*Response, error) {
	if e.service == nil {
		return nil, apperrors.New(apperrors.CodeExtraction, "AI parsing failed", errNoService)
	}
	return e.invoke(ctx, Request{MessageText: text, ExtractionType: kind})
}

func (e *Extractor) invoke(ctx context.Context, req Request) (*Response, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, apperrors.New(apperrors.CodeExtraction, "AI parsing failed", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.service.Invoke(ctx, req)
	e.logger.Debug("Extraction service invoked",
		zap.String("type", string(req.ExtractionType)),
		zap.Bool("file", req.FileURL != ""),
		zap.Bool("url", req.URL != ""),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)

	switch {
	case err != nil && apperrors.GetCode(err) == apperrors.CodeInvalidResponse:
		return nil, err
	case err != nil:
		return nil, apperrors.New(apperrors.CodeExtraction, "AI parsing failed", err)
	case resp == nil:
		return nil, apperrors.New(apperrors.CodeInvalidResponse, "AI parsing failed", &ValidationError{Problems: []string{"empty response"}})
	case !resp.OK():
		msg := resp.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, apperrors.New(apperrors.CodeExtraction, "AI parsing failed", fmt.Errorf("%s", msg))
	}
	return resp, nil
}

// unwrapExtraction strips an extraction AppError down to its cause so a
// caller can re-prefix it.
func unwrapExtraction(err error) error {
	var app *apperrors.AppError
	if errors.As(err, &app) && app.Code == apperrors.CodeExtraction && app.Cause != nil {
		return app.Cause
	}
	return err
}
