package aiextract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/chravel/chravel-import/internal/llm"
	"github.com/chravel/chravel-import/internal/model"
	"github.com/chravel/chravel-import/internal/scrape"
	"github.com/chravel/chravel-import/internal/security"
)

// PageFetcher loads a web page for URL requests
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*scrape.Page, error)
}

// LLMService answers extraction requests in-process with an
// OpenAI-compatible chat model.
type LLMService struct {
	completer   llm.Completer
	model       string
	visionModel string
	fetcher     PageFetcher
	logger      *zap.Logger
}

// NewLLMService creates the service. fetcher may be nil, in which case URL
// requests fail.
func NewLLMService(completer llm.Completer, model, visionModel string, fetcher PageFetcher, logger *zap.Logger) *LLMService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if visionModel == "" {
		visionModel = model
	}
	return &LLMService{
		completer:   completer,
		model:       model,
		visionModel: visionModel,
		fetcher:     fetcher,
		logger:      logger,
	}
}

// Invoke dispatches on whichever input the request carries
func (s *LLMService) Invoke(ctx context.Context, req Request) (*Response, error) {
	switch {
	case req.URL != "":
		return s.scan(ctx, req)
	case req.FileURL != "":
		return s.complete(ctx, req.ExtractionType, s.visionModel, llm.Message{
			Role:  "user",
			Parts: []llm.ContentPart{llm.TextPart(req.MessageText), filePart(req.FileURL, req.FileType)},
		})
	default:
		return s.complete(ctx, req.ExtractionType, s.model, llm.Message{
			Role:    "user",
			Content: sourcePrompt(s.screen(req.MessageText, "text")),
		})
	}
}

// screen redacts credentials from user-supplied source text and logs
// anything that looks like instructions aimed at the model.
func (s *LLMService) screen(text, origin string) string {
	out, report := security.Prepare(text)
	if !report.Clean() {
		s.logger.Warn("Source text flagged",
			zap.String("origin", origin),
			zap.Strings("flags", report.Flags()),
		)
	}
	return out
}

func (s *LLMService) scan(ctx context.Context, req Request) (*Response, error) {
	if s.fetcher == nil {
		return nil, errors.New("web scanning is not configured")
	}
	page, err := s.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	// Structured data beats asking the model.
	if req.ExtractionType == model.KindCalendar && len(page.Events) > 0 {
		return responseFromJSONLD(page.Events), nil
	}
	if req.ExtractionType == model.KindLineup {
		if names := performersOf(page.Events); len(names) > 0 {
			ok, found := true, len(names)
			return &Response{Success: &ok, Names: names, NamesFound: &found}, nil
		}
	}
	if strings.TrimSpace(page.Text) == "" {
		return nil, fmt.Errorf("no readable content at %s", req.URL)
	}

	resp, err := s.complete(ctx, req.ExtractionType, s.model, llm.Message{
		Role:    "user",
		Content: sourcePrompt(s.screen(page.Prompt(), req.URL)),
	})
	if err != nil {
		return nil, err
	}
	found := func(n int) *int { return &n }
	switch req.ExtractionType {
	case model.KindAgenda:
		resp.SessionsFound = found(len(resp.Sessions) + len(resp.RecordErrors))
	case model.KindLineup:
		resp.NamesFound = found(len(resp.Names))
	default:
		resp.EventsFound = found(len(resp.Events) + len(resp.RecordErrors))
	}
	return resp, nil
}

func (s *LLMService) complete(ctx context.Context, kind model.Kind, modelName string, msg llm.Message) (*Response, error) {
	chat, err := s.completer.ChatCompletion(ctx, llm.ChatRequest{
		Model: modelName,
		Messages: []llm.Message{
			{Role: "system", Content: SystemPrompt(kind)},
			msg,
		},
		Temperature:    0.1,
		ResponseFormat: llm.JSONObject,
	})
	if err != nil {
		return nil, err
	}
	text, err := chat.Text()
	if err != nil {
		return nil, err
	}

	resp, err := DecodeResponse([]byte(llm.StripCodeFence(text)))
	if err != nil {
		return nil, err
	}
	if len(resp.RecordErrors) > 0 {
		s.logger.Debug("Model returned unusable records", zap.Strings("errors", resp.RecordErrors))
	}
	return resp, nil
}

func filePart(fileURL, mimeType string) llm.ContentPart {
	if strings.HasPrefix(mimeType, "image/") {
		return llm.ImagePart(fileURL)
	}
	name := "document"
	if u, err := url.Parse(fileURL); err == nil {
		name = path.Base(u.Path)
	}
	return llm.FilePart(name, fileURL)
}

// jsonLDConfidence scores events a page published as schema.org data.
const jsonLDConfidence = 0.95

func responseFromJSONLD(events []scrape.Event) *Response {
	ok := true
	found := len(events)
	resp := &Response{Success: &ok, EventsFound: &found}
	for _, ev := range events {
		c := jsonLDConfidence
		resp.Events = append(resp.Events, RawEvent{
			Title:       ev.Name,
			StartTime:   ev.StartDate,
			EndTime:     ev.EndDate,
			Location:    ev.Location,
			Description: ev.Description,
			Confidence:  &c,
		})
	}
	return resp
}

func performersOf(events []scrape.Event) []string {
	var names []string
	for _, ev := range events {
		names = append(names, ev.Performers...)
	}
	return names
}
