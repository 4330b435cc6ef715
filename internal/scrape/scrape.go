// Package scrape fetches event web pages and reduces them to the text and
// structured data the extraction service needs.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	apperrors "github.com/chravel/chravel-import/internal/errors"
)

// Config holds fetcher settings
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	MaxTextChars int
}

// Renderer produces the final HTML of a page after scripts ran
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// Page is a fetched and reduced web page
type Page struct {
	URL    string
	Title  string
	Text   string
	Events []Event
}

// Fetcher downloads pages over HTTP, or through a Renderer when one is set
type Fetcher struct {
	cfg      Config
	client   *http.Client
	renderer Renderer
	logger   *zap.Logger
}

// NewFetcher creates a fetcher. renderer may be nil.
func NewFetcher(cfg Config, renderer Renderer, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = 40000
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; ChravelImport/1.0)"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		renderer: renderer,
		logger:   logger,
	}
}

// Fetch downloads pageURL and parses it
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil, apperrors.New(apperrors.CodeScrape, "invalid URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperrors.New(apperrors.CodeScrape, "only HTTP/HTTPS URLs are supported")
	}

	var html string
	if f.renderer != nil {
		html, err = f.renderer.Render(ctx, u.String())
	} else {
		html, err = f.get(ctx, u.String())
	}
	if err != nil {
		return nil, err
	}

	page, err := ParseHTML(u.String(), html, f.cfg.MaxTextChars)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("Fetched page",
		zap.String("url", page.URL),
		zap.Int("text_chars", len(page.Text)),
		zap.Int("jsonld_events", len(page.Events)),
	)
	return page, nil
}

func (f *Fetcher) get(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", apperrors.New(apperrors.CodeScrape, "failed to create request", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", apperrors.New(apperrors.CodeScrape, "failed to fetch URL", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.New(apperrors.CodeScrape, fmt.Sprintf("HTTP %d fetching %s", resp.StatusCode, pageURL))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return "", apperrors.New(apperrors.CodeScrape, "failed to read response", err)
	}
	return string(body), nil
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// ParseHTML reduces an HTML document to its title, visible text and
// schema.org events. Text longer than maxChars is truncated.
func ParseHTML(pageURL, html string, maxChars int) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, apperrors.New(apperrors.CodeScrape, "failed to parse HTML", err)
	}

	page := &Page{
		URL:   pageURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		page.Events = append(page.Events, parseJSONLD(s.Text())...)
	})

	doc.Find("script, style, noscript, svg, iframe").Remove()

	var parts []string
	doc.Find("body, body *").Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "#text" {
			return
		}
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	text := whitespaceRe.ReplaceAllString(strings.Join(parts, " "), " ")
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}
	page.Text = strings.TrimSpace(text)

	return page, nil
}

// Prompt renders the page as the text block handed to the model
func (p *Page) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", p.URL)
	if p.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", p.Title)
	}
	b.WriteString("\n")
	b.WriteString(p.Text)
	return b.String()
}
