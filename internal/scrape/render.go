package scrape

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	apperrors "github.com/chravel/chravel-import/internal/errors"
)

// ChromeRenderer loads pages in headless Chrome so script-built agendas
// are visible to the parser.
type ChromeRenderer struct {
	ExecutablePath string
	Timeout        time.Duration
	// Settle is how long to wait after the body is ready for late XHRs.
	Settle time.Duration
}

// Render navigates to pageURL and returns the document's outer HTML
func (r *ChromeRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Headless,
	)
	if r.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(r.ExecutablePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	taskCtx, cancel := context.WithTimeout(taskCtx, timeout)
	defer cancel()

	settle := r.Settle
	if settle <= 0 {
		settle = time.Second
	}

	var html string
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", apperrors.New(apperrors.CodeScrape, "failed to render page", err)
	}
	return html, nil
}
