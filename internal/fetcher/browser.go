package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"sitedoc/pkg/types"
)

// BrowserOptions configures the headless render context.
type BrowserOptions struct {
	NavigationTimeout time.Duration
	WaitForSelector   string
	CaptureDelay      time.Duration
	UserAgent         string
	DisableHeadless   bool
}

// Browser owns one chromedp exec allocator for the lifetime of a conversion
// job. Navigations open a fresh tab and run one at a time; the single browser
// instance is the resource bound, not a per-call allocator.
type Browser struct {
	opts        BrowserOptions
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	logger      *slog.Logger
}

// NewBrowser launches the browser allocator. The caller must Close it.
func NewBrowser(ctx context.Context, opts BrowserOptions, logger *slog.Logger) (*Browser, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.CaptureDelay <= 0 {
		opts.CaptureDelay = 1500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	)
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Start the browser process now so acquisition failures surface here
	// rather than on the first page of the job.
	probeCtx, probeCancel := context.WithTimeout(browserCtx, opts.NavigationTimeout)
	defer probeCancel()
	if err := chromedp.Run(probeCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return &Browser{
		opts:        opts,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		logger:      logger,
	}, nil
}

// Close tears down the browser process. Safe to call more than once.
func (b *Browser) Close() {
	if b == nil {
		return
	}
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}
}

// FetchLinks navigates to the page and extracts same-domain anchors from the
// rendered DOM. Malformed individual hrefs are skipped; only whole-navigation
// failure returns an error.
func (b *Browser) FetchLinks(ctx context.Context, pageURL, domain string) ([]types.Link, error) {
	page, err := b.Capture(ctx, pageURL, CaptureOptions{})
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(page.FinalURL)
	if err != nil {
		base, err = url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
	}
	return ExtractLinks([]byte(page.HTML), base, domain), nil
}

// FetchTitle navigates to the page and reads document.title.
func (b *Browser) FetchTitle(ctx context.Context, pageURL string) (string, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()
	timeoutCtx, timeoutCancel := b.withNavTimeout(ctx, tabCtx)
	defer timeoutCancel()

	var title string
	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Title(&title),
	)
	if err != nil {
		return "", fmt.Errorf("fetch title: %w", err)
	}
	return strings.TrimSpace(title), nil
}

// Capture renders the page and exports its outer HTML, title, final URL, and
// optionally a full-page screenshot.
func (b *Browser) Capture(ctx context.Context, pageURL string, opts CaptureOptions) (*CapturedPage, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()
	timeoutCtx, timeoutCancel := b.withNavTimeout(ctx, tabCtx)
	defer timeoutCancel()

	actions := []chromedp.Action{
		chromedp.Navigate(pageURL),
	}
	if sel := strings.TrimSpace(b.opts.WaitForSelector); sel != "" {
		actions = append(actions,
			chromedp.WaitReady(sel, chromedp.ByQuery),
			chromedp.Sleep(250*time.Millisecond),
		)
	} else {
		actions = append(actions,
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(b.opts.CaptureDelay),
		)
	}

	var pageHTML, title, finalURL string
	actions = append(actions,
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)

	var screenshot []byte
	if opts.Screenshot {
		actions = append(actions, chromedp.FullScreenshot(&screenshot, 90))
	}

	start := time.Now()
	if err := chromedp.Run(timeoutCtx, actions...); err != nil {
		b.logger.Warn("browser capture failed", "url", pageURL, "error", err)
		return nil, fmt.Errorf("capture %s: %w", pageURL, err)
	}
	b.logger.Debug("browser capture complete",
		"url", pageURL,
		"latency_ms", time.Since(start).Milliseconds(),
		"html_bytes", len(pageHTML),
		"screenshot", opts.Screenshot,
	)

	if finalURL == "" {
		finalURL = pageURL
	}
	return &CapturedPage{
		URL:        pageURL,
		FinalURL:   finalURL,
		Title:      strings.TrimSpace(title),
		HTML:       pageHTML,
		Screenshot: screenshot,
		FetchedAt:  time.Now(),
	}, nil
}

// withNavTimeout applies the navigation timeout while still honouring the
// caller's cancellation.
func (b *Browser) withNavTimeout(parent, tab context.Context) (context.Context, context.CancelFunc) {
	timeoutCtx, timeoutCancel := context.WithTimeout(tab, b.opts.NavigationTimeout)
	if parent == nil {
		return timeoutCtx, timeoutCancel
	}
	stop := context.AfterFunc(parent, timeoutCancel)
	return timeoutCtx, func() {
		stop()
		timeoutCancel()
	}
}
