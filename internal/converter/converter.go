package converter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"sitedoc/internal/fetcher"
	"sitedoc/pkg/types"
)

var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

// PageProcessingError reports a single page's capture or conversion failure.
// It is never fatal to a conversion run: the page yields an error fragment
// and the run moves on.
type PageProcessingError struct {
	URL string
	Err error
}

func (e *PageProcessingError) Error() string {
	return fmt.Sprintf("process page %s: %v", e.URL, e.Err)
}

func (e *PageProcessingError) Unwrap() error { return e.Err }

// Options configures the converter once per service instance.
type Options struct {
	StripSelectors []string
	Readability    bool
}

// ConvertOptions vary per page.
type ConvertOptions struct {
	IncludeImages bool
	// ScreenshotPath, when non-empty, requests a full-page screenshot
	// written to that path (inside the owning job's temp directory).
	ScreenshotPath string
}

// Converter turns one rendered page into a markdown fragment. It never fails
// the page outright: capture or conversion errors produce a fragment carrying
// an error notice, so callers treat their own recovery as a safety net.
type Converter struct {
	capturer fetcher.PageCapturer
	md       *md.Converter
	opts     Options
	logger   *slog.Logger
}

// New constructs a converter over the given page capturer.
func New(capturer fetcher.PageCapturer, opts Options, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	return &Converter{
		capturer: capturer,
		md:       conv,
		opts:     opts,
		logger:   logger,
	}
}

// Convert captures and converts one page. The returned page always has
// non-nil content; on failure the content is an error notice.
func (c *Converter) Convert(ctx context.Context, pageURL string, opts ConvertOptions) *types.ConvertedPage {
	captured, err := c.capturer.Capture(ctx, pageURL, fetcher.CaptureOptions{
		Screenshot: opts.ScreenshotPath != "",
	})
	if err != nil {
		perr := &PageProcessingError{URL: pageURL, Err: err}
		c.logger.Warn("page capture failed", "url", pageURL, "error", perr)
		return errorFragment(perr)
	}

	page := &types.ConvertedPage{
		URL:   pageURL,
		Title: captured.Title,
	}

	if opts.ScreenshotPath != "" && len(captured.Screenshot) > 0 {
		if err := os.WriteFile(opts.ScreenshotPath, captured.Screenshot, 0o644); err != nil {
			c.logger.Warn("screenshot write failed", "url", pageURL, "error", err)
		} else {
			page.ScreenshotPath = opts.ScreenshotPath
		}
	}

	cleaned := c.cleanHTML(captured.HTML, opts)

	if c.opts.Readability {
		if extracted, err := c.extractReadable(cleaned, captured.FinalURL); err == nil {
			cleaned = extracted
		} else {
			c.logger.Debug("readability extraction failed, using cleaned html", "url", pageURL, "error", err)
		}
	}

	markdown, err := c.md.ConvertString(cleaned)
	if err != nil {
		perr := &PageProcessingError{URL: pageURL, Err: err}
		c.logger.Warn("markdown conversion failed", "url", pageURL, "error", perr)
		return errorFragment(perr)
	}
	page.Content = tidyMarkdown(markdown)

	if page.Title == "" {
		page.Title = firstHeading(page.Content)
	}
	if page.Title == "" {
		page.Title = pageURL
	}
	return page
}

// cleanHTML strips scripts, styles, and configured boilerplate selectors,
// and optionally removes images.
func (c *Converter) cleanHTML(rawHTML string, opts ConvertOptions) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}

	doc.Find("script,noscript,style,iframe,object,embed,form,input,button").Remove()
	for _, sel := range c.opts.StripSelectors {
		doc.Find(sel).Remove()
	}
	if !opts.IncludeImages {
		doc.Find("img,picture,figure,svg").Remove()
	}

	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}

func (c *Converter) extractReadable(cleaned, finalURL string) (string, error) {
	parsed, err := url.Parse(finalURL)
	if err != nil {
		return "", fmt.Errorf("parse final url: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader([]byte(cleaned)), parsed)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	if strings.TrimSpace(article.Content) == "" {
		return "", fmt.Errorf("readability produced empty content")
	}
	return article.Content, nil
}

func errorFragment(perr *PageProcessingError) *types.ConvertedPage {
	return &types.ConvertedPage{
		URL:     perr.URL,
		Title:   perr.URL,
		Content: fmt.Sprintf("> Conversion failed for %s: %v", perr.URL, perr.Err),
	}
}

func tidyMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func firstHeading(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
