package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"sitedoc/internal/config"
	"sitedoc/internal/fetcher"
	"sitedoc/internal/sitemap"
	"sitedoc/pkg/types"
)

// fakeBrowser serves canned rendered pages keyed by URL path.
type fakeBrowser struct {
	html      map[string]string
	links     map[string][]types.Link
	captures  int
	onCapture func(captures int)
}

func (f *fakeBrowser) FetchLinks(ctx context.Context, pageURL, domain string) ([]types.Link, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	return f.links[pathOrRoot(u)], nil
}

func (f *fakeBrowser) FetchTitle(ctx context.Context, pageURL string) (string, error) {
	return "", errors.New("titles come from http in these tests")
}

func (f *fakeBrowser) Capture(ctx context.Context, pageURL string, opts fetcher.CaptureOptions) (*fetcher.CapturedPage, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	html, ok := f.html[pathOrRoot(u)]
	if !ok {
		return nil, fmt.Errorf("no page at %s", pageURL)
	}
	f.captures++
	if f.onCapture != nil {
		f.onCapture(f.captures)
	}
	return &fetcher.CapturedPage{
		URL:      pageURL,
		FinalURL: pageURL,
		Title:    titleOf(html),
		HTML:     html,
	}, nil
}

func pathOrRoot(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func titleOf(html string) string {
	start := strings.Index(html, "<title>")
	end := strings.Index(html, "</title>")
	if start < 0 || end < 0 {
		return ""
	}
	return html[start+len("<title>") : end]
}

// testSite spins up an HTTP server and a matching fake browser for a small
// three-page site: / links to /a and /b.
func testSite(t *testing.T) (string, *fakeBrowser) {
	t.Helper()
	pages := map[string]string{
		"/":  `<html><head><title>Home</title></head><body><h1>Home</h1><a href="/a">Page A</a> <a href="/b">Page B</a></body></html>`,
		"/a": `<html><head><title>Page A</title></head><body><h1>Page A</h1><p>alpha</p></body></html>`,
		"/b": `<html><head><title>Page B</title></head><body><h1>Page B</h1><p>beta</p></body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		html, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(html))
	}))
	t.Cleanup(srv.Close)

	browser := &fakeBrowser{
		html: pages,
		links: map[string][]types.Link{
			"/": {
				{URL: srv.URL + "/a", AnchorText: "Page A"},
				{URL: srv.URL + "/b", AnchorText: "Page B"},
			},
		},
	}
	return srv.URL, browser
}

func testPipeline(t *testing.T, browser *fakeBrowser, mutate func(*config.Config)) (*Pipeline, *bool) {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Crawl.MaxDepth = 1
	cfg.Crawl.MaxPages = 10
	if mutate != nil {
		mutate(&cfg)
	}

	p := NewPipeline(cfg, testLogger())
	closed := new(bool)
	p.newBrowser = func(ctx context.Context) (fetcher.Renderer, CloseFunc, error) {
		return browser, func() { *closed = true }, nil
	}
	return p, closed
}

func newTestJob(t *testing.T, rawURL string, opts types.ConversionOptions) *Job {
	t.Helper()
	normalized, err := sitemap.NormalizeURL(rawURL)
	if err != nil {
		t.Fatalf("normalize %q: %v", rawURL, err)
	}
	opts.Normalize()
	return newJob("test-job", Request{URL: normalized, Options: opts})
}

func TestPipelineRunCombined(t *testing.T) {
	rootURL, browser := testSite(t)
	p, closed := testPipeline(t, browser, nil)
	j := newTestJob(t, rootURL, types.ConversionOptions{})

	result, err := p.Run(context.Background(), j)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Partial {
		t.Fatal("unexpected partial result")
	}
	if result.Processed != 3 || result.Total != 3 {
		t.Fatalf("processed %d/%d, want 3/3", result.Processed, result.Total)
	}
	for _, want := range []string{"## Home", "## Page A", "## Page B", "alpha", "beta"} {
		if !strings.Contains(result.Document, want) {
			t.Fatalf("document missing %q", want)
		}
	}
	if !*closed {
		t.Fatal("browser not released")
	}
}

func TestPipelineSecondPassSkipsProcessedPages(t *testing.T) {
	rootURL, browser := testSite(t)
	p, _ := testPipeline(t, browser, nil)
	j := newTestJob(t, rootURL, types.ConversionOptions{})

	if _, err := p.Run(context.Background(), j); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if browser.captures != 3 {
		t.Fatalf("captures after first run = %d, want 3", browser.captures)
	}

	// Every sitemap URL is already recorded on the job, so a repeat pass
	// over the same job fetches nothing.
	result, err := p.Run(context.Background(), j)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if browser.captures != 3 {
		t.Fatalf("captures after second run = %d, want 3 (no refetch)", browser.captures)
	}
	if result.Processed != 0 {
		t.Fatalf("second run processed %d pages, want 0", result.Processed)
	}
}

func TestPipelineGracefulCancelYieldsPartial(t *testing.T) {
	rootURL, browser := testSite(t)
	p, closed := testPipeline(t, browser, nil)
	j := newTestJob(t, rootURL, types.ConversionOptions{})

	// Request the cancel while the first page converts; the loop observes it
	// before starting the second page.
	browser.onCapture = func(captures int) {
		if captures == 1 {
			j.Cancel()
		}
	}

	result, err := p.Run(context.Background(), j)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Partial {
		t.Fatal("expected partial result")
	}
	if result.Processed != 1 || result.Total != 3 {
		t.Fatalf("processed %d/%d, want 1/3", result.Processed, result.Total)
	}
	if !strings.Contains(result.Document, "Partial: 1 of 3 pages processed") {
		t.Fatal("partial annotation missing from document")
	}
	if !*closed {
		t.Fatal("browser not released after cancel")
	}
}

func TestPipelineContextCancellationAborts(t *testing.T) {
	rootURL, browser := testSite(t)
	p, closed := testPipeline(t, browser, nil)
	j := newTestJob(t, rootURL, types.ConversionOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, j)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !*closed {
		t.Fatal("browser not released after abort")
	}
}

func TestPipelineBrowserLaunchFailure(t *testing.T) {
	rootURL, _ := testSite(t)
	p, _ := testPipeline(t, nil, nil)
	p.newBrowser = func(ctx context.Context) (fetcher.Renderer, CloseFunc, error) {
		return nil, nil, errors.New("chrome executable not found")
	}
	j := newTestJob(t, rootURL, types.ConversionOptions{})

	_, err := p.Run(context.Background(), j)
	var resErr *ResourceError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResourceError, got %v", err)
	}
	if resErr.Resource != "browser" {
		t.Fatalf("resource = %q", resErr.Resource)
	}
}

func TestPipelineSeparateMode(t *testing.T) {
	rootURL, browser := testSite(t)
	p, _ := testPipeline(t, browser, nil)
	j := newTestJob(t, rootURL, types.ConversionOptions{SaveMode: types.SaveModeSeparate})

	result, err := p.Run(context.Background(), j)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.SaveMode != types.SaveModeSeparate {
		t.Fatalf("save mode = %q", result.SaveMode)
	}
	if result.Document != "" {
		t.Fatal("separate mode should not produce an inline document")
	}
	if got, want := len(result.Files), 4; got != want {
		t.Fatalf("wrote %d files, want %d (3 pages + index)", got, want)
	}
}

func TestPipelineBoundsFromOptions(t *testing.T) {
	rootURL, browser := testSite(t)
	p, _ := testPipeline(t, browser, nil)
	j := newTestJob(t, rootURL, types.ConversionOptions{MaxPages: 2})

	result, err := p.Run(context.Background(), j)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Total != 2 || result.Processed != 2 {
		t.Fatalf("processed %d/%d, want the page bound respected", result.Processed, result.Total)
	}
}
