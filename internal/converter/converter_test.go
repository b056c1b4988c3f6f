package converter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sitedoc/internal/fetcher"
)

type fakeCapturer struct {
	page *fetcher.CapturedPage
	err  error
}

func (f *fakeCapturer) Capture(ctx context.Context, pageURL string, opts fetcher.CaptureOptions) (*fetcher.CapturedPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := *f.page
	page.URL = pageURL
	if page.FinalURL == "" {
		page.FinalURL = pageURL
	}
	page.FetchedAt = time.Now()
	return &page, nil
}

func testConverter(capturer fetcher.PageCapturer, opts Options) *Converter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(capturer, opts, logger)
}

func TestConvertProducesMarkdown(t *testing.T) {
	capturer := &fakeCapturer{page: &fetcher.CapturedPage{
		Title: "Getting Started",
		HTML: `<html><body>
			<script>alert("hi")</script>
			<h1>Getting Started</h1>
			<p>Install the <strong>tool</strong> first.</p>
			<ul><li>step one</li><li>step two</li></ul>
		</body></html>`,
	}}
	page := testConverter(capturer, Options{}).Convert(context.Background(), "https://example.com/start", ConvertOptions{})

	if page.Title != "Getting Started" {
		t.Fatalf("title = %q", page.Title)
	}
	for _, want := range []string{"# Getting Started", "**tool**", "- step one"} {
		if !strings.Contains(page.Content, want) {
			t.Fatalf("content missing %q:\n%s", want, page.Content)
		}
	}
	if strings.Contains(page.Content, "alert") {
		t.Fatalf("script content leaked into markdown:\n%s", page.Content)
	}
}

func TestConvertRemovesImagesWhenExcluded(t *testing.T) {
	capturer := &fakeCapturer{page: &fetcher.CapturedPage{
		Title: "Pics",
		HTML:  `<html><body><h1>Pics</h1><img src="/a.png" alt="a"><p>text</p></body></html>`,
	}}
	conv := testConverter(capturer, Options{})

	with := conv.Convert(context.Background(), "https://example.com/pics", ConvertOptions{IncludeImages: true})
	if !strings.Contains(with.Content, "a.png") {
		t.Fatalf("expected image reference to survive:\n%s", with.Content)
	}

	without := conv.Convert(context.Background(), "https://example.com/pics", ConvertOptions{IncludeImages: false})
	if strings.Contains(without.Content, "a.png") {
		t.Fatalf("expected image reference to be stripped:\n%s", without.Content)
	}
}

func TestConvertAppliesStripSelectors(t *testing.T) {
	capturer := &fakeCapturer{page: &fetcher.CapturedPage{
		Title: "Doc",
		HTML:  `<html><body><nav>site navigation</nav><h1>Doc</h1><p>body text</p></body></html>`,
	}}
	conv := testConverter(capturer, Options{StripSelectors: []string{"nav"}})
	page := conv.Convert(context.Background(), "https://example.com/doc", ConvertOptions{})
	if strings.Contains(page.Content, "site navigation") {
		t.Fatalf("nav content should be stripped:\n%s", page.Content)
	}
	if !strings.Contains(page.Content, "body text") {
		t.Fatalf("body text lost:\n%s", page.Content)
	}
}

func TestConvertCaptureFailureYieldsErrorFragment(t *testing.T) {
	capturer := &fakeCapturer{err: errors.New("navigation timeout")}
	page := testConverter(capturer, Options{}).Convert(context.Background(), "https://example.com/bad", ConvertOptions{})
	if page == nil {
		t.Fatal("expected a fragment, got nil")
	}
	if !strings.HasPrefix(page.Content, "> Conversion failed for") {
		t.Fatalf("unexpected fragment: %q", page.Content)
	}
	if page.Title != "https://example.com/bad" {
		t.Fatalf("title = %q, want URL fallback", page.Title)
	}
}

func TestConvertTitleFallsBackToFirstHeading(t *testing.T) {
	capturer := &fakeCapturer{page: &fetcher.CapturedPage{
		HTML: `<html><body><h1>From Heading</h1><p>text</p></body></html>`,
	}}
	page := testConverter(capturer, Options{}).Convert(context.Background(), "https://example.com/x", ConvertOptions{})
	if page.Title != "From Heading" {
		t.Fatalf("title = %q, want first heading", page.Title)
	}
}

func TestConvertWritesScreenshot(t *testing.T) {
	capturer := &fakeCapturer{page: &fetcher.CapturedPage{
		Title:      "Shot",
		HTML:       `<html><body><h1>Shot</h1></body></html>`,
		Screenshot: []byte{0x89, 0x50, 0x4e, 0x47},
	}}
	dest := filepath.Join(t.TempDir(), "page-1.png")
	page := testConverter(capturer, Options{}).Convert(context.Background(), "https://example.com/s", ConvertOptions{ScreenshotPath: dest})

	if page.ScreenshotPath != dest {
		t.Fatalf("screenshot path = %q, want %q", page.ScreenshotPath, dest)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("screenshot not written: %v", err)
	}
	if len(data) != 4 {
		t.Fatalf("screenshot bytes = %d", len(data))
	}
}
