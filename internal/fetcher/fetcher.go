package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html"

	"sitedoc/pkg/types"
)

// LinkFetcher extracts same-domain anchors from one page.
type LinkFetcher interface {
	FetchLinks(ctx context.Context, pageURL, domain string) ([]types.Link, error)
}

// TitleFetcher resolves a page title best-effort.
type TitleFetcher interface {
	FetchTitle(ctx context.Context, pageURL string) (string, error)
}

// PageCapturer produces the rendered document for one page.
type PageCapturer interface {
	Capture(ctx context.Context, pageURL string, opts CaptureOptions) (*CapturedPage, error)
}

// CaptureOptions controls per-page capture behaviour.
type CaptureOptions struct {
	Screenshot bool
}

// CapturedPage is the rendered result for one URL.
type CapturedPage struct {
	URL        string
	FinalURL   string
	Title      string
	HTML       string
	Screenshot []byte
	FetchedAt  time.Time
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxBodyBytes int64
	ProxyURL     string
}

// HTTPFetcher retrieves pages over plain HTTP. It backs title lookups during
// discovery and acts as the fallback when the browser cannot render a page.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	extraHeaders map[string]string
	maxBodyBytes int64
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024 // 5MB cap
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent:    opts.UserAgent,
		extraHeaders: headers,
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

// Fetch downloads a single URL and returns the decoded body.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	for k, v := range f.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http status %d for %s", resp.StatusCode, pageURL)
	}
	return body, nil
}

// FetchTitle downloads the page and extracts its <title> text.
func (f *HTTPFetcher) FetchTitle(ctx context.Context, pageURL string) (string, error) {
	body, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}
	title := ExtractTitle(body)
	if title == "" {
		return "", fmt.Errorf("no title in %s", pageURL)
	}
	return title, nil
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	limited := io.LimitReader(reader, f.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes)
	}
	return body, nil
}

// ExtractTitle returns the first <title> text in an HTML document.
func ExtractTitle(body []byte) string {
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "title") && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return title
}

// Renderer is the full browser-backed fetching surface a conversion job uses.
type Renderer interface {
	LinkFetcher
	TitleFetcher
	PageCapturer
}

// Composite prefers the browser for link extraction and capture, falling back
// to plain HTTP when rendering fails. Titles go over HTTP first since they do
// not need JavaScript.
type Composite struct {
	browser Renderer
	http    *HTTPFetcher
}

// NewComposite wires a browser and an HTTP fetcher together.
func NewComposite(browser Renderer, httpFetcher *HTTPFetcher) *Composite {
	return &Composite{browser: browser, http: httpFetcher}
}

// FetchLinks extracts anchors from the rendered page, retrying over HTTP when
// the browser navigation fails entirely.
func (c *Composite) FetchLinks(ctx context.Context, pageURL, domain string) ([]types.Link, error) {
	links, err := c.browser.FetchLinks(ctx, pageURL, domain)
	if err == nil {
		return links, nil
	}
	body, httpErr := c.http.Fetch(ctx, pageURL)
	if httpErr != nil {
		return nil, errors.Join(err, httpErr)
	}
	base, parseErr := url.Parse(pageURL)
	if parseErr != nil {
		return nil, parseErr
	}
	return ExtractLinks(body, base, domain), nil
}

// FetchTitle resolves a title over HTTP, falling back to the browser.
func (c *Composite) FetchTitle(ctx context.Context, pageURL string) (string, error) {
	title, err := c.http.FetchTitle(ctx, pageURL)
	if err == nil {
		return title, nil
	}
	return c.browser.FetchTitle(ctx, pageURL)
}

// Capture renders the page in the browser; HTML-only HTTP capture is the
// fallback when rendering fails and no screenshot was requested.
func (c *Composite) Capture(ctx context.Context, pageURL string, opts CaptureOptions) (*CapturedPage, error) {
	page, err := c.browser.Capture(ctx, pageURL, opts)
	if err == nil {
		return page, nil
	}
	if opts.Screenshot {
		return nil, err
	}
	body, httpErr := c.http.Fetch(ctx, pageURL)
	if httpErr != nil {
		return nil, errors.Join(err, httpErr)
	}
	return &CapturedPage{
		URL:       pageURL,
		FinalURL:  pageURL,
		Title:     ExtractTitle(body),
		HTML:      string(body),
		FetchedAt: time.Now(),
	}, nil
}
