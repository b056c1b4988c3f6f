package fetcher

import (
	"net/url"
	"testing"
)

const linksFixture = `<!DOCTYPE html>
<html>
<head><title>  Example Docs  </title></head>
<body>
  <a href="/guide">Guide</a>
  <a href="https://example.com/about/">About</a>
  <a href="https://other.com/external">External</a>
  <a href="#section">Jump</a>
  <a href="javascript:void(0)">JS</a>
  <a href="mailto:team@example.com">Mail</a>
  <a href="tel:+123456">Call</a>
  <a href="/api#auth">API</a>
  <a href="ftp://example.com/files">FTP</a>
  <a href="">Empty</a>
</body>
</html>`

func TestExtractLinks(t *testing.T) {
	base, _ := url.Parse("https://example.com/docs")
	links := ExtractLinks([]byte(linksFixture), base, "example.com")

	want := []struct {
		url    string
		anchor string
	}{
		{"https://example.com/guide", "Guide"},
		{"https://example.com/about/", "About"},
		{"https://example.com/api", "API"},
	}
	if len(links) != len(want) {
		t.Fatalf("got %d links, want %d: %+v", len(links), len(want), links)
	}
	for i, w := range want {
		if links[i].URL != w.url {
			t.Errorf("link %d url = %q, want %q", i, links[i].URL, w.url)
		}
		if links[i].AnchorText != w.anchor {
			t.Errorf("link %d anchor = %q, want %q", i, links[i].AnchorText, w.anchor)
		}
	}
}

func TestExtractLinksSubdomainIsDifferentDomain(t *testing.T) {
	base, _ := url.Parse("https://example.com")
	body := []byte(`<a href="https://blog.example.com/post">Blog</a>`)
	if links := ExtractLinks(body, base, "example.com"); len(links) != 0 {
		t.Fatalf("expected subdomain link to be dropped, got %+v", links)
	}
}

func TestExtractLinksEmptyInput(t *testing.T) {
	base, _ := url.Parse("https://example.com")
	if links := ExtractLinks(nil, base, "example.com"); links != nil {
		t.Fatalf("expected nil for empty body, got %+v", links)
	}
	if links := ExtractLinks([]byte("<a href='/x'>x</a>"), nil, "example.com"); links != nil {
		t.Fatalf("expected nil for nil base, got %+v", links)
	}
}

func TestExtractTitle(t *testing.T) {
	if got := ExtractTitle([]byte(linksFixture)); got != "Example Docs" {
		t.Fatalf("ExtractTitle = %q, want %q", got, "Example Docs")
	}
	if got := ExtractTitle([]byte("<html><body>no title</body></html>")); got != "" {
		t.Fatalf("ExtractTitle = %q, want empty", got)
	}
}
