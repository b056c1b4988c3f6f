package fetcher

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sitedoc/pkg/types"
)

// ExtractLinks parses anchors out of an HTML document, resolves them against
// base, and keeps only navigable same-domain links. Fragment-only, empty,
// javascript:, mailto:, and tel: hrefs are dropped; fragments are stripped
// from the survivors.
func ExtractLinks(body []byte, base *url.URL, domain string) []types.Link {
	if len(body) == 0 || base == nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var links []types.Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if !navigableHref(href) {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		resolved.Fragment = ""
		scheme := strings.ToLower(resolved.Scheme)
		if scheme != "http" && scheme != "https" {
			return
		}
		if !strings.EqualFold(resolved.Hostname(), domain) {
			return
		}

		links = append(links, types.Link{
			URL:        resolved.String(),
			AnchorText: strings.TrimSpace(s.Text()),
		})
	})
	return links
}

func navigableHref(href string) bool {
	if href == "" {
		return false
	}
	if strings.HasPrefix(href, "#") {
		return false
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}
