package assembler

import (
	"fmt"
	"net/url"
	"strings"

	"sitedoc/pkg/types"
)

// slugify reduces a title or URL path to a safe filename stem: lowercase
// [a-z0-9-], bounded length, no leading/trailing hyphens. Returns "" when
// nothing usable survives, so callers can fall back to a page index.
func slugify(raw string, maxLen int) string {
	slug := strings.ToLower(strings.TrimSpace(raw))
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if maxLen > 0 && len(slug) > maxLen {
		slug = strings.TrimRight(slug[:maxLen], "-")
	}
	return slug
}

// pageFilename derives a unique .md filename for a page: title first, URL
// path second, page index as the final fallback and the collision escape.
func pageFilename(page types.ConvertedPage, index, maxLen int, taken map[string]struct{}) string {
	stem := slugify(page.Title, maxLen)
	if stem == "" {
		if parsed, err := url.Parse(page.URL); err == nil {
			stem = slugify(strings.Trim(parsed.Path, "/"), maxLen)
		}
	}
	if stem == "" {
		stem = fmt.Sprintf("page-%d", index+1)
	}
	if _, collision := taken[stem]; collision {
		stem = fmt.Sprintf("%s-%d", stem, index+1)
	}
	taken[stem] = struct{}{}
	return stem + ".md"
}

// sectionAnchors produces one unique GitHub-style heading anchor per page,
// in page order, for the combined document's table of contents.
func sectionAnchors(pages []types.ConvertedPage) []string {
	anchors := make([]string, len(pages))
	taken := make(map[string]struct{}, len(pages))
	for i, page := range pages {
		anchor := slugify(page.Title, 0)
		if anchor == "" {
			anchor = fmt.Sprintf("page-%d", i+1)
		}
		if _, collision := taken[anchor]; collision {
			anchor = fmt.Sprintf("%s-%d", anchor, i+1)
		}
		taken[anchor] = struct{}{}
		anchors[i] = anchor
	}
	return anchors
}
