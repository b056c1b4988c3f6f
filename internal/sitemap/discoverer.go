package sitemap

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"sitedoc/internal/fetcher"
	"sitedoc/pkg/types"
)

// DiscoveryError reports that the root page could not be loaded. It is fatal
// to the conversion run, unlike per-link failures which are swallowed.
type DiscoveryError struct {
	URL string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.URL, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Bounds limits breadth-first discovery.
type Bounds struct {
	MaxDepth int
	MaxPages int
}

// Discoverer builds a bounded same-domain sitemap from a root URL.
type Discoverer struct {
	links  fetcher.LinkFetcher
	titles fetcher.TitleFetcher
	logger *slog.Logger
}

// NewDiscoverer constructs a discoverer over the given fetchers.
func NewDiscoverer(links fetcher.LinkFetcher, titles fetcher.TitleFetcher, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{links: links, titles: titles, logger: logger}
}

type queueEntry struct {
	url   string // normalized
	depth int
}

// Discover runs breadth-first traversal from rootURL. Pages are registered in
// discovery order, deduplicated by normalized URL, and bounded by MaxPages
// and MaxDepth. Entries still queued when the page bound is reached remain in
// the sitemap with empty links. Only a root-load failure aborts discovery.
func (d *Discoverer) Discover(ctx context.Context, rootURL string, bounds Bounds) (*types.Sitemap, error) {
	if bounds.MaxDepth <= 0 {
		bounds.MaxDepth = 1
	}
	if bounds.MaxPages <= 0 {
		bounds.MaxPages = 10
	}

	normalizedRoot, err := NormalizeURL(rootURL)
	if err != nil {
		return nil, &DiscoveryError{URL: rootURL, Err: err}
	}
	parsedRoot, err := url.Parse(normalizedRoot)
	if err != nil {
		return nil, &DiscoveryError{URL: rootURL, Err: err}
	}
	domain := parsedRoot.Hostname()

	sm := &types.Sitemap{
		RootURL: normalizedRoot,
		Domain:  domain,
		Title:   domain,
	}

	seen := map[string]*types.PageNode{}
	register := func(normalized, title string, depth int) *types.PageNode {
		node := &types.PageNode{URL: normalized, Title: title, Depth: depth}
		seen[normalized] = node
		sm.Pages = append(sm.Pages, node)
		return node
	}

	rootNode := register(normalizedRoot, domain, 0)
	queue := []queueEntry{{url: normalizedRoot, depth: 0}}

	if title, err := d.titles.FetchTitle(ctx, normalizedRoot); err == nil && title != "" {
		sm.Title = title
		rootNode.Title = title
	} else if err != nil {
		d.logger.Debug("root title fetch failed", "url", normalizedRoot, "error", err)
	}

	for len(queue) > 0 && len(sm.Pages) < bounds.MaxPages {
		entry := queue[0]
		queue = queue[1:]

		if entry.depth >= bounds.MaxDepth {
			continue
		}

		links, err := d.links.FetchLinks(ctx, entry.url, domain)
		if err != nil {
			if entry.url == normalizedRoot {
				return nil, &DiscoveryError{URL: rootURL, Err: err}
			}
			d.logger.Warn("link fetch failed, skipping page expansion", "url", entry.url, "error", err)
			continue
		}

		node := seen[entry.url]
		node.Links = normalizeLinks(links)

		for _, link := range node.Links {
			if _, exists := seen[link.URL]; exists {
				continue
			}
			if len(sm.Pages) >= bounds.MaxPages {
				break
			}

			title := link.AnchorText
			if fetched, err := d.titles.FetchTitle(ctx, link.URL); err == nil && fetched != "" {
				title = fetched
			} else if err != nil {
				d.logger.Debug("title fetch failed, using anchor text", "url", link.URL, "error", err)
			}
			if strings.TrimSpace(title) == "" {
				title = link.URL
			}

			register(link.URL, title, entry.depth+1)
			queue = append(queue, queueEntry{url: link.URL, depth: entry.depth + 1})
		}
	}

	return sm, nil
}

// normalizeLinks canonicalises link URLs and drops in-page duplicates while
// preserving discovery order.
func normalizeLinks(links []types.Link) []types.Link {
	out := make([]types.Link, 0, len(links))
	unique := make(map[string]struct{}, len(links))
	for _, link := range links {
		normalized, err := NormalizeURL(link.URL)
		if err != nil {
			continue
		}
		if _, dup := unique[normalized]; dup {
			continue
		}
		unique[normalized] = struct{}{}
		out = append(out, types.Link{URL: normalized, AnchorText: link.AnchorText})
	}
	return out
}
