package sitemap

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL canonicalises a URL for identity comparison: lowercase scheme
// and host, default port and fragment removed, trailing slash stripped. Two
// URLs that normalize equally refer to the same sitemap page.
func NormalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("url %q missing host", raw)
	}
	return Normalize(parsed), nil
}

// Normalize canonicalises an already-parsed URL.
func Normalize(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPort(scheme) {
		host += ":" + port
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	normalized := scheme + "://" + host + path
	if q := u.RawQuery; q != "" {
		normalized += "?" + q
	}
	return normalized
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}
