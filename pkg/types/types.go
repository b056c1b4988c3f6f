package types

import "time"

// Link is one outbound anchor discovered on a page.
type Link struct {
	URL        string `json:"url"`
	AnchorText string `json:"anchor_text,omitempty"`
}

// PageNode is one discovered page in a sitemap. Links stays empty until the
// page itself has been visited for link extraction.
type PageNode struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Depth int    `json:"depth"`
	Links []Link `json:"links,omitempty"`
}

// Sitemap is the bounded, deduplicated result of breadth-first discovery.
// Pages preserves discovery order; every entry is same-domain as Domain and
// unique after URL normalization.
type Sitemap struct {
	RootURL string      `json:"root_url"`
	Domain  string      `json:"domain"`
	Title   string      `json:"title"`
	Pages   []*PageNode `json:"pages"`
}

// Page returns the node registered for the normalized URL, or nil.
func (s *Sitemap) Page(normalizedURL string) *PageNode {
	for _, p := range s.Pages {
		if p.URL == normalizedURL {
			return p
		}
	}
	return nil
}

// ConvertedPage is one page's rendered markdown fragment.
type ConvertedPage struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
}

// SaveMode selects the output assembly strategy.
type SaveMode string

const (
	SaveModeCombined SaveMode = "combined"
	SaveModeSeparate SaveMode = "separate"
)

// ConversionOptions are the recognized per-job options. Zero values are
// replaced with defaults by Normalize; unknown keys in API payloads are
// dropped by JSON decoding.
type ConversionOptions struct {
	MaxDepth          int      `json:"max_depth,omitempty"`
	MaxPages          int      `json:"max_pages,omitempty"`
	IncludeImages     *bool    `json:"include_images,omitempty"`
	IncludeScreenshot *bool    `json:"include_screenshot,omitempty"`
	IncludeSitemap    *bool    `json:"include_sitemap,omitempty"`
	SaveMode          SaveMode `json:"save_mode,omitempty"`
	Title             string   `json:"title,omitempty"`
}

// Normalize fills unset options with their defaults.
func (o *ConversionOptions) Normalize() {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 1
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 10
	}
	if o.IncludeImages == nil {
		v := true
		o.IncludeImages = &v
	}
	if o.IncludeScreenshot == nil {
		v := false
		o.IncludeScreenshot = &v
	}
	if o.IncludeSitemap == nil {
		v := true
		o.IncludeSitemap = &v
	}
	if o.SaveMode != SaveModeSeparate {
		o.SaveMode = SaveModeCombined
	}
}

// JobStatus captures the lifecycle stage of a conversion job.
type JobStatus string

const (
	StatusStarting           JobStatus = "starting"
	StatusLaunchingBrowser   JobStatus = "launching_browser"
	StatusDiscoveringSitemap JobStatus = "discovering_sitemap"
	StatusPagesDiscovered    JobStatus = "pages_discovered"
	StatusProcessingPage     JobStatus = "processing_page"
	StatusGeneratingOutput   JobStatus = "generating_output"
	StatusCompleted          JobStatus = "completed"
	StatusFailed             JobStatus = "failed"
	StatusCancelled          JobStatus = "cancelled"
)

// Terminal reports whether no further transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// WebsiteData carries per-page completion stats pushed with progress events.
type WebsiteData struct {
	TotalDiscovered        int     `json:"total_discovered"`
	Processing             int     `json:"processing"`
	Completed              int     `json:"completed"`
	CurrentPage            string  `json:"current_page,omitempty"`
	EstimatedTimeRemaining string  `json:"estimated_time_remaining,omitempty"`
	ProcessingRate         float64 `json:"processing_rate,omitempty"`
}

// ProgressEvent is emitted after every job state transition.
type ProgressEvent struct {
	JobID       string       `json:"job_id"`
	Status      JobStatus    `json:"status"`
	Progress    int          `json:"progress"`
	WebsiteData *WebsiteData `json:"website_data,omitempty"`
	Error       string       `json:"error,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ConversionResult is the final outcome of a job.
type ConversionResult struct {
	RootURL   string          `json:"root_url"`
	Domain    string          `json:"domain"`
	SaveMode  SaveMode        `json:"save_mode"`
	Document  string          `json:"document,omitempty"`
	OutputDir string          `json:"output_dir,omitempty"`
	Files     []string        `json:"files,omitempty"`
	Pages     []ConvertedPage `json:"-"`
	Partial   bool            `json:"partial"`
	Processed int             `json:"processed"`
	Total     int             `json:"total"`
}
