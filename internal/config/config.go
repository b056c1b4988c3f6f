package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sitedoc/pkg/types"
)

// Config captures everything required to run the conversion service.
type Config struct {
	Crawl   CrawlConfig   `yaml:"crawl"`
	Browser BrowserConfig `yaml:"browser"`
	Convert ConvertConfig `yaml:"convert"`
	Output  OutputConfig  `yaml:"output"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Logging LoggingConfig `yaml:"logging"`
}

// CrawlConfig bounds sitemap discovery and HTTP fetching.
type CrawlConfig struct {
	MaxDepth       int               `yaml:"max_depth"`
	MaxPages       int               `yaml:"max_pages"`
	UserAgent      string            `yaml:"user_agent"`
	Headers        map[string]string `yaml:"headers"`
	ProxyURL       string            `yaml:"proxy_url"`
	RequestTimeout Duration          `yaml:"request_timeout"`
	MaxBodyBytes   int64             `yaml:"max_body_bytes"`
}

// BrowserConfig controls the chromedp render context.
type BrowserConfig struct {
	NavigationTimeout Duration `yaml:"navigation_timeout"`
	WaitForSelector   string   `yaml:"wait_for_selector"`
	CaptureDelay      Duration `yaml:"capture_delay"`
	DisableHeadless   bool     `yaml:"disable_headless"`
}

// ConvertConfig tunes the page-to-markdown conversion.
type ConvertConfig struct {
	IncludeImages     bool     `yaml:"include_images"`
	IncludeScreenshot bool     `yaml:"include_screenshot"`
	Readability       bool     `yaml:"readability"`
	StripSelectors    []string `yaml:"strip_selectors"`
}

// OutputConfig controls where and how assembled documents are written.
type OutputConfig struct {
	Dir            string         `yaml:"dir"`
	SaveMode       types.SaveMode `yaml:"save_mode"`
	IncludeSitemap bool           `yaml:"include_sitemap"`
	FilenameMaxLen int            `yaml:"filename_max_len"`
}

// JobsConfig bounds concurrent conversion jobs.
type JobsConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			MaxDepth:       1,
			MaxPages:       10,
			UserAgent:      "sitedoc-bot/1.0",
			Headers:        map[string]string{},
			RequestTimeout: DurationFrom(10 * time.Second),
			MaxBodyBytes:   6 * 1024 * 1024,
		},
		Browser: BrowserConfig{
			NavigationTimeout: DurationFrom(30 * time.Second),
			CaptureDelay:      DurationFrom(1500 * time.Millisecond),
		},
		Convert: ConvertConfig{
			IncludeImages: true,
			Readability:   false,
			StripSelectors: []string{
				"nav", "header", "footer", "aside",
				"[class*='advert']", "[class*='ad-']", "[id*='ad']",
				"[class*='cookie']", "[class*='banner']",
			},
		},
		Output: OutputConfig{
			Dir:            "output",
			SaveMode:       types.SaveModeCombined,
			IncludeSitemap: true,
			FilenameMaxLen: 80,
		},
		Jobs: JobsConfig{
			MaxConcurrency: 3,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces required invariants for the conversion service.
func (c Config) Validate() error {
	if c.Crawl.MaxDepth <= 0 {
		return fmt.Errorf("crawl.max_depth must be > 0 (got %d)", c.Crawl.MaxDepth)
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0 (got %d)", c.Crawl.MaxPages)
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawl.max_body_bytes must be > 0 (got %d)", c.Crawl.MaxBodyBytes)
	}
	if strings.TrimSpace(c.Crawl.UserAgent) == "" {
		return errors.New("crawl.user_agent must be set")
	}
	if c.Browser.NavigationTimeout.IsZero() {
		return errors.New("browser.navigation_timeout must be set")
	}
	switch c.Output.SaveMode {
	case types.SaveModeCombined, types.SaveModeSeparate:
	default:
		return fmt.Errorf("output.save_mode must be %q or %q (got %q)",
			types.SaveModeCombined, types.SaveModeSeparate, c.Output.SaveMode)
	}
	if c.Output.FilenameMaxLen <= 0 {
		return fmt.Errorf("output.filename_max_len must be > 0 (got %d)", c.Output.FilenameMaxLen)
	}
	if c.Jobs.MaxConcurrency <= 0 {
		return fmt.Errorf("jobs.max_concurrency must be > 0 (got %d)", c.Jobs.MaxConcurrency)
	}
	return nil
}

func (c *Config) normalise() {
	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	c.Crawl.ProxyURL = strings.TrimSpace(c.Crawl.ProxyURL)
	c.Output.Dir = strings.TrimSpace(c.Output.Dir)
	if c.Output.SaveMode == "" {
		c.Output.SaveMode = types.SaveModeCombined
	}

	cleaned := make([]string, 0, len(c.Convert.StripSelectors))
	for _, sel := range c.Convert.StripSelectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		cleaned = append(cleaned, sel)
	}
	c.Convert.StripSelectors = cleaned
}

// DefaultOptions materialises per-job conversion options from the config.
func (c Config) DefaultOptions() types.ConversionOptions {
	images := c.Convert.IncludeImages
	screenshot := c.Convert.IncludeScreenshot
	sitemap := c.Output.IncludeSitemap
	return types.ConversionOptions{
		MaxDepth:          c.Crawl.MaxDepth,
		MaxPages:          c.Crawl.MaxPages,
		IncludeImages:     &images,
		IncludeScreenshot: &screenshot,
		IncludeSitemap:    &sitemap,
		SaveMode:          c.Output.SaveMode,
	}
}
