package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"sitedoc/internal/assembler"
	"sitedoc/internal/config"
	"sitedoc/internal/converter"
	"sitedoc/internal/fetcher"
	"sitedoc/internal/sitemap"
	"sitedoc/pkg/types"
)

// ResourceError reports a failure to acquire or prepare a resource the job
// cannot run without: the temp directory, the browser, the HTTP client.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// CloseFunc releases a launched browser.
type CloseFunc func()

// Pipeline is the production Runner: it owns one browser and one temp
// directory per run, walks the status state machine, and releases both
// resources exactly once on every exit path.
type Pipeline struct {
	cfg        config.Config
	logger     *slog.Logger
	newBrowser func(ctx context.Context) (fetcher.Renderer, CloseFunc, error)
}

// NewPipeline constructs the production pipeline over the service config.
func NewPipeline(cfg config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{cfg: cfg, logger: logger}
	p.newBrowser = func(ctx context.Context) (fetcher.Renderer, CloseFunc, error) {
		b, err := fetcher.NewBrowser(ctx, fetcher.BrowserOptions{
			NavigationTimeout: cfg.Browser.NavigationTimeout.Std(),
			WaitForSelector:   cfg.Browser.WaitForSelector,
			CaptureDelay:      cfg.Browser.CaptureDelay.Std(),
			UserAgent:         cfg.Crawl.UserAgent,
			DisableHeadless:   cfg.Browser.DisableHeadless,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	}
	return p
}

// Run executes one conversion end to end. A graceful cancel surfaces as a
// completed result with the partial flag set; only context cancellation (for
// instance a service shutdown) aborts mid-run.
func (p *Pipeline) Run(ctx context.Context, j *Job) (*types.ConversionResult, error) {
	opts := j.Options()
	logger := p.logger.With("job_id", j.ID(), "url", j.URL())

	tempDir, err := os.MkdirTemp("", "sitedoc-")
	if err != nil {
		return nil, &ResourceError{Resource: "temp dir", Err: err}
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			logger.Warn("temp dir cleanup failed", "dir", tempDir, "error", err)
		}
	}()

	j.setStatus(types.StatusLaunchingBrowser, 5, nil)
	browser, closeBrowser, err := p.newBrowser(ctx)
	if err != nil {
		return nil, &ResourceError{Resource: "browser", Err: err}
	}
	defer closeBrowser()

	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:    p.cfg.Crawl.UserAgent,
		Headers:      p.cfg.Crawl.Headers,
		Timeout:      p.cfg.Crawl.RequestTimeout.Std(),
		MaxBodyBytes: p.cfg.Crawl.MaxBodyBytes,
		ProxyURL:     p.cfg.Crawl.ProxyURL,
	})
	if err != nil {
		return nil, &ResourceError{Resource: "http client", Err: err}
	}
	pages := fetcher.NewComposite(browser, httpFetcher)

	j.setStatus(types.StatusDiscoveringSitemap, 10, nil)
	disc := sitemap.NewDiscoverer(pages, pages, logger)
	sm, err := disc.Discover(ctx, j.URL(), sitemap.Bounds{
		MaxDepth: opts.MaxDepth,
		MaxPages: opts.MaxPages,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	logger.Info("sitemap discovered", "pages", len(sm.Pages), "domain", sm.Domain)

	total := len(sm.Pages)
	j.setStatus(types.StatusPagesDiscovered, 15, &types.WebsiteData{TotalDiscovered: total})

	conv := converter.New(pages, converter.Options{
		StripSelectors: p.cfg.Convert.StripSelectors,
		Readability:    p.cfg.Convert.Readability,
	}, logger)

	var (
		converted []types.ConvertedPage
		started   = time.Now()
		cancelled bool
	)

	for i, node := range sm.Pages {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if j.CancelRequested() {
			cancelled = true
			logger.Info("cancel observed, stopping page processing", "processed", len(converted), "total", total)
			break
		}
		if j.AlreadyProcessed(node.URL) {
			continue
		}
		j.MarkProcessed(node.URL)

		j.setStatus(types.StatusProcessingPage, pageProgress(len(converted), total),
			progressData(node.URL, len(converted), total, started))

		convertOpts := converter.ConvertOptions{
			IncludeImages: opts.IncludeImages != nil && *opts.IncludeImages,
		}
		if opts.IncludeScreenshot != nil && *opts.IncludeScreenshot {
			convertOpts.ScreenshotPath = filepath.Join(tempDir, fmt.Sprintf("page-%d.png", i+1))
		}

		page := conv.Convert(ctx, node.URL, convertOpts)
		converted = append(converted, *page)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	j.setStatus(types.StatusGeneratingOutput, 90,
		progressData("", len(converted), total, started))

	asm := assembler.New(assembler.Options{
		OutputDir:      p.cfg.Output.Dir,
		FilenameMaxLen: p.cfg.Output.FilenameMaxLen,
	}, logger)
	result, err := asm.Assemble(opts.SaveMode, assembler.Input{
		Sitemap:        sm,
		Pages:          converted,
		Title:          opts.Title,
		IncludeSitemap: opts.IncludeSitemap != nil && *opts.IncludeSitemap,
		Partial:        cancelled,
		Processed:      len(converted),
		Total:          total,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// pageProgress maps page completion onto the 15..85 band of the progress bar.
func pageProgress(completed, total int) int {
	if total <= 0 {
		return 85
	}
	return 15 + (70*completed)/total
}

func progressData(currentPage string, completed, total int, started time.Time) *types.WebsiteData {
	data := &types.WebsiteData{
		TotalDiscovered: total,
		Completed:       completed,
		CurrentPage:     currentPage,
	}
	if currentPage != "" {
		data.Processing = 1
	}
	elapsed := time.Since(started)
	if completed > 0 && elapsed > 0 {
		rate := float64(completed) / elapsed.Seconds()
		data.ProcessingRate = rate
		remaining := total - completed
		if remaining > 0 && rate > 0 {
			eta := time.Duration(float64(remaining)/rate) * time.Second
			data.EstimatedTimeRemaining = eta.Round(time.Second).String()
		}
	}
	return data
}
