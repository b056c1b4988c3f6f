package assembler

import (
	"fmt"
	"log/slog"

	"sitedoc/pkg/types"
)

// AssemblyError reports a fatal output-generation failure. It occurs after
// discovery and conversion have already succeeded, so it carries the mode
// that failed for diagnostics.
type AssemblyError struct {
	Mode types.SaveMode
	Err  error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble %s output: %v", e.Mode, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// Input is everything the assembler needs for one job's output.
type Input struct {
	Sitemap        *types.Sitemap
	Pages          []types.ConvertedPage
	Title          string // optional override; sitemap title otherwise
	IncludeSitemap bool   // render the structure diagram in combined mode
	Partial        bool
	Processed      int
	Total          int
}

// Options configures the assembler once per service instance.
type Options struct {
	OutputDir      string
	FilenameMaxLen int
}

// Assembler turns a sitemap plus converted pages into the final output.
type Assembler struct {
	opts   Options
	logger *slog.Logger
}

// New constructs an assembler.
func New(opts Options, logger *slog.Logger) *Assembler {
	if opts.FilenameMaxLen <= 0 {
		opts.FilenameMaxLen = 80
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{opts: opts, logger: logger}
}

// Assemble produces the result for the selected mode: a single in-memory
// document for combined, a directory of files for separate.
func (a *Assembler) Assemble(mode types.SaveMode, in Input) (*types.ConversionResult, error) {
	result := &types.ConversionResult{
		RootURL:   in.Sitemap.RootURL,
		Domain:    in.Sitemap.Domain,
		SaveMode:  mode,
		Pages:     in.Pages,
		Partial:   in.Partial,
		Processed: in.Processed,
		Total:     in.Total,
	}

	switch mode {
	case types.SaveModeSeparate:
		dir, files, err := a.writeSeparate(in)
		if err != nil {
			return nil, &AssemblyError{Mode: mode, Err: err}
		}
		result.OutputDir = dir
		result.Files = files
	default:
		result.SaveMode = types.SaveModeCombined
		result.Document = a.buildCombined(in)
	}
	return result, nil
}

func (in Input) title() string {
	if in.Title != "" {
		return in.Title
	}
	if in.Sitemap.Title != "" {
		return in.Sitemap.Title
	}
	return in.Sitemap.Domain
}
