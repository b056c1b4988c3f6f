package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sitedoc/internal/config"
	"sitedoc/internal/job"
	"sitedoc/pkg/types"
)

func main() {
	cfgPath := flag.String("config", "", "Path to service configuration (defaults apply when empty)")
	outFile := flag.String("o", "", "Write the combined document to this file instead of stdout")
	depth := flag.Int("depth", 0, "Maximum link depth from the root page")
	pages := flag.Int("pages", 0, "Maximum number of pages to process")
	mode := flag.String("mode", "", "Output mode: combined or separate")
	title := flag.String("title", "", "Document title override")
	screenshot := flag.Bool("screenshot", false, "Capture a screenshot per page")
	verbose := flag.Bool("v", false, "Log progress to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <url>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	rootURL := flag.Arg(0)

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := cfg.DefaultOptions()
	if *depth > 0 {
		opts.MaxDepth = *depth
	}
	if *pages > 0 {
		opts.MaxPages = *pages
	}
	if *mode != "" {
		opts.SaveMode = types.SaveMode(*mode)
	}
	if *title != "" {
		opts.Title = *title
	}
	if *screenshot {
		v := true
		opts.IncludeScreenshot = &v
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline := job.NewPipeline(cfg, logger)
	manager := job.NewManager(pipeline, job.NewMemoryStore(), 1, ctx, logger)

	j, err := manager.Submit(job.Request{URL: rootURL, Options: opts})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start conversion: %v\n", err)
		os.Exit(1)
	}

	events, cancel := j.Subscribe()
	defer cancel()
	for evt := range events {
		if *verbose {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", evt.Progress, evt.Status)
		}
		if evt.Status.Terminal() {
			break
		}
	}
	manager.Shutdown()

	snap := j.Snapshot()
	if snap.Status != types.StatusCompleted {
		fmt.Fprintf(os.Stderr, "conversion %s: %s\n", snap.Status, snap.Error)
		os.Exit(1)
	}

	result := j.Result()
	switch result.SaveMode {
	case types.SaveModeSeparate:
		fmt.Fprintf(os.Stderr, "wrote %d files to %s\n", len(result.Files), result.OutputDir)
	default:
		if *outFile != "" {
			if err := os.WriteFile(*outFile, []byte(result.Document), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "write output: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "wrote %s (%d pages)\n", *outFile, result.Processed)
		} else {
			fmt.Print(result.Document)
		}
	}
	if result.Partial {
		fmt.Fprintf(os.Stderr, "warning: partial result, %d of %d pages processed\n", result.Processed, result.Total)
	}
}
