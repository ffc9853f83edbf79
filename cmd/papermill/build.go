package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"papermill/internal/batcher"
	"papermill/internal/collector"
	"papermill/internal/config"
	"papermill/internal/fetcher"
	"papermill/internal/finalizer"
	"papermill/internal/layout"
	"papermill/internal/logging"
	"papermill/internal/manifest"
	"papermill/internal/pagecount"
	"papermill/internal/services/archive"
	"papermill/internal/services/slurm"
	"papermill/internal/supervisor"
)

// pipeline bundles the constructed workers behind one config.
type pipeline struct {
	cfg       *config.Config
	logger    *slog.Logger
	fetcher   *fetcher.Fetcher
	batcher   *batcher.Batcher
	collector *collector.Collector
	finalizer *finalizer.Finalizer
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "papermill.log")},
	})
}

func buildPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	l := layout.New(cfg.Paths.BaseDir)
	events := manifest.NewEventLog(l)

	archiveClient, err := archive.NewHTTPClient(cfg.Fetch.SourceBaseURL,
		time.Duration(cfg.Fetch.RequestTimeout)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("build repository client: %w", err)
	}
	scheduler, err := slurm.New(cfg.Scheduler.SubmitCommand, cfg.Scheduler.StatusCommand,
		cfg.Scheduler.CancelCommand, cfg.Scheduler.CommandTimeout)
	if err != nil {
		return nil, fmt.Errorf("build scheduler client: %w", err)
	}

	return &pipeline{
		cfg:       cfg,
		logger:    logger,
		fetcher:   fetcher.New(cfg, archiveClient, events, logger),
		batcher:   batcher.New(cfg, scheduler, pagecount.PDFProbe{}, events, logger),
		collector: collector.New(cfg, scheduler, events, logger),
		finalizer: finalizer.New(cfg, events, logger),
	}, nil
}

// registrations orders the workers for the supervisor. Pipeline order
// matters in one-shot mode so a single pass can move an item forward.
func (p *pipeline) registrations() []supervisor.Registration {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return []supervisor.Registration{
		{Worker: p.fetcher, Interval: seconds(p.cfg.Fetch.PollInterval)},
		{Worker: p.batcher, Interval: seconds(p.cfg.Batch.PollInterval)},
		{Worker: p.collector, Interval: seconds(p.cfg.Collect.PollInterval)},
		{Worker: p.finalizer, Interval: seconds(p.cfg.Finalize.PollInterval)},
	}
}
