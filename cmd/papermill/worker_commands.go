package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"papermill/internal/supervisor"
)

// workerRun prepares the pipeline and executes one worker either as a
// single pass or as a standalone poll loop. Standalone loops skip the
// daemon lock so different workers can run as separate processes.
func workerRun(ctx *commandContext, cmd *cobra.Command, once bool, interval func(*pipeline) time.Duration,
	setup func(*pipeline) (func(), error), poll func(*pipeline) supervisor.Worker) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	if setup != nil {
		release, err := setup(p)
		if err != nil {
			return err
		}
		defer release()
	}

	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	worker := poll(p)
	if once {
		return worker.Poll(signalCtx)
	}
	return supervisor.Loop(signalCtx, cfg, logger, supervisor.Registration{
		Worker:   worker,
		Interval: interval(p),
	})
}

func addOnceFlag(cmd *cobra.Command, once *bool) {
	cmd.Flags().BoolVar(once, "once", false, "Run a single pass, then exit")
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run the fetch worker standalone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return workerRun(ctx, cmd, once,
				func(p *pipeline) time.Duration { return time.Duration(p.cfg.Fetch.PollInterval) * time.Second },
				func(p *pipeline) (func(), error) {
					return func() {}, p.fetcher.Recover()
				},
				func(p *pipeline) supervisor.Worker { return p.fetcher })
		},
	}
	addOnceFlag(cmd, &once)
	return cmd
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the batch worker standalone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return workerRun(ctx, cmd, once,
				func(p *pipeline) time.Duration { return time.Duration(p.cfg.Batch.PollInterval) * time.Second },
				func(p *pipeline) (func(), error) {
					if err := p.batcher.Acquire(); err != nil {
						return nil, err
					}
					return func() { _ = p.batcher.Release() }, nil
				},
				func(p *pipeline) supervisor.Worker { return p.batcher })
		},
	}
	addOnceFlag(cmd, &once)
	return cmd
}

func newCollectCommand(ctx *commandContext) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run the collect worker standalone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return workerRun(ctx, cmd, once,
				func(p *pipeline) time.Duration { return time.Duration(p.cfg.Collect.PollInterval) * time.Second },
				nil,
				func(p *pipeline) supervisor.Worker { return p.collector })
		},
	}
	addOnceFlag(cmd, &once)
	return cmd
}

func newFinalizeCommand(ctx *commandContext) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Run the finalize worker standalone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return workerRun(ctx, cmd, once,
				func(p *pipeline) time.Duration { return time.Duration(p.cfg.Finalize.PollInterval) * time.Second },
				nil,
				func(p *pipeline) supervisor.Worker { return p.finalizer })
		},
	}
	addOnceFlag(cmd, &once)
	return cmd
}
