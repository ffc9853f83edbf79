package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"papermill/internal/supervisor"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all pipeline workers under the supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := p.batcher.Acquire(); err != nil {
				return err
			}
			defer p.batcher.Release()
			if err := p.fetcher.Recover(); err != nil {
				return fmt.Errorf("startup recovery: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			sup := supervisor.New(cfg, logger, p.registrations()...)
			if once {
				return sup.Once(signalCtx)
			}
			logger.Info("papermill daemon starting",
				"base_dir", cfg.Paths.BaseDir)
			return sup.Run(signalCtx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass of each worker in pipeline order, then exit")
	return cmd
}
