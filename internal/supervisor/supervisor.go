package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"papermill/internal/config"
	"papermill/internal/fileutil"
	"papermill/internal/layout"
	"papermill/internal/logging"
)

const lockFile = "papermill.lock"

// Worker is one polling pipeline stage. Poll performs a single bounded
// pass; the supervisor owns all looping and timing.
type Worker interface {
	Name() string
	Poll(ctx context.Context) error
}

// Registration pairs a worker with its poll interval.
type Registration struct {
	Worker   Worker
	Interval time.Duration
}

// Supervisor runs the registered workers as independent poll loops. Each
// worker carries a consecutive-failure budget; exhausting it shuts the
// whole daemon down, since a permanently broken stage starves the rest.
type Supervisor struct {
	cfg    *config.Config
	layout layout.Layout
	logger *slog.Logger
	lock   *flock.Flock

	workers []Registration

	mu      sync.Mutex
	running bool
}

// New constructs a supervisor over the given workers.
func New(cfg *config.Config, logger *slog.Logger, workers ...Registration) *Supervisor {
	l := layout.New(cfg.Paths.BaseDir)
	return &Supervisor{
		cfg:     cfg,
		layout:  l,
		logger:  logging.WithComponent(logger, "supervisor"),
		lock:    flock.New(filepath.Join(l.Manifests(), lockFile)),
		workers: workers,
	}
}

// Run drives all workers until the context is cancelled or a worker
// exhausts its failure budget. Cancellation takes effect at pass
// granularity; a pass in flight always finishes or fails whole.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(s.workers))
	var wg sync.WaitGroup
	for _, reg := range s.workers {
		wg.Add(1)
		go func(reg Registration) {
			defer wg.Done()
			if err := s.loop(ctx, reg); err != nil {
				errCh <- err
				cancel()
			}
		}(reg)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Once runs a single pass of every worker in pipeline order. Used by the
// one-shot command mode and by tests that want deterministic progress.
func (s *Supervisor) Once(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	for _, reg := range s.workers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.poll(ctx, reg.Worker); err != nil {
			return fmt.Errorf("%s: %w", reg.Worker.Name(), err)
		}
	}
	return nil
}

// Loop runs a single worker's poll loop without the daemon lock, so the
// standalone worker commands can run as separate processes against one
// pipeline root. The failure budget still applies.
func Loop(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg Registration) error {
	s := New(cfg, logger)
	return s.loop(ctx, reg)
}

func (s *Supervisor) loop(ctx context.Context, reg Registration) error {
	limit := s.cfg.Workflow.RestartLimit
	if limit < 1 {
		limit = 1
	}
	retryInterval := time.Duration(s.cfg.Workflow.ErrorRetryInterval) * time.Second

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		err := s.poll(ctx, reg.Worker)
		switch {
		case err == nil:
			failures = 0
		case ctx.Err() != nil:
			return nil
		default:
			failures++
			s.logger.Error("worker pass failed", logging.Args(
				logging.String(logging.FieldComponent, reg.Worker.Name()),
				logging.Int("consecutive_failures", failures),
				logging.Int("failure_budget", limit),
				logging.Error(err))...)
			if failures >= limit {
				return fmt.Errorf("worker %s exhausted failure budget (%d): %w", reg.Worker.Name(), limit, err)
			}
		}

		wait := reg.Interval
		if err != nil && retryInterval > 0 {
			wait = retryInterval
		}
		if stop := sleepCtx(ctx, wait); stop {
			return nil
		}
	}
}

// poll runs one worker pass with panic containment. A panicking worker
// counts as a failed pass rather than tearing down the process.
func (s *Supervisor) poll(ctx context.Context, w Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %s panicked: %v", w.Name(), r)
		}
	}()
	return w.Poll(ctx)
}

// acquire takes the exclusive daemon lock so two supervisors never share a
// pipeline root.
func (s *Supervisor) acquire() error {
	if err := os.MkdirAll(s.layout.Manifests(), 0o755); err != nil {
		return fmt.Errorf("ensure manifests dir: %w", err)
	}
	if err := fileutil.CheckWritable(s.layout.Base()); err != nil {
		return err
	}
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another papermill instance is already running against %s", s.layout.Base())
	}
	return nil
}

func (s *Supervisor) release() {
	_ = s.lock.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
