package batcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"papermill/internal/config"
	"papermill/internal/fileutil"
	"papermill/internal/layout"
	"papermill/internal/logging"
	"papermill/internal/manifest"
	"papermill/internal/pagecount"
	"papermill/internal/records"
	"papermill/internal/services"
	"papermill/internal/services/slurm"
)

const lockFile = "batcher.lock"

// Batcher groups ready items into batches by cumulative page count and
// submits them to the scheduler. Exactly one batcher may run against a
// pipeline root at a time; Acquire enforces that with an exclusive lock.
type Batcher struct {
	cfg       *config.Config
	layout    layout.Layout
	scheduler slurm.Client
	probe     pagecount.Probe
	events    *manifest.EventLog
	logger    *slog.Logger
	lock      *flock.Flock

	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs a batch worker.
func New(cfg *config.Config, scheduler slurm.Client, probe pagecount.Probe, events *manifest.EventLog, logger *slog.Logger) *Batcher {
	l := layout.New(cfg.Paths.BaseDir)
	return &Batcher{
		cfg:       cfg,
		layout:    l,
		scheduler: scheduler,
		probe:     probe,
		events:    events,
		logger:    logging.WithComponent(logger, "batcher"),
		lock:      flock.New(filepath.Join(l.Manifests(), lockFile)),
		sleep:     sleepCtx,
	}
}

// Name identifies the worker in supervisor logs.
func (b *Batcher) Name() string { return "batcher" }

// Acquire takes the exclusive batcher lock, failing fast when another
// instance already holds it. Concurrent batchers would race on the same
// ready markers, so startup is the rejection point.
func (b *Batcher) Acquire() error {
	if err := os.MkdirAll(b.layout.Manifests(), 0o755); err != nil {
		return fmt.Errorf("ensure manifests dir: %w", err)
	}
	locked, err := b.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire batcher lock: %w", err)
	}
	if !locked {
		return services.Wrap(services.ErrConfiguration, "batch", "acquire lock",
			"another batcher instance is already running against this pipeline", nil)
	}
	return nil
}

// Release drops the batcher lock.
func (b *Batcher) Release() error {
	return b.lock.Unlock()
}

// Poll runs one batching pass: recover batches stranded before submission,
// sweep unusable markers, then group and submit everything currently ready.
func (b *Batcher) Poll(ctx context.Context) error {
	if err := b.resubmitStranded(ctx); err != nil {
		return err
	}
	if err := b.sweepBrokenMarkers(); err != nil {
		return err
	}

	ready, err := b.listReady()
	if err != nil {
		return err
	}
	if len(ready) == 0 {
		return nil
	}

	groups := b.group(ready)
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		batchID, err := b.createBatch(group)
		if err != nil {
			return err
		}
		if err := b.submit(ctx, batchID); err != nil {
			return err
		}
	}
	return nil
}

type readyItem struct {
	identifier string
	pages      int
}

// listReady scans 02_ready and sizes each marker. Items whose page probe
// fails get the configured default size rather than blocking the batch.
func (b *Batcher) listReady() ([]readyItem, error) {
	entries, err := os.ReadDir(b.layout.Ready())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan ready: %w", err)
	}

	var items []readyItem
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".pdf") {
			continue
		}
		identifier := strings.TrimSuffix(name, ".pdf")
		pages, err := b.probe.Measure(filepath.Join(b.layout.Ready(), name))
		if err != nil {
			pages = b.cfg.Batch.DefaultSize
			b.logger.Warn("page probe failed, using default size", logging.Args(
				logging.String(logging.FieldIdentifier, identifier),
				logging.Int("default_size", pages),
				logging.Error(err))...)
		}
		items = append(items, readyItem{identifier: identifier, pages: pages})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].identifier < items[j].identifier })
	return items, nil
}

// group accumulates items in discovery order, closing a batch before any
// item that would push it past the page threshold. An oversized single item
// still forms its own batch; nothing is ever left unbatched.
func (b *Batcher) group(items []readyItem) [][]readyItem {
	threshold := b.cfg.Batch.SizeThreshold
	var groups [][]readyItem
	var current []readyItem
	total := 0
	for _, item := range items {
		if len(current) > 0 && total+item.pages > threshold {
			groups = append(groups, current)
			current = nil
			total = 0
		}
		current = append(current, item)
		total += item.pages
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// createBatch allocates the next batch directory, records membership, and
// moves the markers in. The metadata lands before the moves so a crash
// mid-move leaves a recoverable created batch.
func (b *Batcher) createBatch(group []readyItem) (string, error) {
	batchID, err := b.layout.NextBatchID()
	if err != nil {
		return "", fmt.Errorf("allocate batch id: %w", err)
	}
	for _, dir := range []string{b.layout.BatchResultsDir(batchID), b.layout.BatchLogsDir(batchID)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create batch dir: %w", err)
		}
	}

	meta := records.BatchMeta{
		BatchID:    batchID,
		Status:     records.BatchCreated,
		CreatedAt:  time.Now().UTC(),
		TotalItems: len(group),
	}
	for _, item := range group {
		meta.Identifiers = append(meta.Identifiers, item.identifier)
		meta.TotalPages += item.pages
	}
	if err := fileutil.WriteJSONAtomic(b.layout.BatchMetaPath(batchID), meta); err != nil {
		return "", fmt.Errorf("write batch meta: %w", err)
	}

	for _, item := range group {
		src := b.layout.ReadyMarker(item.identifier)
		dst := b.layout.BatchContentPath(batchID, item.identifier)
		if err := fileutil.Move(src, dst); err != nil {
			return "", fmt.Errorf("claim %s for %s: %w", item.identifier, batchID, err)
		}
	}

	b.logger.Info("batch created", logging.Args(
		logging.String(logging.FieldBatchID, batchID),
		logging.Int("items", meta.TotalItems),
		logging.Int("pages", meta.TotalPages))...)
	_ = b.events.Append("batch_created", "", batchID, fmt.Sprintf("%d items, %d pages", meta.TotalItems, meta.TotalPages))
	return batchID, nil
}

// submit hands the batch to the scheduler, retrying with backoff inside a
// bounded attempt budget. The attempt counter is persisted in the batch
// metadata after every try, so a crash mid-pass never resets it; a batch
// that spends the whole budget is marked failed for manual intervention
// rather than retried again.
func (b *Batcher) submit(ctx context.Context, batchID string) error {
	meta, err := b.readMeta(batchID)
	if err != nil {
		return err
	}

	budget := b.cfg.Batch.SubmitAttempts
	if budget < 1 {
		budget = 1
	}
	for meta.SubmitAttempts < budget {
		if meta.SubmitAttempts > 0 {
			if err := b.sleep(ctx, backoff(meta.SubmitAttempts)); err != nil {
				return err
			}
		}
		jobID, err := b.scheduler.Submit(ctx, b.layout.BatchDir(batchID))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			meta.SubmitAttempts++
			meta.LastError = err.Error()
			if werr := fileutil.WriteJSONAtomic(b.layout.BatchMetaPath(batchID), meta); werr != nil {
				return fmt.Errorf("record submit failure of %s: %w", batchID, werr)
			}
			b.logger.Warn("batch submission failed", logging.Args(
				logging.String(logging.FieldBatchID, batchID),
				logging.Int("attempt", meta.SubmitAttempts),
				logging.Int("attempt_budget", budget),
				logging.Error(err))...)
			continue
		}
		now := time.Now().UTC()
		meta.JobID = jobID
		meta.Status = records.BatchSubmitted
		meta.SubmitAttempts++
		meta.SubmittedAt = &now
		meta.LastError = ""
		if err := fileutil.WriteJSONAtomic(b.layout.BatchMetaPath(batchID), meta); err != nil {
			return fmt.Errorf("record submission of %s: %w", batchID, err)
		}
		b.logger.Info("batch submitted", logging.Args(
			logging.String(logging.FieldBatchID, batchID),
			logging.String(logging.FieldJobID, jobID))...)
		_ = b.events.Append("batch_submitted", "", batchID, "job "+jobID)
		return nil
	}
	return b.failSubmission(meta)
}

// failSubmission marks a batch whose submit budget is spent as terminally
// failed: one error record per member, then the batch metadata. The batch
// directory stays on disk for inspection.
func (b *Batcher) failSubmission(meta records.BatchMeta) error {
	cause := services.Wrap(services.ErrExternalTool, "batch", "submit",
		fmt.Sprintf("submission of %s abandoned after %d attempts: %s",
			meta.BatchID, meta.SubmitAttempts, meta.LastError), nil)
	now := time.Now().UTC()
	for _, identifier := range meta.Identifiers {
		record := records.ErrorRecord{
			Identifier: identifier,
			Stage:      "batch",
			ErrorKind:  services.Kind(cause),
			Message:    cause.Error(),
			Timestamp:  now,
			RetryCount: meta.SubmitAttempts - 1,
		}
		if err := fileutil.WriteJSONAtomic(b.layout.ErrorPath("batch", identifier), record); err != nil {
			return fmt.Errorf("write error record for %s: %w", identifier, err)
		}
	}

	meta.Status = records.BatchFailed
	meta.FailedAt = &now
	meta.LastError = cause.Error()
	if err := fileutil.WriteJSONAtomic(b.layout.BatchMetaPath(meta.BatchID), meta); err != nil {
		return fmt.Errorf("record submit failure of %s: %w", meta.BatchID, err)
	}
	b.logger.Error("batch submission abandoned", logging.Args(
		logging.String(logging.FieldBatchID, meta.BatchID),
		logging.Int("attempts", meta.SubmitAttempts),
		logging.Int("items", meta.TotalItems))...)
	_ = b.events.Append("batch_submit_failed", "", meta.BatchID, meta.LastError)
	return nil
}

// resubmitStranded finishes batches a crash left in created state: members
// still sitting in 02_ready are claimed, then submission is retried.
func (b *Batcher) resubmitStranded(ctx context.Context) error {
	ids, err := b.layout.BatchIDs()
	if err != nil {
		return err
	}
	for _, batchID := range ids {
		meta, err := b.readMeta(batchID)
		if err != nil {
			return err
		}
		if meta.Status != records.BatchCreated {
			continue
		}
		for _, identifier := range meta.Identifiers {
			dst := b.layout.BatchContentPath(batchID, identifier)
			if _, err := os.Stat(dst); err == nil {
				continue
			}
			src := b.layout.ReadyMarker(identifier)
			if _, err := os.Stat(src); err != nil {
				continue
			}
			if err := fileutil.Move(src, dst); err != nil {
				return fmt.Errorf("reclaim %s for %s: %w", identifier, batchID, err)
			}
		}
		b.logger.Info("retrying stranded batch", logging.Args(
			logging.String(logging.FieldBatchID, batchID))...)
		if err := b.submit(ctx, batchID); err != nil {
			return err
		}
	}
	return nil
}

// sweepBrokenMarkers removes entries in 02_ready that can never be batched:
// symlinks and markers whose sharded content has vanished.
func (b *Batcher) sweepBrokenMarkers() error {
	entries, err := os.ReadDir(b.layout.Ready())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan ready: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(b.layout.Ready(), name)
		if entry.Type()&os.ModeSymlink != 0 {
			b.logger.Warn("removing symlink marker", logging.Args(logging.String("marker", name))...)
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove symlink marker %s: %w", name, err)
			}
			continue
		}
		if entry.IsDir() || !strings.HasSuffix(name, ".pdf") {
			continue
		}
		identifier := strings.TrimSuffix(name, ".pdf")
		same, err := fileutil.SameFile(path, b.layout.ContentPath(identifier))
		if err != nil || !same {
			b.logger.Warn("removing orphaned marker", logging.Args(
				logging.String(logging.FieldIdentifier, identifier))...)
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove orphaned marker %s: %w", name, err)
			}
		}
	}
	return nil
}

func (b *Batcher) readMeta(batchID string) (records.BatchMeta, error) {
	var meta records.BatchMeta
	if err := fileutil.ReadJSON(b.layout.BatchMetaPath(batchID), &meta); err != nil {
		return meta, fmt.Errorf("read batch meta for %s: %w", batchID, err)
	}
	return meta, nil
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt-1)) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
