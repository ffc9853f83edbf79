package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"papermill/internal/config"
	"papermill/internal/fileutil"
	"papermill/internal/layout"
	"papermill/internal/logging"
	"papermill/internal/manifest"
	"papermill/internal/records"
	"papermill/internal/services"
	"papermill/internal/services/slurm"
)

// Collector tracks open batches against the scheduler and extracts
// per-item OCR artifacts from completed ones. A batch only reaches
// completed once every member has an extracted artifact, so partial
// extraction is always safe to retry.
type Collector struct {
	cfg       *config.Config
	layout    layout.Layout
	scheduler slurm.Client
	events    *manifest.EventLog
	logger    *slog.Logger
}

// New constructs a collect worker.
func New(cfg *config.Config, scheduler slurm.Client, events *manifest.EventLog, logger *slog.Logger) *Collector {
	return &Collector{
		cfg:       cfg,
		layout:    layout.New(cfg.Paths.BaseDir),
		scheduler: scheduler,
		events:    events,
		logger:    logging.WithComponent(logger, "collector"),
	}
}

// Name identifies the worker in supervisor logs.
func (c *Collector) Name() string { return "collector" }

// Poll checks every open batch once. Scheduler status failures are logged
// and skipped so one flaky query never stalls the other batches.
func (c *Collector) Poll(ctx context.Context) error {
	ids, err := c.layout.BatchIDs()
	if err != nil {
		return err
	}
	for _, batchID := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		meta, err := c.readMeta(batchID)
		if err != nil {
			return err
		}
		if !meta.Open() {
			continue
		}

		state, err := c.scheduler.Status(ctx, meta.JobID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("scheduler status query failed", logging.Args(
				logging.String(logging.FieldBatchID, batchID),
				logging.String(logging.FieldJobID, meta.JobID),
				logging.Error(err))...)
			continue
		}

		switch state {
		case slurm.StatePending, slurm.StateRunning:
			if meta.Status == records.BatchSubmitted {
				meta.Status = records.BatchRunning
				if err := c.writeMeta(meta); err != nil {
					return err
				}
			}
		case slurm.StateFailed:
			if err := c.failBatch(meta); err != nil {
				return err
			}
		case slurm.StateCompleted:
			if err := c.extract(meta); err != nil {
				return err
			}
		default:
			c.logger.Warn("scheduler reported unknown state", logging.Args(
				logging.String(logging.FieldBatchID, batchID),
				logging.String(logging.FieldJobID, meta.JobID))...)
		}
	}
	return nil
}

// failBatch records the terminal failure: one error record per member, then
// the batch metadata. Batch content stays on disk for inspection.
func (c *Collector) failBatch(meta records.BatchMeta) error {
	cause := services.Wrap(services.ErrExternalTool, "batch", "ocr job",
		fmt.Sprintf("scheduler job %s failed", meta.JobID), nil)
	now := time.Now().UTC()
	for _, identifier := range meta.Identifiers {
		record := records.ErrorRecord{
			Identifier: identifier,
			Stage:      "batch",
			ErrorKind:  services.Kind(cause),
			Message:    cause.Error(),
			Timestamp:  now,
		}
		if err := fileutil.WriteJSONAtomic(c.layout.ErrorPath("batch", identifier), record); err != nil {
			return fmt.Errorf("write error record for %s: %w", identifier, err)
		}
	}

	meta.Status = records.BatchFailed
	meta.FailedAt = &now
	meta.LastError = cause.Error()
	if err := c.writeMeta(meta); err != nil {
		return err
	}
	c.logger.Error("batch failed", logging.Args(
		logging.String(logging.FieldBatchID, meta.BatchID),
		logging.String(logging.FieldJobID, meta.JobID),
		logging.Int("items", meta.TotalItems))...)
	_ = c.events.Append("batch_failed", "", meta.BatchID, meta.LastError)
	return nil
}

// extract writes per-item artifacts for every member found in the batch
// results. Members still missing leave the batch running; a later pass
// retries after the results directory fills in.
func (c *Collector) extract(meta records.BatchMeta) error {
	grouped, err := c.parseResults(meta.BatchID)
	if err != nil {
		return err
	}

	extracted := 0
	for _, identifier := range meta.Identifiers {
		if _, err := os.Stat(c.layout.ExtractedResultPath(identifier)); err == nil {
			extracted++
			continue
		}
		pages, ok := grouped[identifier]
		if !ok {
			continue
		}
		if err := c.writeArtifacts(meta, identifier, pages); err != nil {
			return err
		}
		extracted++
	}

	if extracted < len(meta.Identifiers) {
		meta.LastError = fmt.Sprintf("%d of %d members extracted", extracted, len(meta.Identifiers))
		if meta.Status == records.BatchSubmitted {
			meta.Status = records.BatchRunning
		}
		if err := c.writeMeta(meta); err != nil {
			return err
		}
		c.logger.Warn("batch results incomplete", logging.Args(
			logging.String(logging.FieldBatchID, meta.BatchID),
			logging.String("progress", meta.LastError))...)
		return nil
	}

	// Every member has its artifact; the batch copies are now redundant.
	for _, identifier := range meta.Identifiers {
		contentPath := c.layout.BatchContentPath(meta.BatchID, identifier)
		if err := os.Remove(contentPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove batch copy of %s: %w", identifier, err)
		}
	}
	now := time.Now().UTC()
	meta.Status = records.BatchCompleted
	meta.CompletedAt = &now
	meta.LastError = ""
	if err := c.writeMeta(meta); err != nil {
		return err
	}
	c.logger.Info("batch completed", logging.Args(
		logging.String(logging.FieldBatchID, meta.BatchID),
		logging.Int("items", meta.TotalItems))...)
	_ = c.events.Append("batch_completed", "", meta.BatchID, fmt.Sprintf("%d items extracted", meta.TotalItems))
	return nil
}

func (c *Collector) writeArtifacts(meta records.BatchMeta, identifier string, pages []map[string]any) error {
	var buf bytes.Buffer
	for _, page := range pages {
		line, err := json.Marshal(page)
		if err != nil {
			return fmt.Errorf("marshal page for %s: %w", identifier, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	resultPath := c.layout.ExtractedResultPath(identifier)
	if _, _, err := fileutil.WriteAtomic(resultPath, &buf); err != nil {
		return fmt.Errorf("write artifact for %s: %w", identifier, err)
	}

	completion := records.CompletionMeta{
		Identifier:     identifier,
		BatchID:        meta.BatchID,
		TotalPages:     len(pages),
		OcrCompletedAt: time.Now().UTC(),
		ResultFile:     filepath.Base(resultPath),
	}
	if meta.SubmittedAt != nil {
		completion.BatchDuration = completion.OcrCompletedAt.Sub(*meta.SubmittedAt)
	}
	if err := fileutil.WriteJSONAtomic(c.layout.ExtractedMetaPath(identifier), completion); err != nil {
		return fmt.Errorf("write completion meta for %s: %w", identifier, err)
	}
	_ = c.events.Append("item_extracted", identifier, meta.BatchID, fmt.Sprintf("%d pages", len(pages)))
	return nil
}

// parseResults reads every JSON artifact under the batch results directory
// and groups the page records by item identifier. Unparseable files are
// skipped with a warning; a worker node may still be mid-write.
func (c *Collector) parseResults(batchID string) (map[string][]map[string]any, error) {
	grouped := make(map[string][]map[string]any)
	root := c.layout.BatchResultsDir(batchID)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case strings.HasSuffix(path, ".jsonl"):
			if err := c.parseLines(path, grouped); err != nil {
				c.logger.Warn("skipping unreadable result file", logging.Args(
					logging.String("file", path), logging.Error(err))...)
			}
		case strings.HasSuffix(path, ".json"):
			if err := c.parseValue(path, grouped); err != nil {
				c.logger.Warn("skipping unreadable result file", logging.Args(
					logging.String("file", path), logging.Error(err))...)
			}
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("walk results of %s: %w", batchID, err)
	}
	return grouped, nil
}

func (c *Collector) parseLines(path string, grouped map[string][]map[string]any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var value any
		if err := json.Unmarshal(line, &value); err != nil {
			return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		groupRecords(value, "", grouped)
	}
	return nil
}

func (c *Collector) parseValue(path string, grouped map[string][]map[string]any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	groupRecords(value, "", grouped)
	return nil
}

func (c *Collector) readMeta(batchID string) (records.BatchMeta, error) {
	var meta records.BatchMeta
	if err := fileutil.ReadJSON(c.layout.BatchMetaPath(batchID), &meta); err != nil {
		return meta, fmt.Errorf("read batch meta for %s: %w", batchID, err)
	}
	return meta, nil
}

func (c *Collector) writeMeta(meta records.BatchMeta) error {
	if err := fileutil.WriteJSONAtomic(c.layout.BatchMetaPath(meta.BatchID), meta); err != nil {
		return fmt.Errorf("write batch meta for %s: %w", meta.BatchID, err)
	}
	return nil
}
