package finalizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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
)

const resultSuffix = ".ocr.jsonl"

// Finalizer consolidates extracted items into their final records and
// retires the intermediate files. The final record is written before
// anything is deleted, so a crash can duplicate cleanup work but never
// lose data.
type Finalizer struct {
	cfg    *config.Config
	layout layout.Layout
	events *manifest.EventLog
	logger *slog.Logger
}

// New constructs a finalize worker.
func New(cfg *config.Config, events *manifest.EventLog, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		cfg:    cfg,
		layout: layout.New(cfg.Paths.BaseDir),
		events: events,
		logger: logging.WithComponent(logger, "finalizer"),
	}
}

// Name identifies the worker in supervisor logs.
func (f *Finalizer) Name() string { return "finalizer" }

// Poll finalizes every extracted item once, then refreshes the derived
// progress manifest.
func (f *Finalizer) Poll(ctx context.Context) error {
	entries, err := os.ReadDir(f.layout.Extracted())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan extracted: %w", err)
	}

	finalized := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, resultSuffix) {
			continue
		}
		identifier := strings.TrimSuffix(name, resultSuffix)
		if err := f.finalizeOne(identifier); err != nil {
			return err
		}
		finalized++
	}

	if finalized > 0 {
		f.logger.Info("finalize pass complete", logging.Args(
			logging.Int("finalized", finalized))...)
		if _, err := manifest.Rebuild(f.layout); err != nil {
			f.logger.Warn("progress manifest rebuild failed", logging.Args(logging.Error(err))...)
		}
	}
	return nil
}

// finalizeOne writes the consolidated record, then deletes the item's
// intermediate files. An already-finalized item goes straight to cleanup,
// which makes crash recovery a plain re-run.
func (f *Finalizer) finalizeOne(identifier string) error {
	finalPath := f.layout.FinalizedPath(identifier)
	if _, err := os.Stat(finalPath); err == nil {
		return f.cleanup(identifier)
	}

	pages, err := f.readPages(identifier)
	if err != nil {
		return err
	}

	record := records.FinalRecord{
		Identifier:  identifier,
		OcrPages:    pages,
		TotalPages:  len(pages),
		FinalizedAt: time.Now().UTC(),
	}

	var meta records.ItemMeta
	if err := fileutil.ReadJSON(f.layout.ItemMetaPath(identifier), &meta); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read item meta for %s: %w", identifier, err)
		}
		// Download metadata is gone; emit a degraded record rather than
		// stranding the OCR output.
		record.Degraded = true
		f.logger.Warn("download metadata missing, writing degraded record", logging.Args(
			logging.String(logging.FieldIdentifier, identifier))...)
	} else {
		record.Download = &meta
	}

	if err := fileutil.WriteJSONAtomic(finalPath, record); err != nil {
		return fmt.Errorf("write final record for %s: %w", identifier, err)
	}
	f.logger.Info("item finalized", logging.Args(
		logging.String(logging.FieldIdentifier, identifier),
		logging.Int("pages", record.TotalPages),
		logging.Bool("degraded", record.Degraded))...)
	_ = f.events.Append("item_finalized", identifier, "", fmt.Sprintf("%d pages", record.TotalPages))

	return f.cleanup(identifier)
}

func (f *Finalizer) readPages(identifier string) ([]map[string]any, error) {
	data, err := os.ReadFile(f.layout.ExtractedResultPath(identifier))
	if err != nil {
		return nil, fmt.Errorf("read artifact for %s: %w", identifier, err)
	}
	var pages []map[string]any
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var page map[string]any
		if err := json.Unmarshal(line, &page); err != nil {
			return nil, fmt.Errorf("parse artifact for %s: %w", identifier, err)
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// cleanup removes every intermediate file the item no longer needs. All
// removals tolerate absence; a crashed earlier pass may have done part of
// the work.
func (f *Finalizer) cleanup(identifier string) error {
	targets := []string{
		f.layout.ExtractedResultPath(identifier),
		f.layout.ExtractedMetaPath(identifier),
		f.layout.ContentPath(identifier),
		f.layout.ItemMetaPath(identifier),
		f.layout.ReadyMarker(identifier),
	}
	for _, path := range targets {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}
