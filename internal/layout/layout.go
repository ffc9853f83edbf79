package layout

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Stage identifies a point in the item lifecycle. An item's stage is derived
// from where its files live, never stored redundantly.
type Stage string

const (
	StageQueued     Stage = "queued"
	StageDownloaded Stage = "downloaded"
	StageReady      Stage = "ready"
	StageInBatch    Stage = "in_batch"
	StageExtracted  Stage = "extracted"
	StageFinalized  Stage = "finalized"
	StageFailed     Stage = "failed"
)

// Directory names under the pipeline base. The numeric prefixes fix the
// forward order of the flow.
const (
	DownloadedDir = "01_downloaded"
	ReadyDir      = "02_ready"
	ProcessingDir = "03_processing"
	ExtractedDir  = "04_extracted"
	FinalizedDir  = "05_finalized"
	ErrorsDir     = "99_errors"
	ManifestsDir  = "_manifests"
)

const batchPrefix = "batch_"

// Layout resolves every pipeline path from a single base directory.
type Layout struct {
	base string
}

// New returns a Layout rooted at base.
func New(base string) Layout {
	return Layout{base: base}
}

// Base returns the pipeline root.
func (l Layout) Base() string { return l.base }

// EnsureDirectories creates the stage skeleton.
func (l Layout) EnsureDirectories() error {
	for _, dir := range []string{
		l.Downloaded(), l.Ready(), l.Processing(),
		l.Extracted(), l.Finalized(), l.Errors(), l.Manifests(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (l Layout) Downloaded() string { return filepath.Join(l.base, DownloadedDir) }
func (l Layout) Ready() string      { return filepath.Join(l.base, ReadyDir) }
func (l Layout) Processing() string { return filepath.Join(l.base, ProcessingDir) }
func (l Layout) Extracted() string  { return filepath.Join(l.base, ExtractedDir) }
func (l Layout) Finalized() string  { return filepath.Join(l.base, FinalizedDir) }
func (l Layout) Errors() string     { return filepath.Join(l.base, ErrorsDir) }
func (l Layout) Manifests() string  { return filepath.Join(l.base, ManifestsDir) }

// Shard returns the fixed-depth shard segment for an identifier: the first
// two hex digits of its FNV-1a hash. Applied uniformly at the downloaded
// and finalized write points so large corpora never pile into one directory.
func Shard(identifier string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identifier))
	return fmt.Sprintf("%02x", h.Sum32()>>24)
}

// ContentPath returns the sharded content location in 01_downloaded.
func (l Layout) ContentPath(identifier string) string {
	return filepath.Join(l.Downloaded(), Shard(identifier), identifier+".pdf")
}

// ItemMetaPath returns the sharded download metadata location.
func (l Layout) ItemMetaPath(identifier string) string {
	return filepath.Join(l.Downloaded(), Shard(identifier), identifier+".meta.json")
}

// ReadyMarker returns the hard-link marker path in 02_ready.
func (l Layout) ReadyMarker(identifier string) string {
	return filepath.Join(l.Ready(), identifier+".pdf")
}

// BatchDir returns the directory for a batch id.
func (l Layout) BatchDir(batchID string) string {
	return filepath.Join(l.Processing(), batchID)
}

// BatchMetaPath returns the batch metadata record location.
func (l Layout) BatchMetaPath(batchID string) string {
	return filepath.Join(l.BatchDir(batchID), "batch.meta.json")
}

// BatchResultsDir returns the scheduler-populated results area of a batch.
func (l Layout) BatchResultsDir(batchID string) string {
	return filepath.Join(l.BatchDir(batchID), "results")
}

// BatchLogsDir returns the log area of a batch.
func (l Layout) BatchLogsDir(batchID string) string {
	return filepath.Join(l.BatchDir(batchID), "logs")
}

// BatchContentPath returns an item's location inside a batch directory.
func (l Layout) BatchContentPath(batchID, identifier string) string {
	return filepath.Join(l.BatchDir(batchID), identifier+".pdf")
}

// ExtractedResultPath returns the per-item OCR artifact in 04_extracted.
func (l Layout) ExtractedResultPath(identifier string) string {
	return filepath.Join(l.Extracted(), identifier+".ocr.jsonl")
}

// ExtractedMetaPath returns the per-item completion metadata in 04_extracted.
func (l Layout) ExtractedMetaPath(identifier string) string {
	return filepath.Join(l.Extracted(), identifier+".meta.json")
}

// FinalizedPath returns the sharded consolidated record in 05_finalized.
func (l Layout) FinalizedPath(identifier string) string {
	return filepath.Join(l.Finalized(), Shard(identifier), identifier+".json")
}

// ErrorPath returns the error-channel record location for a stage.
func (l Layout) ErrorPath(stage, identifier string) string {
	return filepath.Join(l.Errors(), stage, identifier+".error.json")
}

// BatchIDs lists existing batch directories in ascending order.
func (l Layout) BatchIDs() ([]string, error) {
	entries, err := os.ReadDir(l.Processing())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), batchPrefix) {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// NextBatchID derives the next sequential batch id by scanning the
// processing directory. The directory listing, not a manifest counter, is
// authoritative.
func (l Layout) NextBatchID() (string, error) {
	ids, err := l.BatchIDs()
	if err != nil {
		return "", err
	}
	highest := 0
	for _, id := range ids {
		raw := strings.TrimPrefix(id, batchPrefix)
		if n, err := strconv.Atoi(raw); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%04d", batchPrefix, highest+1), nil
}

// StageOf derives an item's current stage from directory placement. The
// result is the furthest stage reached; hard-linked content in 01 backs
// markers in later stages by design. An error record is terminal and
// outranks the transit stages, so members of a failed batch read failed
// even while their batch copies stay on disk for inspection.
func (l Layout) StageOf(identifier string) (Stage, error) {
	if exists(l.FinalizedPath(identifier)) {
		return StageFinalized, nil
	}
	if exists(l.ExtractedResultPath(identifier)) {
		return StageExtracted, nil
	}
	failed, err := l.hasErrorRecord(identifier)
	if err != nil {
		return "", err
	}
	if failed {
		return StageFailed, nil
	}
	inBatch, err := l.inAnyBatch(identifier)
	if err != nil {
		return "", err
	}
	if inBatch {
		return StageInBatch, nil
	}
	if exists(l.ReadyMarker(identifier)) {
		return StageReady, nil
	}
	if exists(l.ContentPath(identifier)) {
		return StageDownloaded, nil
	}
	return StageQueued, nil
}

func (l Layout) inAnyBatch(identifier string) (bool, error) {
	ids, err := l.BatchIDs()
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if exists(l.BatchContentPath(id, identifier)) {
			return true, nil
		}
	}
	return false, nil
}

func (l Layout) hasErrorRecord(identifier string) (bool, error) {
	entries, err := os.ReadDir(l.Errors())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if exists(filepath.Join(l.Errors(), entry.Name(), identifier+".error.json")) {
			return true, nil
		}
	}
	return false, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
