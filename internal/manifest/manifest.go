package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"papermill/internal/fileutil"
	"papermill/internal/layout"
)

// Progress aggregates per-stage counts. It is a derived cache recomputed
// from directory scans; the directories themselves stay authoritative, so
// losing or corrupting this file never loses data.
type Progress struct {
	Downloaded  int       `json:"downloaded"`
	Ready       int       `json:"ready"`
	InBatch     int       `json:"in_batch"`
	Extracted   int       `json:"extracted"`
	Finalized   int       `json:"finalized"`
	Failed      int       `json:"failed"`
	Batches     int       `json:"batches"`
	OpenBatches int       `json:"open_batches"`
	ScannedAt   time.Time `json:"scanned_at"`
}

const progressFile = "progress.json"

// Scan recomputes progress counters from the stage directories.
func Scan(l layout.Layout) (Progress, error) {
	p := Progress{ScannedAt: time.Now().UTC()}

	var err error
	if p.Downloaded, err = countSharded(l.Downloaded(), ".pdf"); err != nil {
		return Progress{}, err
	}
	if p.Ready, err = countFlat(l.Ready(), ".pdf"); err != nil {
		return Progress{}, err
	}
	if p.Extracted, err = countFlat(l.Extracted(), ".ocr.jsonl"); err != nil {
		return Progress{}, err
	}
	if p.Finalized, err = countSharded(l.Finalized(), ".json"); err != nil {
		return Progress{}, err
	}
	if p.Failed, err = countSharded(l.Errors(), ".error.json"); err != nil {
		return Progress{}, err
	}

	batchIDs, err := l.BatchIDs()
	if err != nil {
		return Progress{}, err
	}
	p.Batches = len(batchIDs)
	for _, id := range batchIDs {
		var meta struct {
			Status string `json:"status"`
		}
		if err := fileutil.ReadJSON(l.BatchMetaPath(id), &meta); err != nil {
			continue
		}
		if meta.Status == "submitted" || meta.Status == "running" {
			p.OpenBatches++
		}
		// Members of a failed batch belong to the error channel count.
		if meta.Status == "failed" {
			continue
		}
		n, err := countFlat(l.BatchDir(id), ".pdf")
		if err != nil {
			return Progress{}, err
		}
		p.InBatch += n
	}
	return p, nil
}

// Write persists progress to _manifests/progress.json atomically.
func Write(l layout.Layout, p Progress) error {
	return fileutil.WriteJSONAtomic(filepath.Join(l.Manifests(), progressFile), p)
}

// Rebuild recomputes and persists progress in one step.
func Rebuild(l layout.Layout) (Progress, error) {
	p, err := Scan(l)
	if err != nil {
		return Progress{}, err
	}
	if err := Write(l, p); err != nil {
		return Progress{}, err
	}
	return p, nil
}

func countFlat(dir, suffix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			count++
		}
	}
	return count, nil
}

func countSharded(dir, suffix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			n, err := countFlat(filepath.Join(dir, entry.Name()), suffix)
			if err != nil {
				return 0, err
			}
			count += n
		} else if strings.HasSuffix(entry.Name(), suffix) {
			count++
		}
	}
	return count, nil
}
