package manifest

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"papermill/internal/fileutil"
	"papermill/internal/layout"
	"papermill/internal/records"
)

func seed(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScanCountsStages(t *testing.T) {
	l := layout.New(t.TempDir())
	if err := l.EnsureDirectories(); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	seed(t, l.ContentPath("a"), "pdf")
	seed(t, l.ContentPath("b"), "pdf")
	seed(t, l.ReadyMarker("b"), "pdf")
	seed(t, l.BatchContentPath("batch_0001", "c"), "pdf")
	if err := fileutil.WriteJSONAtomic(l.BatchMetaPath("batch_0001"), records.BatchMeta{
		BatchID: "batch_0001",
		Status:  records.BatchSubmitted,
	}); err != nil {
		t.Fatalf("batch meta: %v", err)
	}
	seed(t, l.ExtractedResultPath("d"), "{}\n")
	seed(t, l.FinalizedPath("e"), "{}")
	seed(t, l.ErrorPath("download", "f"), "{}")

	p, err := Scan(l)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if p.Downloaded != 2 || p.Ready != 1 || p.InBatch != 1 || p.Extracted != 1 || p.Finalized != 1 || p.Failed != 1 {
		t.Fatalf("counts = %+v", p)
	}
	if p.Batches != 1 || p.OpenBatches != 1 {
		t.Fatalf("batch counts = %+v", p)
	}
}

func TestRebuildPersistsDerivedCache(t *testing.T) {
	l := layout.New(t.TempDir())
	if err := l.EnsureDirectories(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	seed(t, l.ContentPath("a"), "pdf")

	// A stale or corrupt manifest must be overwritten, not trusted.
	seed(t, filepath.Join(l.Manifests(), "progress.json"), "{corrupt")

	p, err := Rebuild(l)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if p.Downloaded != 1 {
		t.Fatalf("downloaded = %d", p.Downloaded)
	}

	var reread Progress
	if err := fileutil.ReadJSON(filepath.Join(l.Manifests(), "progress.json"), &reread); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if reread.Downloaded != 1 {
		t.Fatalf("persisted downloaded = %d", reread.Downloaded)
	}
}

func TestEventLogAppends(t *testing.T) {
	l := layout.New(t.TempDir())
	if err := l.EnsureDirectories(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	log := NewEventLog(l)
	if err := log.Append("item_fetched", "doc-1", "", ""); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Append("batch_submitted", "", "batch_0001", "job 42"); err != nil {
		t.Fatalf("append: %v", err)
	}

	f, err := os.Open(filepath.Join(l.Manifests(), "events.jsonl"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad event line: %v", err)
		}
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != "item_fetched" || events[0].Identifier != "doc-1" {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].BatchID != "batch_0001" || events[1].EventID == "" {
		t.Fatalf("second event = %+v", events[1])
	}
	if events[0].EventID == events[1].EventID {
		t.Fatal("event ids must be unique")
	}
}
