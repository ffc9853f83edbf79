package layout

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestShardStableAndFixedWidth(t *testing.T) {
	a := Shard("doc-001")
	b := Shard("doc-001")
	if a != b {
		t.Fatalf("shard not stable: %q vs %q", a, b)
	}
	if len(a) != 2 {
		t.Fatalf("shard width = %d, want 2", len(a))
	}
}

func TestContentAndFinalizedShareShard(t *testing.T) {
	l := New("/base")
	content := l.ContentPath("doc-001")
	finalized := l.FinalizedPath("doc-001")
	shard := Shard("doc-001")
	if !strings.Contains(content, "/"+shard+"/") || !strings.Contains(finalized, "/"+shard+"/") {
		t.Fatalf("shard not applied uniformly: %s, %s", content, finalized)
	}
}

func TestEnsureDirectories(t *testing.T) {
	l := New(t.TempDir())
	if err := l.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{l.Downloaded(), l.Ready(), l.Processing(), l.Extracted(), l.Finalized(), l.Errors(), l.Manifests()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("missing stage directory %s: %v", dir, err)
		}
	}
}

func TestNextBatchID(t *testing.T) {
	l := New(t.TempDir())
	if err := l.EnsureDirectories(); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	id, err := l.NextBatchID()
	if err != nil {
		t.Fatalf("NextBatchID: %v", err)
	}
	if id != "batch_0001" {
		t.Fatalf("first id = %q", id)
	}

	for _, existing := range []string{"batch_0001", "batch_0007"} {
		if err := os.MkdirAll(l.BatchDir(existing), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	id, err = l.NextBatchID()
	if err != nil {
		t.Fatalf("NextBatchID: %v", err)
	}
	if id != "batch_0008" {
		t.Fatalf("next id = %q, want batch_0008", id)
	}
}

func TestStageOfProgression(t *testing.T) {
	l := New(t.TempDir())
	if err := l.EnsureDirectories(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	const id = "doc-042"

	assertStage := func(want Stage) {
		t.Helper()
		got, err := l.StageOf(id)
		if err != nil {
			t.Fatalf("StageOf: %v", err)
		}
		if got != want {
			t.Fatalf("stage = %q, want %q", got, want)
		}
	}

	assertStage(StageQueued)

	write := func(path string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	write(l.ContentPath(id))
	assertStage(StageDownloaded)

	write(l.ReadyMarker(id))
	assertStage(StageReady)

	if err := os.Rename(l.ReadyMarker(id), l.BatchContentPath("batch_0001", id)); err != nil {
		write(l.BatchContentPath("batch_0001", id))
	}
	assertStage(StageInBatch)

	write(l.ExtractedResultPath(id))
	assertStage(StageExtracted)

	write(l.FinalizedPath(id))
	assertStage(StageFinalized)
}

func TestStageOfFailed(t *testing.T) {
	l := New(t.TempDir())
	if err := l.EnsureDirectories(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	const id = "doc-err"
	path := l.ErrorPath("download", id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := l.StageOf(id)
	if err != nil {
		t.Fatalf("StageOf: %v", err)
	}
	if got != StageFailed {
		t.Fatalf("stage = %q, want failed", got)
	}
}

func TestStageOfFailedOutranksBatchMembership(t *testing.T) {
	l := New(t.TempDir())
	if err := l.EnsureDirectories(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	const id = "doc-dead"

	write := func(path, content string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	// A failed batch keeps its member copies while the error record exists.
	write(l.ContentPath(id), "pdf")
	write(l.BatchContentPath("batch_0001", id), "pdf")
	write(l.ErrorPath("batch", id), "{}")

	got, err := l.StageOf(id)
	if err != nil {
		t.Fatalf("StageOf: %v", err)
	}
	if got != StageFailed {
		t.Fatalf("stage = %q, want failed over in_batch", got)
	}

	// Extraction output still outranks a stale error record.
	write(l.ExtractedResultPath(id), "{}\n")
	got, err = l.StageOf(id)
	if err != nil {
		t.Fatalf("StageOf: %v", err)
	}
	if got != StageExtracted {
		t.Fatalf("stage = %q, want extracted", got)
	}
}
