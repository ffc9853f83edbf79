package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"papermill/internal/batcher"
	"papermill/internal/collector"
	"papermill/internal/fetcher"
	"papermill/internal/finalizer"
	"papermill/internal/layout"
	"papermill/internal/logging"
	"papermill/internal/manifest"
	"papermill/internal/pagecount"
	"papermill/internal/records"
	"papermill/internal/services/slurm"
	"papermill/internal/testsupport"
)

// TestPipelineRoundTrip walks one item through every stage: backlog entry
// to consolidated final record, with the scheduler and repository faked.
func TestPipelineRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteBacklog(t, cfg.Fetch.IdentifiersFile, "town-report-1901")

	l := layout.New(cfg.Paths.BaseDir)
	if err := l.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	events := manifest.NewEventLog(l)
	repo := &testsupport.FakeArchive{Docs: map[string]string{
		"town-report-1901": testsupport.PDFBody(3),
	}}
	scheduler := testsupport.NewFakeScheduler()

	fetch := fetcher.New(cfg, repo, events, logging.NewNop())
	batch := batcher.New(cfg, scheduler, pagecount.PDFProbe{}, events, logging.NewNop())
	collect := collector.New(cfg, scheduler, events, logging.NewNop())
	finalize := finalizer.New(cfg, events, logging.NewNop())

	ctx := context.Background()

	if err := fetch.Poll(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	assertStage(t, l, "town-report-1901", layout.StageReady)

	if err := batch.Acquire(); err != nil {
		t.Fatal(err)
	}
	defer batch.Release()
	if err := batch.Poll(ctx); err != nil {
		t.Fatalf("batch: %v", err)
	}
	assertStage(t, l, "town-report-1901", layout.StageInBatch)

	var meta records.BatchMeta
	testsupport.ReadJSONFile(t, l.BatchMetaPath("batch_0001"), &meta)
	if meta.Status != records.BatchSubmitted || meta.TotalPages != 3 {
		t.Fatalf("batch meta = %+v", meta)
	}

	// The OCR job finishes and drops a results file.
	scheduler.SetState(meta.JobID, slurm.StateCompleted)
	results := strings.Join([]string{
		`{"Source-File":"/work/town-report-1901.pdf","page":1,"text":"one"}`,
		`{"Source-File":"/work/town-report-1901.pdf","page":2,"text":"two"}`,
		`{"Source-File":"/work/town-report-1901.pdf","page":3,"text":"three"}`,
	}, "\n")
	resultPath := filepath.Join(l.BatchResultsDir("batch_0001"), "chunk_0.jsonl")
	if err := os.WriteFile(resultPath, []byte(results), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := collect.Poll(ctx); err != nil {
		t.Fatalf("collect: %v", err)
	}
	assertStage(t, l, "town-report-1901", layout.StageExtracted)

	if err := finalize.Poll(ctx); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	assertStage(t, l, "town-report-1901", layout.StageFinalized)

	var record records.FinalRecord
	testsupport.ReadJSONFile(t, l.FinalizedPath("town-report-1901"), &record)
	if record.TotalPages != 3 || record.Degraded {
		t.Fatalf("final record = %+v", record)
	}
	if record.Download == nil || record.Download.Title != "Title of town-report-1901" {
		t.Fatalf("download metadata not joined: %+v", record.Download)
	}

	// Nothing intermediate survives: the item lives only in 05_finalized.
	for _, path := range []string{
		l.ContentPath("town-report-1901"),
		l.ItemMetaPath("town-report-1901"),
		l.ReadyMarker("town-report-1901"),
		l.ExtractedResultPath("town-report-1901"),
		l.BatchContentPath("batch_0001", "town-report-1901"),
	} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("intermediate %s survived the pipeline: %v", path, err)
		}
	}

	// Re-running every stage against the finished pipeline changes nothing.
	for name, poll := range map[string]func(context.Context) error{
		"fetch": fetch.Poll, "batch": batch.Poll, "collect": collect.Poll, "finalize": finalize.Poll,
	} {
		if err := poll(ctx); err != nil {
			t.Fatalf("idempotent re-run of %s: %v", name, err)
		}
	}
	assertStage(t, l, "town-report-1901", layout.StageFinalized)
	if len(scheduler.Submitted) != 1 {
		t.Fatalf("batch resubmitted on re-run: %v", scheduler.Submitted)
	}
}

func assertStage(t *testing.T, l layout.Layout, identifier string, want layout.Stage) {
	t.Helper()
	got, err := l.StageOf(identifier)
	if err != nil {
		t.Fatalf("StageOf(%s): %v", identifier, err)
	}
	if got != want {
		t.Fatalf("stage of %s = %s, want %s", identifier, got, want)
	}
}
