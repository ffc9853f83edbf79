package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"papermill/internal/config"
	"papermill/internal/fileutil"
	"papermill/internal/layout"
	"papermill/internal/logging"
	"papermill/internal/manifest"
	"papermill/internal/records"
	"papermill/internal/services"
	"papermill/internal/services/archive"
)

// Stats counts one pass over the backlog.
type Stats struct {
	Fetched int
	Skipped int
	Failed  int
	Paused  bool
}

// Fetcher pulls backlog items from the content repository into
// 01_downloaded and publishes ready markers in 02_ready. It holds no state
// between passes; the directories decide what still needs fetching.
type Fetcher struct {
	cfg    *config.Config
	layout layout.Layout
	client archive.Client
	events *manifest.EventLog
	logger *slog.Logger

	sleep     func(ctx context.Context, d time.Duration) error
	diskUsage func(path string) (float64, error)
}

// New constructs a fetch worker.
func New(cfg *config.Config, client archive.Client, events *manifest.EventLog, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		cfg:       cfg,
		layout:    layout.New(cfg.Paths.BaseDir),
		client:    client,
		events:    events,
		logger:    logging.WithComponent(logger, "fetcher"),
		sleep:     sleepCtx,
		diskUsage: fileutil.DiskUsage,
	}
}

// Name identifies the worker in supervisor logs.
func (f *Fetcher) Name() string { return "fetcher" }

// Recover removes leftover temp files from an interrupted run. Rename is
// atomic, so anything still carrying a temp marker is garbage.
func (f *Fetcher) Recover() error {
	dirs := []string{f.layout.Ready()}
	shards, err := os.ReadDir(f.layout.Downloaded())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("scan downloaded: %w", err)
	}
	for _, entry := range shards {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(f.layout.Downloaded(), entry.Name()))
		}
	}
	for _, dir := range dirs {
		if err := fileutil.RemoveTempFiles(dir); err != nil {
			return fmt.Errorf("remove temp files in %s: %w", dir, err)
		}
	}
	return nil
}

// Poll runs one pass over the backlog: every identifier not yet present in
// the pipeline is fetched, unless disk pressure pauses intake first. The
// cursor manifest skips backlog prefixes already worked through; it is a
// derived cache, so losing it only costs a rescan.
func (f *Fetcher) Poll(ctx context.Context) error {
	identifiers, err := f.readBacklog()
	if err != nil {
		return err
	}
	start := f.cursorPosition(len(identifiers))

	var stats Stats
	for _, identifier := range identifiers[start:] {
		if err := ctx.Err(); err != nil {
			return err
		}

		paused, err := f.waitForDiskHeadroom(ctx)
		if err != nil {
			return err
		}
		if paused {
			stats.Paused = true
		}

		done, err := f.alreadyPresent(identifier)
		if err != nil {
			return err
		}
		if done {
			stats.Skipped++
			continue
		}

		if retries, err := f.fetchOne(ctx, identifier); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stats.Failed++
			if recordErr := f.recordFailure(identifier, retries, err); recordErr != nil {
				return recordErr
			}
		} else {
			stats.Fetched++
		}

		if f.cfg.Fetch.DelayMS > 0 {
			if err := f.sleep(ctx, time.Duration(f.cfg.Fetch.DelayMS)*time.Millisecond); err != nil {
				return err
			}
		}
	}

	if stats.Fetched > 0 || stats.Failed > 0 {
		f.logger.Info("fetch pass complete", logging.Args(
			logging.Int("fetched", stats.Fetched),
			logging.Int("skipped", stats.Skipped),
			logging.Int("failed", stats.Failed))...)
	}
	return f.writeCursor(len(identifiers), stats)
}

// cursorManifest records where the last complete pass stopped plus its
// counters. Derived only; presence checks stay authoritative.
type cursorManifest struct {
	Position    int       `json:"position"`
	BacklogSize int       `json:"backlog_size"`
	Fetched     int       `json:"fetched"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const cursorFile = "fetch_cursor.json"

// cursorPosition returns the resume index for a backlog of size n. A
// changed backlog invalidates the cursor and forces a full rescan.
func (f *Fetcher) cursorPosition(n int) int {
	var cursor cursorManifest
	if err := fileutil.ReadJSON(filepath.Join(f.layout.Manifests(), cursorFile), &cursor); err != nil {
		return 0
	}
	if cursor.BacklogSize != n || cursor.Position < 0 || cursor.Position > n {
		return 0
	}
	return cursor.Position
}

func (f *Fetcher) writeCursor(n int, stats Stats) error {
	cursor := cursorManifest{
		Position:    n,
		BacklogSize: n,
		Fetched:     stats.Fetched,
		Skipped:     stats.Skipped,
		Failed:      stats.Failed,
		UpdatedAt:   time.Now().UTC(),
	}
	return fileutil.WriteJSONAtomic(filepath.Join(f.layout.Manifests(), cursorFile), cursor)
}

// alreadyPresent reports whether the item has content anywhere in the
// pipeline, which makes re-fetching redundant.
func (f *Fetcher) alreadyPresent(identifier string) (bool, error) {
	stage, err := f.layout.StageOf(identifier)
	if err != nil {
		return false, err
	}
	return stage != layout.StageQueued, nil
}

// fetchOne downloads one item with bounded retries for transient failures,
// then writes content, metadata, and the ready marker in that order. The
// marker goes last so consumers never observe an item without content. The
// first return value counts retries beyond the initial attempt.
func (f *Fetcher) fetchOne(ctx context.Context, identifier string) (int, error) {
	var lastErr error
	attempts := f.cfg.Fetch.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		doc, err := f.client.Fetch(ctx, identifier)
		if err != nil {
			lastErr = err
			if services.IsPermanent(err) || ctx.Err() != nil {
				return attempt - 1, err
			}
			f.logger.Warn("fetch attempt failed", logging.Args(
				logging.String(logging.FieldIdentifier, identifier),
				logging.Int("attempt", attempt),
				logging.Error(err))...)
			if attempt < attempts {
				if err := f.sleep(ctx, backoff(attempt)); err != nil {
					return attempt - 1, err
				}
			}
			continue
		}
		err = f.store(identifier, doc)
		doc.Content.Close()
		if err != nil {
			return attempt - 1, err
		}
		f.logger.Info("item fetched", logging.Args(
			logging.String(logging.FieldIdentifier, identifier),
			logging.String("filename", doc.Filename))...)
		_ = f.events.Append("item_fetched", identifier, "", doc.Filename)
		return attempt - 1, nil
	}
	return attempts - 1, lastErr
}

func (f *Fetcher) store(identifier string, doc *archive.Document) error {
	contentPath := f.layout.ContentPath(identifier)
	size, checksum, err := fileutil.WriteAtomic(contentPath, doc.Content)
	if err != nil {
		return fmt.Errorf("write content for %s: %w", identifier, err)
	}

	meta := records.ItemMeta{
		Identifier:   identifier,
		Collection:   f.cfg.Fetch.Collection,
		Title:        metaString(doc.Metadata, "title"),
		Creator:      metaString(doc.Metadata, "creator"),
		Year:         metaYear(doc.Metadata),
		DownloadedAt: time.Now().UTC(),
		Filename:     doc.Filename,
		FileSize:     size,
		SourceURL:    doc.SourceURL,
		SHA256:       checksum,
		SourceMeta:   doc.Metadata,
	}
	if err := fileutil.WriteJSONAtomic(f.layout.ItemMetaPath(identifier), meta); err != nil {
		return fmt.Errorf("write metadata for %s: %w", identifier, err)
	}
	if err := fileutil.Link(contentPath, f.layout.ReadyMarker(identifier)); err != nil {
		return fmt.Errorf("publish ready marker for %s: %w", identifier, err)
	}
	return nil
}

// waitForDiskHeadroom blocks while disk utilization sits above the
// configured threshold. Intake is the only stage that grows the corpus, so
// it alone pays the backpressure.
func (f *Fetcher) waitForDiskHeadroom(ctx context.Context) (bool, error) {
	paused := false
	for {
		usage, err := f.diskUsage(f.layout.Base())
		if err != nil {
			return paused, fmt.Errorf("check disk usage: %w", err)
		}
		if usage < f.cfg.Fetch.DiskThreshold {
			return paused, nil
		}
		if !paused {
			paused = true
			f.logger.Warn("disk utilization above threshold, pausing intake", logging.Args(
				logging.String("usage", fmt.Sprintf("%.1f%%", usage*100)))...)
			_ = f.events.Append("intake_paused", "", "", fmt.Sprintf("disk at %.1f%%", usage*100))
		}
		if err := f.sleep(ctx, time.Duration(f.cfg.Fetch.DiskPauseInterval)*time.Second); err != nil {
			return paused, err
		}
	}
}

func (f *Fetcher) recordFailure(identifier string, retries int, cause error) error {
	record := records.ErrorRecord{
		Identifier: identifier,
		Stage:      "fetch",
		ErrorKind:  services.Kind(cause),
		Message:    cause.Error(),
		Timestamp:  time.Now().UTC(),
		RetryCount: retries,
		Collection: f.cfg.Fetch.Collection,
	}
	path := f.layout.ErrorPath("fetch", identifier)
	if err := fileutil.WriteJSONAtomic(path, record); err != nil {
		return fmt.Errorf("write error record for %s: %w", identifier, err)
	}
	f.logger.Error("item failed permanently", logging.Args(
		logging.String(logging.FieldIdentifier, identifier),
		logging.String(logging.FieldStage, "fetch"),
		logging.Error(cause))...)
	_ = f.events.Append("item_failed", identifier, "", cause.Error())
	return nil
}

type backlogFile struct {
	Identifiers []string `json:"identifiers"`
}

// readBacklog loads the identifiers file. Blank lines and duplicates are
// tolerated; ordering is preserved.
func (f *Fetcher) readBacklog() ([]string, error) {
	path := f.cfg.Fetch.IdentifiersFile
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "fetch", "read backlog", "identifiers_file not configured", nil)
	}
	var backlog backlogFile
	if err := fileutil.ReadJSON(path, &backlog); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrConfiguration, "fetch", "read backlog",
				fmt.Sprintf("identifiers file %s does not exist", path), nil)
		}
		return nil, fmt.Errorf("read backlog: %w", err)
	}
	seen := make(map[string]struct{}, len(backlog.Identifiers))
	out := make([]string, 0, len(backlog.Identifiers))
	for _, id := range backlog.Identifiers {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func metaString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// metaYear pulls a four-digit year out of the repository date fields.
func metaYear(meta map[string]any) int {
	for _, key := range []string{"year", "date"} {
		raw := metaString(meta, key)
		if raw == "" {
			if n, ok := meta[key].(float64); ok {
				return int(n)
			}
			continue
		}
		for i := 0; i+4 <= len(raw); i++ {
			if n, err := strconv.Atoi(raw[i : i+4]); err == nil && n >= 1000 {
				return n
			}
		}
	}
	return 0
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
