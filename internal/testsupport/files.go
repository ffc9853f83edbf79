package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"papermill/internal/fileutil"
	"papermill/internal/layout"
	"papermill/internal/records"
)

// WritePDF writes a minimal PDF-shaped file whose page-object markers make
// the page probe report exactly pages pages.
func WritePDF(t testing.TB, path string, pages int) {
	t.Helper()

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	for i := 0; i < pages; i++ {
		fmt.Fprintf(&b, "%d 0 obj << /Type /Page >> endobj\n", i+1)
	}
	b.WriteString("%%EOF\n")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteBacklog writes the identifiers file the fetch worker reads.
func WriteBacklog(t testing.TB, path string, identifiers ...string) {
	t.Helper()

	payload := map[string][]string{"identifiers": identifiers}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		t.Fatalf("marshal backlog: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write backlog: %v", err)
	}
}

// SeedReadyItem plants a fetched item: sharded content and metadata in
// 01_downloaded plus the hard-link marker in 02_ready.
func SeedReadyItem(t testing.TB, l layout.Layout, identifier string, pages int) {
	t.Helper()

	if err := l.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	contentPath := l.ContentPath(identifier)
	WritePDF(t, contentPath, pages)

	meta := records.ItemMeta{
		Identifier:   identifier,
		Title:        "Test Item " + identifier,
		DownloadedAt: time.Now().UTC(),
		Filename:     identifier + ".pdf",
		SourceURL:    "http://archive.test/details/" + identifier,
	}
	if err := fileutil.WriteJSONAtomic(l.ItemMetaPath(identifier), meta); err != nil {
		t.Fatalf("write item meta: %v", err)
	}
	if err := fileutil.Link(contentPath, l.ReadyMarker(identifier)); err != nil {
		t.Fatalf("link ready marker: %v", err)
	}
}

// ReadJSONFile decodes a JSON file into v, failing the test on error.
func ReadJSONFile(t testing.TB, path string, v any) {
	t.Helper()

	if err := fileutil.ReadJSON(path, v); err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
}
