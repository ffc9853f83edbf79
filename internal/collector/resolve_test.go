package collector

import "testing"

func TestResolveSourcePrefersEarlierKeys(t *testing.T) {
	record := map[string]any{
		"filename": "later.pdf",
		"source":   "earlier.pdf",
	}
	if got := resolveSource(record); got != "earlier.pdf" {
		t.Fatalf("resolveSource = %q, want earlier.pdf", got)
	}
}

func TestResolveSourceChecksMetadataFirst(t *testing.T) {
	record := map[string]any{
		"Source-File": "top-level.pdf",
		"metadata": map[string]any{
			"filename": "from-metadata.pdf",
		},
	}
	if got := resolveSource(record); got != "from-metadata.pdf" {
		t.Fatalf("resolveSource = %q, want from-metadata.pdf", got)
	}
}

func TestIdentifierFromSourceStripsPathAndExtension(t *testing.T) {
	cases := map[string]string{
		"/scratch/chunks/town-report-1901.pdf": "town-report-1901",
		"item.pdf":                             "item",
		"  spaced.pdf ":                        "spaced",
		"noext":                                "noext",
	}
	for source, want := range cases {
		if got := identifierFromSource(source); got != want {
			t.Errorf("identifierFromSource(%q) = %q, want %q", source, got, want)
		}
	}
}

func TestGroupRecordsSkipsSourcelessLeaves(t *testing.T) {
	out := make(map[string][]map[string]any)
	groupRecords(map[string]any{"page": 1, "text": "orphan"}, "", out)
	if len(out) != 0 {
		t.Fatalf("sourceless leaf grouped: %v", out)
	}
}
