package pagecount

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writePDF(t *testing.T, pages int) string {
	t.Helper()
	body := "%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\n2 0 obj << /Type /Pages /Count " +
		string(rune('0'+pages)) + " >> endobj\n"
	for i := 0; i < pages; i++ {
		body += "<< /Type /Page /Parent 2 0 R >> endobj\n"
	}
	body += "%%EOF\n"
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func TestPDFProbeCountsPages(t *testing.T) {
	path := writePDF(t, 3)
	got, err := (PDFProbe{}).Measure(path)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if got != 3 {
		t.Fatalf("pages = %d, want 3", got)
	}
}

func TestPDFProbeCompactSpelling(t *testing.T) {
	content := "%PDF-1.4\n<</Type/Pages/Count 2>>\n<</Type/Page>>\n<</Type/Page>>\n"
	path := filepath.Join(t.TempDir(), "compact.pdf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := (PDFProbe{}).Measure(path)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if got != 2 {
		t.Fatalf("pages = %d, want 2", got)
	}
}

func TestPDFProbeRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.pdf")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := (PDFProbe{}).Measure(path)
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("error = %v, want ErrUnknown", err)
	}
}

func TestPDFProbeMissingFile(t *testing.T) {
	_, err := (PDFProbe{}).Measure(filepath.Join(t.TempDir(), "absent.pdf"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFixedProbe(t *testing.T) {
	got, err := (FixedProbe{Pages: 7}).Measure("anything")
	if err != nil || got != 7 {
		t.Fatalf("got %d, %v", got, err)
	}
}
