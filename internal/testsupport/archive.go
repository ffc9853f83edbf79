package testsupport

import (
	"context"
	"io"
	"strings"

	"papermill/internal/services"
	"papermill/internal/services/archive"
)

// FakeArchive is an in-memory archive.Client serving scripted documents.
type FakeArchive struct {
	Docs map[string]string
}

func (f *FakeArchive) Fetch(_ context.Context, identifier string) (*archive.Document, error) {
	body, ok := f.Docs[identifier]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "fetch", "fetch metadata", "unknown item", nil)
	}
	return &archive.Document{
		Identifier: identifier,
		Filename:   identifier + ".pdf",
		Content:    io.NopCloser(strings.NewReader(body)),
		Metadata:   map[string]any{"title": "Title of " + identifier},
		SourceURL:  "http://archive.test/details/" + identifier,
	}, nil
}

// PDFBody returns PDF-shaped content whose page probe reports pages pages.
func PDFBody(pages int) string {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	for i := 0; i < pages; i++ {
		b.WriteString("obj << /Type /Page >> endobj\n")
	}
	b.WriteString("%%EOF\n")
	return b.String()
}
