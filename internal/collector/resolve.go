package collector

import (
	"path/filepath"
	"strings"
)

// sourceKeys is the ordered policy for locating a record's originating file.
// Earlier keys win; metadata blocks are consulted before top-level fields.
var sourceKeys = []string{
	"Source-File",
	"source_file",
	"source",
	"filename",
	"file_name",
	"path",
	"filepath",
	"pdf",
	"pdf_name",
	"document",
	"document_name",
}

// nestedKeys are the container fields a result record may nest pages under.
var nestedKeys = []string{"pages", "results", "records", "documents"}

// resolveSource extracts the source filename from a record, consulting its
// metadata block before top-level fields.
func resolveSource(record map[string]any) string {
	if meta, ok := record["metadata"].(map[string]any); ok {
		if source := lookupSource(meta); source != "" {
			return source
		}
	}
	return lookupSource(record)
}

func lookupSource(fields map[string]any) string {
	for _, key := range sourceKeys {
		if value, ok := fields[key].(string); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}

// identifierFromSource reduces a source path to the item identifier: the
// base filename with its extension stripped.
func identifierFromSource(source string) string {
	base := filepath.Base(strings.TrimSpace(source))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// groupRecords walks a parsed result value and groups leaf page records by
// item identifier. Containers pass their resolved source down, so pages
// without their own source field inherit the enclosing document's.
func groupRecords(value any, inherited string, out map[string][]map[string]any) {
	switch v := value.(type) {
	case []any:
		for _, elem := range v {
			groupRecords(elem, inherited, out)
		}
	case map[string]any:
		source := resolveSource(v)
		if source == "" {
			source = inherited
		}
		nested := false
		for _, key := range nestedKeys {
			children, ok := v[key].([]any)
			if !ok {
				continue
			}
			nested = true
			for _, child := range children {
				groupRecords(child, source, out)
			}
		}
		if nested || source == "" {
			return
		}
		identifier := identifierFromSource(source)
		if identifier != "" {
			out[identifier] = append(out[identifier], v)
		}
	}
}
