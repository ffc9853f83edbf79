package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"papermill/internal/services"
)

// Document is one fetched item: content stream plus source metadata.
// Callers own Content and must close it.
type Document struct {
	Identifier string
	Filename   string
	Content    io.ReadCloser
	Metadata   map[string]any
	SourceURL  string
}

// Client is the content-repository interface the fetcher consumes.
type Client interface {
	Fetch(ctx context.Context, identifier string) (*Document, error)
}

// HTTPClient fetches items from an archive.org-style repository:
// GET {base}/metadata/{identifier} for the file listing and metadata,
// GET {base}/download/{identifier}/{file} for content.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient constructs a repository client with a bounded per-request
// timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("archive base URL required")
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type metadataResponse struct {
	Metadata map[string]any `json:"metadata"`
	Files    []fileEntry    `json:"files"`
}

type fileEntry struct {
	Name   string `json:"name"`
	Format string `json:"format"`
}

// Fetch retrieves the item's first PDF file and its metadata. Not-found
// conditions (missing item, no PDF in the listing) are permanent; network
// and server-side failures are transient.
func (c *HTTPClient) Fetch(ctx context.Context, identifier string) (*Document, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, services.Wrap(services.ErrValidation, "fetch", "request", "empty identifier", nil)
	}

	meta, err := c.fetchMetadata(ctx, identifier)
	if err != nil {
		return nil, err
	}

	filename := selectPDF(meta.Files)
	if filename == "" {
		return nil, services.Wrap(services.ErrNotFound, "fetch", "select file",
			fmt.Sprintf("no PDF files listed for %s", identifier), nil)
	}

	downloadURL := fmt.Sprintf("%s/download/%s/%s",
		c.baseURL, url.PathEscape(identifier), url.PathEscape(filename))
	resp, err := c.get(ctx, downloadURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, classifyStatus(resp.StatusCode, "download content")
	}

	return &Document{
		Identifier: identifier,
		Filename:   filename,
		Content:    resp.Body,
		Metadata:   meta.Metadata,
		SourceURL:  fmt.Sprintf("%s/details/%s", c.baseURL, url.PathEscape(identifier)),
	}, nil
}

func (c *HTTPClient) fetchMetadata(ctx context.Context, identifier string) (*metadataResponse, error) {
	metadataURL := fmt.Sprintf("%s/metadata/%s", c.baseURL, url.PathEscape(identifier))
	resp, err := c.get(ctx, metadataURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, "fetch metadata")
	}

	var meta metadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, services.Wrap(services.ErrTransient, "fetch", "parse metadata", "", err)
	}
	// The repository answers 200 with an empty body for unknown items.
	if len(meta.Metadata) == 0 && len(meta.Files) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "fetch", "fetch metadata",
			fmt.Sprintf("item %s not found", identifier), nil)
	}
	return &meta, nil
}

func (c *HTTPClient) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "fetch", "build request", rawURL, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "fetch", "http get", rawURL, err)
		}
		return nil, services.Wrap(services.ErrTransient, "fetch", "http get", rawURL, err)
	}
	return resp, nil
}

func classifyStatus(status int, operation string) error {
	switch {
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "fetch", operation, "item not found", nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrNotFound, "fetch", operation,
			fmt.Sprintf("access denied (HTTP %d)", status), nil)
	default:
		return services.Wrap(services.ErrTransient, "fetch", operation,
			fmt.Sprintf("HTTP %d", status), nil)
	}
}

// selectPDF picks the first listed PDF, skipping derivative _text.pdf
// variants, mirroring how the repository lists primary scans first.
func selectPDF(files []fileEntry) string {
	for _, file := range files {
		name := strings.ToLower(file.Name)
		if strings.HasSuffix(name, "_text.pdf") {
			continue
		}
		if strings.Contains(strings.ToUpper(file.Format), "PDF") || strings.HasSuffix(name, ".pdf") {
			return file.Name
		}
	}
	return ""
}
