package records

import (
	"time"
)

// ItemMeta is the download metadata side-file written next to item content
// in 01_downloaded.
type ItemMeta struct {
	Identifier   string         `json:"identifier"`
	Collection   string         `json:"collection,omitempty"`
	Title        string         `json:"title,omitempty"`
	Creator      string         `json:"creator,omitempty"`
	Year         int            `json:"year,omitempty"`
	DownloadedAt time.Time      `json:"downloaded_at"`
	Filename     string         `json:"filename"`
	FileSize     int64          `json:"file_size"`
	SourceURL    string         `json:"source_url"`
	SHA256       string         `json:"sha256"`
	SourceMeta   map[string]any `json:"source_metadata,omitempty"`
}

// BatchStatus is the explicit lifecycle stored in batch metadata. Only the
// batcher advances created→submitted; only the collector advances
// submitted/running→completed/failed.
type BatchStatus string

const (
	BatchCreated   BatchStatus = "created"
	BatchSubmitted BatchStatus = "submitted"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// BatchMeta is the batch.meta.json record inside each batch directory.
// Membership is immutable once Status leaves BatchCreated.
type BatchMeta struct {
	BatchID        string      `json:"batch_id"`
	JobID          string      `json:"job_id,omitempty"`
	Identifiers    []string    `json:"identifiers"`
	TotalItems     int         `json:"total_items"`
	TotalPages     int         `json:"total_pages"`
	Status         BatchStatus `json:"status"`
	SubmitAttempts int         `json:"submit_attempts,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	SubmittedAt    *time.Time  `json:"submitted_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	FailedAt       *time.Time  `json:"failed_at,omitempty"`
	LastError      string      `json:"last_error,omitempty"`
}

// Open reports whether the collector still owes this batch work.
func (b BatchMeta) Open() bool {
	return b.Status == BatchSubmitted || b.Status == BatchRunning
}

// CompletionMeta is the per-item record in 04_extracted describing what
// extraction produced.
type CompletionMeta struct {
	Identifier     string        `json:"identifier"`
	BatchID        string        `json:"batch_id"`
	TotalPages     int           `json:"total_pages"`
	OcrCompletedAt time.Time     `json:"ocr_completed_at"`
	BatchDuration  time.Duration `json:"batch_duration_ns,omitempty"`
	ResultFile     string        `json:"result_file"`
}

// ErrorRecord is one failed item's entry in the error channel. Records are
// written individually and never merged or dropped. RetryCount counts
// retries beyond the first attempt.
type ErrorRecord struct {
	Identifier string    `json:"identifier"`
	Stage      string    `json:"stage"`
	ErrorKind  string    `json:"error_kind"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
	Collection string    `json:"collection,omitempty"`
}

// FinalRecord is the consolidated output in 05_finalized: the union of the
// original download metadata and the OCR payload. Download is an explicit
// null for degraded records whose metadata went missing.
type FinalRecord struct {
	Identifier  string           `json:"identifier"`
	Download    *ItemMeta        `json:"download"`
	OcrPages    []map[string]any `json:"ocr_pages"`
	TotalPages  int              `json:"total_pages"`
	Degraded    bool             `json:"degraded,omitempty"`
	FinalizedAt time.Time        `json:"finalized_at"`
}
