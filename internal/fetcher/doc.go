// Package fetcher implements the intake worker: it walks the backlog of
// item identifiers, downloads content and metadata into 01_downloaded, and
// hard-links ready markers into 02_ready for the batcher to consume.
package fetcher
