// Package collector implements the collect worker: it polls the scheduler
// for open batches, extracts per-item OCR artifacts from completed batch
// results into 04_extracted, and closes out the batch metadata.
package collector
