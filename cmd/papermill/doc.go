// Command papermill is the single entry point for the OCR ingestion
// pipeline: a long-running supervisor mode, one-shot per-worker passes,
// and operator utilities for status and configuration.
package main
