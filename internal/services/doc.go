// Package services defines the shared error taxonomy for pipeline workers
// and houses clients for the external collaborators (content repository,
// batch scheduler).
//
// Workers classify failures with errors.Is against the exported sentinels:
// permanent failures (ErrNotFound, ErrValidation, ErrConfiguration) are
// written to the error channel without retry, everything else is retried
// with backoff up to the worker's attempt budget.
package services
