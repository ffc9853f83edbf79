// Package manifest maintains derived progress summaries and the
// append-only event log under _manifests/. Nothing here is authoritative:
// true pipeline state lives in directory placement and manifests are
// recomputed from scans on demand.
package manifest
