// Package slurm wraps the external batch scheduler behind a small
// submit/status/cancel interface so workers and tests never shell out
// directly. Calls are blocking subprocess invocations with a bounded
// timeout.
package slurm
