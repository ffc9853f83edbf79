// Package logging provides the slog construction used by every papermill
// process: a console handler for interactive use, a JSON handler for
// machine-readable logs, and helpers for standardized attribute keys.
package logging
