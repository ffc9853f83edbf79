// Package config loads, normalizes, and validates papermill's TOML
// configuration. Defaults come from Default(), file values overlay them,
// and normalize expands paths and applies environment fallbacks before
// Validate runs.
package config
