package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, existed, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if existed {
		t.Fatal("file should not exist")
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Batch.SizeThreshold != defaultSizeThreshold {
		t.Fatalf("size threshold = %d, want default %d", cfg.Batch.SizeThreshold, defaultSizeThreshold)
	}
}

func TestLoadOverlaysFileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
base_dir = "` + dir + `/pipeline"

[batch]
size_threshold = 500

[logging]
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, existed, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !existed {
		t.Fatal("expected file to be found")
	}
	if cfg.Batch.SizeThreshold != 500 {
		t.Fatalf("size threshold = %d, want 500", cfg.Batch.SizeThreshold)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("format = %q, want json", cfg.Logging.Format)
	}
	if cfg.Paths.BaseDir != filepath.Join(dir, "pipeline") {
		t.Fatalf("base dir = %q", cfg.Paths.BaseDir)
	}
	// Unspecified sections keep defaults.
	if cfg.Scheduler.SubmitCommand != defaultSubmitCommand {
		t.Fatalf("submit command = %q", cfg.Scheduler.SubmitCommand)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero threshold", func(c *Config) { c.Batch.SizeThreshold = 0 }, "batch.size_threshold"},
		{"bad disk threshold", func(c *Config) { c.Fetch.DiskThreshold = 1.5 }, "fetch.disk_threshold"},
		{"empty submit", func(c *Config) { c.Scheduler.SubmitCommand = "" }, "scheduler.submit_command"},
		{"bad format", func(c *Config) { c.Logging.Format = "yaml" }, "logging.format"},
		{"zero restarts", func(c *Config) { c.Workflow.RestartLimit = 0 }, "workflow.restart_limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.normalize(); err != nil {
				t.Fatalf("normalize: %v", err)
			}
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	cfg, _, existed, err := Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !existed {
		t.Fatal("sample config should exist")
	}
	if cfg.Batch.SizeThreshold != 1000 {
		t.Fatalf("sample threshold = %d", cfg.Batch.SizeThreshold)
	}
}

func TestCollectionEnvFallback(t *testing.T) {
	t.Setenv("PAPERMILL_COLLECTION", "saskatchewan")
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Fetch.Collection != "saskatchewan" {
		t.Fatalf("collection = %q", cfg.Fetch.Collection)
	}
}
