package testsupport

import (
	"path/filepath"
	"testing"

	"papermill/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.BaseDir = filepath.Join(base, "pipeline")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Fetch.IdentifiersFile = filepath.Join(base, "identifiers.json")
	cfgVal.Fetch.SourceBaseURL = "http://127.0.0.1:0"
	cfgVal.Fetch.DelayMS = 0
	cfgVal.Fetch.MaxAttempts = 2
	cfgVal.Fetch.DiskThreshold = 1.0
	cfgVal.Batch.DefaultSize = 25

	builder := &configBuilder{t: t, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithSizeThreshold overrides the per-batch page budget.
func WithSizeThreshold(pages int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.SizeThreshold = pages
	}
}

// WithSourceURL points the fetch worker at a test server.
func WithSourceURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.SourceBaseURL = url
	}
}

// WithDiskThreshold overrides the intake backpressure threshold.
func WithDiskThreshold(fraction float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.DiskThreshold = fraction
	}
}
