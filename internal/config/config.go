package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// BaseDir is the pipeline root containing the numbered stage directories.
	BaseDir string `toml:"base_dir"`
	LogDir  string `toml:"log_dir"`
}

// Fetch contains configuration for the fetch worker.
type Fetch struct {
	// IdentifiersFile points at the backlog JSON ({"identifiers": [...]}).
	IdentifiersFile string `toml:"identifiers_file"`
	Collection      string `toml:"collection"`
	// SourceBaseURL is the content repository endpoint.
	SourceBaseURL string `toml:"source_base_url"`
	// RequestTimeout bounds a single repository call, in seconds.
	RequestTimeout int `toml:"request_timeout"`
	// MaxAttempts bounds retries for transient fetch failures.
	MaxAttempts int `toml:"max_attempts"`
	// DelayMS is the pause between consecutive fetches, in milliseconds.
	DelayMS int `toml:"delay_ms"`
	// DiskThreshold is the utilization fraction above which intake pauses.
	DiskThreshold float64 `toml:"disk_threshold"`
	// DiskPauseInterval is the recheck interval while paused, in seconds.
	DiskPauseInterval int `toml:"disk_pause_interval"`
	PollInterval      int `toml:"poll_interval"`
}

// Batch contains configuration for the batch worker.
type Batch struct {
	// SizeThreshold is the cumulative page budget per batch.
	SizeThreshold int `toml:"size_threshold"`
	// DefaultSize substitutes for items whose size probe fails.
	DefaultSize int `toml:"default_size"`
	// SubmitAttempts is the total submission tries allowed per batch
	// before it is marked failed.
	SubmitAttempts int `toml:"submit_attempts"`
	PollInterval   int `toml:"poll_interval"`
}

// Collect contains configuration for the collect worker.
type Collect struct {
	PollInterval int `toml:"poll_interval"`
}

// Finalize contains configuration for the finalize worker.
type Finalize struct {
	PollInterval int `toml:"poll_interval"`
}

// Scheduler contains configuration for the external batch scheduler client.
type Scheduler struct {
	// SubmitCommand is the submission executable (receives --pdf-dir).
	SubmitCommand string `toml:"submit_command"`
	StatusCommand string `toml:"status_command"`
	CancelCommand string `toml:"cancel_command"`
	// CommandTimeout bounds each scheduler invocation, in seconds.
	CommandTimeout int `toml:"command_timeout"`
}

// Workflow contains supervisor timing and restart policy.
type Workflow struct {
	// RestartLimit is the consecutive-failure budget per worker.
	RestartLimit       int `toml:"restart_limit"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for papermill.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Fetch     Fetch     `toml:"fetch"`
	Batch     Batch     `toml:"batch"`
	Collect   Collect   `toml:"collect"`
	Finalize  Finalize  `toml:"finalize"`
	Scheduler Scheduler `toml:"scheduler"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the default config file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/papermill/config.toml")
}

// Load locates, parses, normalizes, and validates a configuration file.
// It returns the config, the resolved path, and whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("papermill.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// Sample returns the embedded sample configuration text.
func Sample() string {
	return sampleConfig
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
