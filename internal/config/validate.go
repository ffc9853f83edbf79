package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		return errors.New("paths.base_dir must be set")
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateFetch() error {
	if c.Fetch.DiskThreshold <= 0 || c.Fetch.DiskThreshold > 1 {
		return errors.New("fetch.disk_threshold must be in (0, 1]")
	}
	return ensurePositiveMap(map[string]int{
		"fetch.request_timeout":     c.Fetch.RequestTimeout,
		"fetch.max_attempts":        c.Fetch.MaxAttempts,
		"fetch.disk_pause_interval": c.Fetch.DiskPauseInterval,
		"fetch.poll_interval":       c.Fetch.PollInterval,
	})
}

func (c *Config) validateBatch() error {
	return ensurePositiveMap(map[string]int{
		"batch.size_threshold":  c.Batch.SizeThreshold,
		"batch.default_size":    c.Batch.DefaultSize,
		"batch.submit_attempts": c.Batch.SubmitAttempts,
		"batch.poll_interval":   c.Batch.PollInterval,
	})
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.SubmitCommand == "" {
		return errors.New("scheduler.submit_command must be set")
	}
	if c.Scheduler.StatusCommand == "" {
		return errors.New("scheduler.status_command must be set")
	}
	return ensurePositiveMap(map[string]int{
		"scheduler.command_timeout": c.Scheduler.CommandTimeout,
	})
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.restart_limit":        c.Workflow.RestartLimit,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"collect.poll_interval":         c.Collect.PollInterval,
		"finalize.poll_interval":        c.Finalize.PollInterval,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
