package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeFetch(); err != nil {
		return err
	}
	c.normalizeScheduler()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.BaseDir, err = expandPath(c.Paths.BaseDir); err != nil {
		return fmt.Errorf("paths.base_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFetch() error {
	var err error
	if c.Fetch.IdentifiersFile != "" {
		if c.Fetch.IdentifiersFile, err = expandPath(c.Fetch.IdentifiersFile); err != nil {
			return fmt.Errorf("fetch.identifiers_file: %w", err)
		}
	}
	c.Fetch.SourceBaseURL = strings.TrimRight(strings.TrimSpace(c.Fetch.SourceBaseURL), "/")
	if c.Fetch.SourceBaseURL == "" {
		c.Fetch.SourceBaseURL = defaultSourceBaseURL
	}
	if c.Fetch.Collection == "" {
		if value, ok := os.LookupEnv("PAPERMILL_COLLECTION"); ok {
			c.Fetch.Collection = value
		}
	}
	return nil
}

func (c *Config) normalizeScheduler() {
	c.Scheduler.SubmitCommand = strings.TrimSpace(c.Scheduler.SubmitCommand)
	c.Scheduler.StatusCommand = strings.TrimSpace(c.Scheduler.StatusCommand)
	c.Scheduler.CancelCommand = strings.TrimSpace(c.Scheduler.CancelCommand)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
