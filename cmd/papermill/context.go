package main

import (
	"strings"
	"sync"

	"papermill/internal/config"
	"papermill/internal/layout"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := layout.New(cfg.Paths.BaseDir).EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) layout() (layout.Layout, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return layout.Layout{}, err
	}
	return layout.New(cfg.Paths.BaseDir), nil
}
