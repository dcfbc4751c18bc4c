package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	c.Store.Path = strings.TrimSpace(c.Store.Path)
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
	if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = Default().Store.Driver
	}

	c.normalizeLogging()

	if c.Runtime.ChunkSize == 0 {
		c.Runtime.ChunkSize = Default().Runtime.ChunkSize
	}
	return nil
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
