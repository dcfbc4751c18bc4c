package config

import (
	"errors"
	"fmt"

	"github.com/ChrisMcGann/IDFilter/pkg/store/sqlite"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateFilter(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateRuntime()
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case sqlite.DriverCGO, sqlite.DriverPure:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", sqlite.DriverCGO, sqlite.DriverPure, c.Store.Driver)
	}
	return nil
}

func (c *Config) validateFilter() error {
	fc := c.FilterConfig()
	if err := fc.Validate(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateRuntime() error {
	if c.Runtime.Threads < 0 {
		return errors.New("runtime.threads must be >= 0")
	}
	if c.Runtime.ChunkSize < 0 {
		return errors.New("runtime.chunk_size must be > 0")
	}
	return nil
}
