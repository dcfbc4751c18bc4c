package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ChrisMcGann/IDFilter/pkg/config"
	"github.com/ChrisMcGann/IDFilter/pkg/logging"
	"github.com/ChrisMcGann/IDFilter/pkg/store/sqlite"
)

type globalFlags struct {
	configPath string
	dbPath     string
	driver     string
	threads    int
	logLevel   string
	logFormat  string
}

// commandContext loads configuration once per invocation and applies the
// persistent flag overrides on top of it.
type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.configPath))
		if err != nil {
			c.configErr = err
			return
		}
		if err := c.applyOverrides(cfg); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) applyOverrides(cfg *config.Config) error {
	if path := strings.TrimSpace(c.flags.dbPath); path != "" {
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return fmt.Errorf("resolve database path: %w", err)
		}
		cfg.Store.Path = expanded
	}
	if driver := strings.TrimSpace(c.flags.driver); driver != "" {
		cfg.Store.Driver = strings.ToLower(driver)
	}
	if c.flags.threads >= 0 {
		cfg.Runtime.Threads = c.flags.threads
	}
	if level := strings.TrimSpace(c.flags.logLevel); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if format := strings.TrimSpace(c.flags.logFormat); format != "" {
		cfg.Logging.Format = strings.ToLower(format)
	}
	return nil
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// openStore opens the configured database, creating its directory when
// create is set.
func (c *commandContext) openStore(ctx context.Context, create bool) (*sqlite.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.Store.Path
	if create {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	} else if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("database %s does not exist; run `idfilter import` first", path)
		}
		return nil, fmt.Errorf("check database path: %w", err)
	}
	return sqlite.Open(ctx, path, cfg.Store.Driver)
}
