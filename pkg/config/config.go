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

	"github.com/ChrisMcGann/IDFilter/pkg/filter"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvConfigPath names the environment variable consulted when no path is given.
const EnvConfigPath = "IDFILTER_CONFIG"

// Store locates the evidence database.
type Store struct {
	Path   string `toml:"path"`
	Driver string `toml:"driver"`
}

// Filter holds the default filtering thresholds.
type Filter struct {
	MaxQValue             float64 `toml:"max_qvalue"`
	MinDistinctPeptides   int     `toml:"min_distinct_peptides"`
	MinSpectra            int     `toml:"min_spectra"`
	MinAdditionalPeptides int     `toml:"min_additional_peptides"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Runtime tunes parallelism and import batching.
type Runtime struct {
	Threads   int `toml:"threads"`
	ChunkSize int `toml:"chunk_size"`
}

// Config encapsulates all configuration values for IDFilter.
type Config struct {
	Store   Store   `toml:"store"`
	Filter  Filter  `toml:"filter"`
	Logging Logging `toml:"logging"`
	Runtime Runtime `toml:"runtime"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file
// is not an error: defaults are returned with exists set to false.
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
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
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
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = defaultConfigPath
	}

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

// ExpandPath exposes the path expansion rules for flag values.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// FilterConfig converts the [filter] section into engine parameters.
func (c *Config) FilterConfig() filter.Config {
	return filter.Config{
		MaximumQValue:                       c.Filter.MaxQValue,
		MinimumDistinctPeptidesPerProtein:   c.Filter.MinDistinctPeptides,
		MinimumSpectraPerProtein:            c.Filter.MinSpectra,
		MinimumAdditionalPeptidesPerProtein: c.Filter.MinAdditionalPeptides,
	}
}

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
