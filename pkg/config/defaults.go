package config

import (
	"github.com/ChrisMcGann/IDFilter/pkg/filter"
	"github.com/ChrisMcGann/IDFilter/pkg/store/sqlite"
)

const (
	defaultConfigPath = "~/.config/idfilter/config.toml"
	defaultStorePath  = "~/idfilter/evidence.db"
	defaultLogFormat  = "console"
	defaultLogLevel   = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Store: Store{
			Path:   defaultStorePath,
			Driver: sqlite.DriverCGO,
		},
		Filter: Filter{
			MaxQValue:             filter.DefaultMaximumQValue,
			MinDistinctPeptides:   filter.DefaultMinimumDistinctPeptidesPerProtein,
			MinSpectra:            filter.DefaultMinimumSpectraPerProtein,
			MinAdditionalPeptides: filter.DefaultMinimumAdditionalPeptidesPerProtein,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Runtime: Runtime{
			ChunkSize: sqlite.DefaultChunkSize,
		},
	}
}
