// Package config loads, normalizes, and validates IDFilter configuration.
//
// Settings come from a TOML file (by default ~/.config/idfilter/config.toml,
// or the path in IDFILTER_CONFIG) layered over repository defaults. Command
// line flags override file values after loading.
package config
