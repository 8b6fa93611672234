// Package config loads the optional TOML configuration file accepted
// by the riscvemu CLI's -c/--config flag. Every field is optional;
// zero values mean "let the flag defaults apply" and are filled in by
// Load's caller, never by this package.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config mirrors the riscvemu CLI's flag set so a file can supply
// defaults for any of them. A command-line flag whose value differs
// from its default overrides the value a config file sets; a flag
// left at (or explicitly set to) its default does not.
type Config struct {
	DramBase  *uint32 `toml:"dram_base"`
	DramSize  *uint32 `toml:"dram_size"`
	MaxCycles *int    `toml:"max_cycles"`
	Verbose   *bool   `toml:"verbose"`
	Debug     *bool   `toml:"debug"`
}

// Load parses the TOML file at path into a Config. A file that cannot
// be read or parsed is reported with the file name attached; a field
// absent from the file is left nil and is not an error. The MetaData
// toml.DecodeFile returns is ignored, so unknown keys are not
// rejected.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return &c, nil
}
