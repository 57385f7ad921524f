// Package config merges the flag-backed options with the config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Mootikins/crucible/internal/crucible/options"
)

// Config is the running configuration of the crucible process.
type Config struct {
	*options.Options
}

// Load reads the config file (if present) over the option defaults.
// Every key the file provides overwrites the value in opts, including a
// value set by a flag; keys the file omits keep their flag or default
// value.
func Load(opts *options.Options, configFile string) (*Config, error) {
	v := viper.New()
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configFile = filepath.Join(home, ".crucible", "config.yaml")
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %q: %w", configFile, err)
			}
		} else if err := v.Unmarshal(opts); err != nil {
			return nil, fmt.Errorf("failed to decode config %q: %w", configFile, err)
		}
	}

	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %v", errs)
	}
	return &Config{Options: opts}, nil
}
