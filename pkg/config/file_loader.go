package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadWithFile loads the environment configuration, then applies
// overrides from the YAML file named by VINLEDGER_CONFIG if set.
// A missing file is an error; an unset variable is not.
func LoadWithFile() (*Config, error) {
	cfg := Load()

	path := os.Getenv("VINLEDGER_CONFIG")
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return cfg, nil
}
