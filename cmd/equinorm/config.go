package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes one normalization run. Keys missing from a file keep their defaults.
type Config struct {
	Rs      string  `yaml:"rs"`
	Batch   int     `yaml:"batch"`
	Size    int     `yaml:"size"`
	Epsilon float64 `yaml:"epsilon"`
	Affine  bool    `yaml:"affine"`
	Workers int     `yaml:"workers"`
	Seed    int64   `yaml:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Rs:      "3x1,4x3,1x5",
		Batch:   16,
		Size:    10,
		Epsilon: 1e-5,
		Affine:  true,
		Workers: 1,
		Seed:    1,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Batch < 1:
		return fmt.Errorf("batch must be positive, got %d", c.Batch)
	case c.Size < 1:
		return fmt.Errorf("size must be positive, got %d", c.Size)
	case c.Epsilon < 0:
		return fmt.Errorf("epsilon must not be negative, got %g", c.Epsilon)
	}
	return nil
}
