// Package config reads the YAML configuration of the locket command.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	locketdb "github.com/i5heu/ouroboros-locket"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Path              string `yaml:"path"`
	MinimumFreeGB     int    `yaml:"minimumFreeGB"`
	GarbageCollection string `yaml:"garbageCollection"`
	Compress          bool   `yaml:"compress"`
	Workers           int    `yaml:"workers"`
	LogLevel          string `yaml:"logLevel"`
}

func Default() Config {
	return Config{
		Path:              "./locketdb",
		MinimumFreeGB:     1,
		GarbageCollection: "5m",
		LogLevel:          "info",
	}
}

// Load reads path and fills unset values with the defaults. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config: %w", err)
	}
	return Parse(data)
}

// Parse reads YAML on top of the defaults, so keys missing from data keep
// their default value. An explicit minimumFreeGB of 0 disables the
// free-space check.
func Parse(data []byte) (Config, error) {
	config := Default()
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	defaults := Default()
	if config.Path == "" {
		config.Path = defaults.Path
	}
	if config.GarbageCollection == "" {
		config.GarbageCollection = defaults.GarbageCollection
	}
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.MinimumFreeGB < 0 {
		return Config{}, fmt.Errorf("%w: minimumFreeGB must not be negative", ErrInvalidConfig)
	}
	if config.Workers < 0 {
		return Config{}, fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	}
	return config, nil
}

// DB converts the file configuration into the database configuration.
// garbageCollection "off" disables the background collection.
func (c Config) DB() (locketdb.Config, error) {
	var interval time.Duration
	if c.GarbageCollection != "off" {
		var err error
		interval, err = time.ParseDuration(c.GarbageCollection)
		if err != nil {
			return locketdb.Config{}, fmt.Errorf("%w: garbageCollection: %v", ErrInvalidConfig, err)
		}
	}

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return locketdb.Config{}, fmt.Errorf("%w: logLevel: %v", ErrInvalidConfig, err)
	}
	logger := logrus.New()
	logger.SetLevel(level)

	return locketdb.Config{
		Paths:                     []string{c.Path},
		MinimumFreeGB:             c.MinimumFreeGB,
		GarbageCollectionInterval: interval,
		Logger:                    logger,
		Compress:                  c.Compress,
		WorkerCount:               c.Workers,
	}, nil
}
