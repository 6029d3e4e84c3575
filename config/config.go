// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package config loads the toolchain's TOML configuration.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	dbpf "github.com/sporemodder/go-dbpf"
)

type Config struct {
	LogLevel string `toml:"log_level" default:"info"`

	// Workers is the number of goroutines compressing or decoding
	// resources. Zero means one per CPU.
	Workers int `toml:"workers"`

	Compression CompressionConfig `toml:"compression"`
	Registry    RegistryConfig    `toml:"registry"`
	Protection  ProtectionConfig  `toml:"protection"`
}

type CompressionConfig struct {
	Enabled bool `toml:"enabled" default:"true"`
	MinSize int  `toml:"min_size" default:"32"`
}

type RegistryConfig struct {
	// Files are name registries, loaded in order. Relative paths are
	// resolved against the directory of the config file.
	Files []string `toml:"files"`
}

type ProtectionConfig struct {
	// Packages replaces the default list of archives that must never be
	// overwritten. Leave it empty to keep the defaults.
	Packages []string `toml:"packages"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Compression: CompressionConfig{
			Enabled: true,
			MinSize: dbpf.DefaultMinCompressSize,
		},
	}
}

// Load reads and validates a config file. Keys the file leaves out take
// their default values; unknown keys are an error.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	var cfg Config
	if err := toml.NewDecoder(f).Strict(true).Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	dir := filepath.Dir(path)
	for i, file := range cfg.Registry.Files {
		if !filepath.IsAbs(file) {
			cfg.Registry.Files[i] = filepath.Join(dir, file)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	if cfg.Workers < 0 {
		return errors.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.Compression.MinSize < 0 {
		return errors.Errorf("compression.min_size must not be negative, got %d", cfg.Compression.MinSize)
	}
	return nil
}

// WorkerCount returns the effective number of workers.
func (cfg *Config) WorkerCount() int {
	if cfg.Workers == 0 {
		return runtime.NumCPU()
	}
	return cfg.Workers
}

// Level returns the parsed log level. It assumes Validate passed.
func (cfg *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
