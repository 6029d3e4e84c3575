// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dbpf.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"
workers = 3

[compression]
enabled = false
min_size = 128

[registry]
files = ["reg_file.txt", "/abs/reg_type.txt"]

[protection]
packages = ["spore_game.package"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, 3, cfg.WorkerCount())
	assert.False(t, cfg.Compression.Enabled)
	assert.Equal(t, 128, cfg.Compression.MinSize)
	assert.Equal(t, []string{
		filepath.Join(filepath.Dir(path), "reg_file.txt"),
		"/abs/reg_type.txt",
	}, cfg.Registry.Files)
	assert.Equal(t, []string{"spore_game.package"}, cfg.Protection.Packages)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "workers = 2\n"))
	require.NoError(t, err)

	want := Default()
	want.Workers = 2
	assert.Equal(t, want, cfg)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
	assert.Equal(t, runtime.NumCPU(), cfg.WorkerCount())
	assert.True(t, cfg.Compression.Enabled)
	assert.Equal(t, 32, cfg.Compression.MinSize)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "colour = \"blue\"\n"},
		{"bad level", "log_level = \"loud\"\n"},
		{"negative workers", "workers = -1\n"},
		{"negative min size", "[compression]\nmin_size = -5\n"},
		{"syntax", "workers = \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}
