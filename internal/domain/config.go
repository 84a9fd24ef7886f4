// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"time"
)

// Config represents the application configuration
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`

	// DataDir holds downloaded media assets under <dataDir>/tracks.
	DataDir      string `toml:"dataDir" mapstructure:"dataDir"`
	DatabasePath string `toml:"databasePath" mapstructure:"databasePath"`

	// Remote authority (catalog + activation keys). RemoteTimeout bounds
	// every request so offline fallback triggers promptly instead of
	// hanging on a dead link.
	RemoteURL      string        `toml:"remoteUrl" mapstructure:"remoteUrl"`
	RemoteAPIKey   string        `toml:"remoteApiKey" mapstructure:"remoteApiKey"`
	RemoteTimeout  time.Duration `toml:"remoteTimeout" mapstructure:"remoteTimeout"`
	DownloadsBatch int           `toml:"downloadsBatch" mapstructure:"downloadsBatch"`
}

// DefaultRemoteTimeout is applied when remoteTimeout is unset or invalid.
const DefaultRemoteTimeout = 15 * time.Second

// DefaultDownloadBatchSize bounds how many pending assets a single
// download pass will fetch.
const DefaultDownloadBatchSize = 3

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("dataDir is required")
	}
	if c.DatabasePath == "" {
		return errors.New("databasePath is required")
	}
	return nil
}

// BatchSize returns the configured download batch size or the default.
func (c *Config) BatchSize() int {
	if c.DownloadsBatch > 0 {
		return c.DownloadsBatch
	}
	return DefaultDownloadBatchSize
}

// Timeout returns the configured remote timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RemoteTimeout > 0 {
		return c.RemoteTimeout
	}
	return DefaultRemoteTimeout
}
