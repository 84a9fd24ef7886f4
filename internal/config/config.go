// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the application configuration from config.toml
// with KORO__ environment variable overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/koro-app/koro/internal/domain"
)

const envPrefix = "KORO__"

// AppConfig owns the loaded configuration.
type AppConfig struct {
	Config *domain.Config
	viper  *viper.Viper
}

// New loads the configuration. configPath may name a file or a directory;
// empty means the default config dir. A missing config file is not an
// error: defaults plus environment variables apply.
func New(configPath, version string) (*AppConfig, error) {
	c := &AppConfig{
		viper: viper.New(),
	}

	c.defaults(version)

	if err := c.load(configPath); err != nil {
		return nil, err
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	c.Config.Version = version

	c.applyEnvOverrides()
	c.resolvePaths(configPath)

	return c, nil
}

func (c *AppConfig) defaults(version string) {
	c.Config = &domain.Config{
		Version:        version,
		Host:           "127.0.0.1",
		Port:           7474,
		LogLevel:       "INFO",
		LogMaxSize:     50,
		LogMaxBackups:  3,
		RemoteTimeout:  domain.DefaultRemoteTimeout,
		DownloadsBatch: domain.DefaultDownloadBatchSize,
	}

	c.viper.SetDefault("host", c.Config.Host)
	c.viper.SetDefault("port", c.Config.Port)
	c.viper.SetDefault("logLevel", c.Config.LogLevel)
	c.viper.SetDefault("logMaxSize", c.Config.LogMaxSize)
	c.viper.SetDefault("logMaxBackups", c.Config.LogMaxBackups)
	c.viper.SetDefault("remoteTimeout", domain.DefaultRemoteTimeout)
	c.viper.SetDefault("downloadsBatch", domain.DefaultDownloadBatchSize)
}

func (c *AppConfig) load(configPath string) error {
	c.viper.SetConfigType("toml")

	switch {
	case configPath == "":
		c.viper.SetConfigName("config")
		c.viper.AddConfigPath(defaultConfigDir())
		c.viper.AddConfigPath(".")
	default:
		if info, err := os.Stat(configPath); err == nil && info.IsDir() {
			c.viper.SetConfigName("config")
			c.viper.AddConfigPath(configPath)
		} else {
			c.viper.SetConfigFile(configPath)
		}
	}

	if err := c.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			log.Debug().Msg("No config file found, using defaults")
			return nil
		}
		return errors.Wrap(err, "failed to read config")
	}

	return nil
}

// applyEnvOverrides maps KORO__SNAKE_CASE environment variables onto
// config fields. Environment always wins over the file.
func (c *AppConfig) applyEnvOverrides() {
	for env, apply := range map[string]func(string){
		"HOST":           func(v string) { c.Config.Host = v },
		"LOG_LEVEL":      func(v string) { c.Config.LogLevel = v },
		"LOG_PATH":       func(v string) { c.Config.LogPath = v },
		"DATA_DIR":       func(v string) { c.Config.DataDir = v },
		"DATABASE_PATH":  func(v string) { c.Config.DatabasePath = v },
		"REMOTE_URL":     func(v string) { c.Config.RemoteURL = v },
		"REMOTE_API_KEY": func(v string) { c.Config.RemoteAPIKey = v },
	} {
		if v, ok := os.LookupEnv(envPrefix + env); ok && v != "" {
			apply(v)
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "PORT"); ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Config.Port = port
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "REMOTE_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Config.RemoteTimeout = d
		}
	}
}

// resolvePaths fills in the path defaults that hang off the config
// location: database next to the config file, data dir next to that.
func (c *AppConfig) resolvePaths(configPath string) {
	base := configPath
	if used := c.viper.ConfigFileUsed(); used != "" {
		base = filepath.Dir(used)
	} else if base == "" {
		base = defaultConfigDir()
	} else if info, err := os.Stat(base); err != nil || !info.IsDir() {
		base = filepath.Dir(base)
	}

	if c.Config.DatabasePath == "" {
		c.Config.DatabasePath = filepath.Join(base, "koro.db")
	}
	if c.Config.DataDir == "" {
		c.Config.DataDir = filepath.Join(base, "data")
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "koro")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "koro")
}
