// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultSFTPConnectTimeout bounds the SSH dial when sftpConnectTimeout is unset.
const DefaultSFTPConnectTimeout = 30 * time.Second

// Config represents the application configuration
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	SessionSecret string `toml:"sessionSecret" mapstructure:"sessionSecret"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`
	DatabasePath  string `toml:"databasePath" mapstructure:"databasePath"`

	MetricsEnabled     bool     `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	CORSAllowedOrigins []string `toml:"corsAllowedOrigins" mapstructure:"corsAllowedOrigins"`

	// qBittorrent is the download-state source of truth for both jobs.
	QBittorrentHost      string `toml:"qbittorrentHost" mapstructure:"qbittorrentHost"`
	QBittorrentUsername  string `toml:"qbittorrentUsername" mapstructure:"qbittorrentUsername"`
	QBittorrentPassword  string `toml:"qbittorrentPassword" mapstructure:"qbittorrentPassword"`
	QBittorrentBasicUser string `toml:"qbittorrentBasicUser" mapstructure:"qbittorrentBasicUser"`
	QBittorrentBasicPass string `toml:"qbittorrentBasicPass" mapstructure:"qbittorrentBasicPass"`

	// SFTPConnectTimeout is in seconds.
	SFTPConnectTimeout int    `toml:"sftpConnectTimeout" mapstructure:"sftpConnectTimeout"`
	SFTPKnownHostsPath string `toml:"sftpKnownHostsPath" mapstructure:"sftpKnownHostsPath"`
}

// QBittorrentConfigured reports whether a download-state source is set up.
func (c *Config) QBittorrentConfigured() bool {
	return strings.TrimSpace(c.QBittorrentHost) != ""
}

// SFTPDialTimeout returns the configured dial timeout or the default.
func (c *Config) SFTPDialTimeout() time.Duration {
	if c.SFTPConnectTimeout <= 0 {
		return DefaultSFTPConnectTimeout
	}
	return time.Duration(c.SFTPConnectTimeout) * time.Second
}

// Validate checks values viper cannot constrain.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		errs = append(errs, errors.New("sessionSecret is required"))
	}
	if c.SFTPConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("sftpConnectTimeout must not be negative, got %d", c.SFTPConnectTimeout))
	}
	return errors.Join(errs...)
}
