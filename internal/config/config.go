// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the TOML configuration with viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/sweepr/internal/crypto"
	"github.com/autobrr/sweepr/internal/domain"
)

const (
	envPrefix      = "SWEEPR__"
	configFileName = "config.toml"
	databaseName   = "sweepr.db"
)

var configTemplate = template.Must(template.New("config").Parse(`# config.toml - Auto-generated on first run

# Hostname / IP the admin API listens on
# Default: "localhost"
host = "{{ .Host }}"

# Port
# Default: 7478
port = 7478

# Base URL
# Set custom baseUrl eg /sweepr/ to serve behind a reverse proxy subfolder
# Default: "/"
#baseUrl = "/sweepr/"

# Session secret
# Seals stored SFTP credentials. Changing it makes them unreadable.
sessionSecret = "{{ .SessionSecret }}"

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "INFO"

# Log file path
# If not defined, logs to stdout
#logPath = "log/sweepr.log"

# Maximum log file size in megabytes before rotation
# Default: 50
#logMaxSize = 50

# Number of rotated log files to retain (0 keeps all)
# Default: 3
#logMaxBackups = 3

# Data directory for sweepr.db
# Default: next to this file
#dataDir = "/var/lib/sweepr"

# Expose Prometheus metrics on /metrics
# Default: false
#metricsEnabled = true

# qBittorrent Web API
#qbittorrentHost = "http://localhost:8080"
#qbittorrentUsername = "admin"
#qbittorrentPassword = ""

# SFTP dial timeout in seconds
# Default: 30
#sftpConnectTimeout = 30

# known_hosts file used to verify SFTP host keys
# Without it any host key is accepted
#sftpKnownHostsPath = "~/.ssh/known_hosts"
`))

// AppConfig owns the viper instance and the decoded configuration.
type AppConfig struct {
	Config     *domain.Config
	viper      *viper.Viper
	configPath string
}

// New loads configuration from configPath, which may be a file or a
// directory. An empty path resolves to the default config directory. A
// missing file is created from the default template.
func New(configPath string) (*AppConfig, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	if err := ensureConfigFile(path); err != nil {
		return nil, err
	}

	c := &AppConfig{
		Config:     &domain.Config{},
		viper:      viper.New(),
		configPath: path,
	}
	c.defaults()
	c.bindEnv()

	c.viper.SetConfigFile(path)
	c.viper.SetConfigType("toml")
	if err := c.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if c.Config.DataDir == "" {
		c.Config.DataDir = filepath.Dir(path)
	}

	if err := c.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("config loaded")
	return c, nil
}

func (c *AppConfig) defaults() {
	v := c.viper
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 7478)
	v.SetDefault("baseUrl", "/")
	v.SetDefault("logLevel", "INFO")
	v.SetDefault("logPath", "")
	v.SetDefault("logMaxSize", 50)
	v.SetDefault("logMaxBackups", 3)
	v.SetDefault("dataDir", "")
	v.SetDefault("databasePath", "")
	v.SetDefault("metricsEnabled", false)
	v.SetDefault("corsAllowedOrigins", []string{})
	v.SetDefault("qbittorrentHost", "")
	v.SetDefault("qbittorrentUsername", "")
	v.SetDefault("qbittorrentPassword", "")
	v.SetDefault("qbittorrentBasicUser", "")
	v.SetDefault("qbittorrentBasicPass", "")
	v.SetDefault("sftpConnectTimeout", 30)
	v.SetDefault("sftpKnownHostsPath", "")
	v.SetDefault("sessionSecret", "")
}

// bindEnv maps every camelCase key to SWEEPR__SNAKE_CASE.
func (c *AppConfig) bindEnv() {
	for _, key := range c.viper.AllKeys() {
		_ = c.viper.BindEnv(key, envName(key))
	}
}

// viper lowercases keys, so the camelCase form is recovered from the
// struct tags for env naming.
var camelKeys = map[string]string{
	"baseurl":              "baseUrl",
	"sessionsecret":        "sessionSecret",
	"loglevel":             "logLevel",
	"logpath":              "logPath",
	"logmaxsize":           "logMaxSize",
	"logmaxbackups":        "logMaxBackups",
	"datadir":              "dataDir",
	"databasepath":         "databasePath",
	"metricsenabled":       "metricsEnabled",
	"corsallowedorigins":   "corsAllowedOrigins",
	"qbittorrenthost":      "qbittorrentHost",
	"qbittorrentusername":  "qbittorrentUsername",
	"qbittorrentpassword":  "qbittorrentPassword",
	"qbittorrentbasicuser": "qbittorrentBasicUser",
	"qbittorrentbasicpass": "qbittorrentBasicPass",
	"sftpconnecttimeout":   "sftpConnectTimeout",
	"sftpknownhostspath":   "sftpKnownHostsPath",
}

func envName(key string) string {
	if camel, ok := camelKeys[key]; ok {
		key = camel
	}
	var b strings.Builder
	b.WriteString(envPrefix)
	for i, r := range key {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// GetDatabasePath returns databasePath, or sweepr.db inside dataDir.
func (c *AppConfig) GetDatabasePath() string {
	if p := strings.TrimSpace(c.Config.DatabasePath); p != "" {
		return p
	}
	return filepath.Join(c.Config.DataDir, databaseName)
}

// ConfigPath returns the resolved config file path.
func (c *AppConfig) ConfigPath() string {
	return c.configPath
}

func resolveConfigPath(configPath string) (string, error) {
	if configPath == "" {
		return filepath.Join(getDefaultConfigDir(), configFileName), nil
	}
	if strings.HasSuffix(strings.ToLower(configPath), ".toml") {
		return configPath, nil
	}
	info, err := os.Stat(configPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat config path %s: %w", configPath, err)
	}
	if err == nil && !info.IsDir() {
		return configPath, nil
	}
	return filepath.Join(configPath, configFileName), nil
}

// getDefaultConfigDir follows XDG. A container-style XDG_CONFIG_HOME of
// /config is used as is.
func getDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		if xdg == "/config" {
			return xdg
		}
		return filepath.Join(xdg, "sweepr")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "sweepr")
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	secret, err := crypto.GenerateSecureToken(32)
	if err != nil {
		return fmt.Errorf("generate session secret: %w", err)
	}

	host := "localhost"
	if _, inContainer := os.LookupEnv("SWEEPR__HOST"); inContainer {
		host = "0.0.0.0"
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()

	if err := configTemplate.Execute(f, struct{ Host, SessionSecret string }{host, secret}); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("wrote default config")
	return nil
}
