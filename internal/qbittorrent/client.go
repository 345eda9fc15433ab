// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbittorrent adapts go-qbittorrent to the read-mostly view the
// reconcilers need: list torrents, list a torrent's files, delete one torrent.
package qbittorrent

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
)

// ErrNotConfigured is returned by every call when no host is configured.
var ErrNotConfigured = errors.New("qbittorrent is not configured")

const (
	defaultTimeout       = 30 * time.Second
	defaultLoginAttempts = 3
	loginRetryDelay      = 2 * time.Second
)

// Torrent is a read-only snapshot of one torrent for a single run.
type Torrent struct {
	Hash        string           `json:"hash"`
	Name        string           `json:"name"`
	State       qbt.TorrentState `json:"state"`
	AddedOn     time.Time        `json:"addedOn"`
	SavePath    string           `json:"savePath"`
	ContentPath string           `json:"contentPath"`
}

// File is one entry of a torrent's manifest, relative to its save path.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Source is what the reconcilers consume.
type Source interface {
	ListTorrents(ctx context.Context) ([]Torrent, error)
	ListFiles(ctx context.Context, hash string) ([]File, error)
	DeleteTorrent(ctx context.Context, hash string, deleteFiles bool) error
}

// api is the slice of *qbt.Client used here.
type api interface {
	LoginCtx(ctx context.Context) error
	GetWebAPIVersionCtx(ctx context.Context) (string, error)
	GetTorrentsCtx(ctx context.Context, o qbt.TorrentFilterOptions) ([]qbt.Torrent, error)
	GetFilesInformationCtx(ctx context.Context, hash string) (*qbt.TorrentFiles, error)
	DeleteTorrentsCtx(ctx context.Context, hashes []string, deleteFiles bool) error
}

type Config struct {
	Host          string
	Username      string
	Password      string
	BasicUser     string
	BasicPass     string
	Timeout       time.Duration
	LoginAttempts uint
}

// Client logs in lazily and again after any failed call, so a restarted
// qBittorrent does not need a sweepr restart.
type Client struct {
	api           api
	host          string
	loginAttempts uint
	retryDelay    time.Duration

	mu       sync.Mutex
	loggedIn bool
}

var _ Source = (*Client)(nil)

// filteredWriter drops the "Unsolicited response received on idle HTTP
// channel" noise net/http logs when qBittorrent sends trailing responses.
type filteredWriter struct {
	writer io.Writer
}

func (fw *filteredWriter) Write(p []byte) (int, error) {
	if strings.Contains(string(p), "Unsolicited response received on idle HTTP channel") {
		return len(p), nil
	}
	return fw.writer.Write(p)
}

var stdlogFilter sync.Once

// NewClient builds a client for cfg. No request is made until first use.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, ErrNotConfigured
	}

	stdlogFilter.Do(func() {
		stdlog.SetOutput(&filteredWriter{writer: os.Stderr})
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	qcfg := qbt.Config{
		Host:     cfg.Host,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  int(timeout / time.Second),
	}
	if cfg.BasicUser != "" {
		qcfg.BasicUser = cfg.BasicUser
		qcfg.BasicPass = cfg.BasicPass
	}

	return newClient(qbt.NewClient(qcfg), cfg.Host, cfg.LoginAttempts), nil
}

func newClient(a api, host string, attempts uint) *Client {
	if attempts == 0 {
		attempts = defaultLoginAttempts
	}
	return &Client{api: a, host: host, loginAttempts: attempts, retryDelay: loginRetryDelay}
}

func (c *Client) ensureLogin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loggedIn {
		return nil
	}

	err := retry.Do(
		func() error { return c.api.LoginCtx(ctx) },
		retry.Context(ctx),
		retry.Attempts(c.loginAttempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Str("host", c.host).Uint("attempt", n+1).Msg("qbittorrent: login failed, retrying")
		}),
	)
	if err != nil {
		return fmt.Errorf("login to qbittorrent at %s: %w", c.host, err)
	}

	version, err := c.api.GetWebAPIVersionCtx(ctx)
	if err != nil {
		version = "unknown"
	}
	log.Debug().Str("host", c.host).Str("webAPIVersion", version).Msg("qbittorrent: logged in")

	c.loggedIn = true
	return nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()
}

// ListTorrents returns every torrent known to qBittorrent.
func (c *Client) ListTorrents(ctx context.Context) ([]Torrent, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}

	raw, err := c.api.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{})
	if err != nil {
		c.invalidate()
		return nil, fmt.Errorf("list torrents: %w", err)
	}

	torrents := make([]Torrent, 0, len(raw))
	for _, t := range raw {
		torrents = append(torrents, Torrent{
			Hash:        t.Hash,
			Name:        t.Name,
			State:       t.State,
			AddedOn:     time.Unix(t.AddedOn, 0),
			SavePath:    t.SavePath,
			ContentPath: t.ContentPath,
		})
	}
	return torrents, nil
}

// ListFiles returns the file manifest of hash. A nil manifest from the API is
// an empty listing, not an error.
func (c *Client) ListFiles(ctx context.Context, hash string) ([]File, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}

	raw, err := c.api.GetFilesInformationCtx(ctx, hash)
	if err != nil {
		c.invalidate()
		return nil, fmt.Errorf("list files of %s: %w", hash, err)
	}
	if raw == nil {
		return []File{}, nil
	}

	files := make([]File, 0, len(*raw))
	for _, f := range *raw {
		files = append(files, File{Name: f.Name, Size: f.Size})
	}
	return files, nil
}

// DeleteTorrent removes one torrent, optionally with its data.
func (c *Client) DeleteTorrent(ctx context.Context, hash string, deleteFiles bool) error {
	if err := c.ensureLogin(ctx); err != nil {
		return err
	}

	if err := c.api.DeleteTorrentsCtx(ctx, []string{hash}, deleteFiles); err != nil {
		c.invalidate()
		return fmt.Errorf("delete torrent %s: %w", hash, err)
	}
	return nil
}
