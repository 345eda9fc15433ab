// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweepr/internal/api/sse"
	"github.com/autobrr/sweepr/internal/config"
	"github.com/autobrr/sweepr/internal/crypto"
	"github.com/autobrr/sweepr/internal/database"
	"github.com/autobrr/sweepr/internal/logger"
	"github.com/autobrr/sweepr/internal/metrics"
	"github.com/autobrr/sweepr/internal/models"
	"github.com/autobrr/sweepr/internal/qbittorrent"
	"github.com/autobrr/sweepr/internal/remotefs"
	"github.com/autobrr/sweepr/internal/services/orphanscan"
	"github.com/autobrr/sweepr/internal/services/scheduler"
	"github.com/autobrr/sweepr/internal/services/stalled"
)

// app holds every long-lived component. Commands build one, use what they
// need and close it.
type app struct {
	cfg       *config.AppConfig
	db        *database.DB
	store     *models.JobStore
	broker    *sse.Broker
	metrics   *metrics.Manager
	scheduler *scheduler.Scheduler
	logCloser io.Closer
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.New(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	a := &app{cfg: cfg}
	a.logCloser = logger.Setup(cfg.Config)

	sealer, err := crypto.NewSealer(cfg.Config.SessionSecret)
	if err != nil {
		a.close()
		return nil, errors.Wrap(err, "init secret sealer")
	}

	dbPath := cfg.GetDatabasePath()
	db, err := database.New(dbPath)
	if err != nil {
		a.close()
		return nil, errors.Wrapf(err, "open database %s", dbPath)
	}
	a.db = db
	a.store = models.NewJobStore(db, sealer)

	// a nil *Client must not reach the reconcilers as a non-nil interface
	var source qbittorrent.Source
	if cfg.Config.QBittorrentConfigured() {
		client, err := qbittorrent.NewClient(qbittorrent.Config{
			Host:      cfg.Config.QBittorrentHost,
			Username:  cfg.Config.QBittorrentUsername,
			Password:  cfg.Config.QBittorrentPassword,
			BasicUser: cfg.Config.QBittorrentBasicUser,
			BasicPass: cfg.Config.QBittorrentBasicPass,
		})
		if err != nil {
			a.close()
			return nil, errors.Wrap(err, "init qbittorrent client")
		}
		source = client
	} else {
		log.Warn().Msg("qbittorrentHost is not set; both jobs will fail until it is configured")
	}

	a.broker = sse.NewBroker(0)

	orphan := orphanscan.NewService(orphanscan.Config{
		Source:      source,
		Dialer:      &remotefs.SFTPDialer{KnownHostsPath: cfg.Config.SFTPKnownHostsPath},
		DialTimeout: cfg.Config.SFTPDialTimeout(),
		Publisher:   a.broker,
	})

	schedCfg := scheduler.Config{
		Store:     a.store,
		Stalled:   stalled.NewService(source, a.broker),
		Orphan:    orphan,
		Publisher: a.broker,
	}
	if cfg.Config.MetricsEnabled {
		a.metrics = metrics.NewManager(nil)
		schedCfg.Observer = a.metrics.JobCollector
	}

	a.scheduler = scheduler.New(schedCfg)
	if a.metrics != nil {
		a.metrics.SetStatusSource(a.scheduler)
	}

	return a, nil
}

func (a *app) close() {
	if a.broker != nil {
		_ = a.broker.Shutdown(context.Background())
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}
