// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package orphanscan deletes files on the remote store that no torrent owns.
package orphanscan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweepr/internal/models"
	"github.com/autobrr/sweepr/internal/qbittorrent"
	"github.com/autobrr/sweepr/internal/remotefs"
)

// ErrNotConfigured marks a run that was refused before any I/O.
var ErrNotConfigured = errors.New("orphan scan is not configured")

const defaultManifestConcurrency = 4

// Publisher receives progress events. Implementations must not block.
type Publisher interface {
	Publish(event models.ProgressEvent)
}

type Config struct {
	Source      qbittorrent.Source
	Dialer      remotefs.Dialer
	DialTimeout time.Duration
	Publisher   Publisher
	// Concurrency bounds parallel file manifest requests.
	Concurrency int
}

type Service struct {
	source      qbittorrent.Source
	dialer      remotefs.Dialer
	dialTimeout time.Duration
	publisher   Publisher
	concurrency int
	now         func() time.Time
}

func NewService(cfg Config) *Service {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultManifestConcurrency
	}
	return &Service{
		source:      cfg.Source,
		dialer:      cfg.Dialer,
		dialTimeout: cfg.DialTimeout,
		publisher:   cfg.Publisher,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// checkPreconditions returns the reason a run cannot start, or nil.
func (s *Service) checkPreconditions(settings models.OrphanScanSettings, dirs []string) error {
	conn := settings.Connection
	switch {
	case s.source == nil:
		return fmt.Errorf("%w: no qbittorrent host configured", ErrNotConfigured)
	case s.dialer == nil:
		return fmt.Errorf("%w: no sftp dialer", ErrNotConfigured)
	case strings.TrimSpace(conn.Host) == "":
		return fmt.Errorf("%w: sftp host is empty", ErrNotConfigured)
	case strings.TrimSpace(conn.Username) == "":
		return fmt.Errorf("%w: sftp username is empty", ErrNotConfigured)
	case conn.Secret == "":
		return fmt.Errorf("%w: sftp secret is empty", ErrNotConfigured)
	case len(dirs) == 0:
		return fmt.Errorf("%w: no directories to scan", ErrNotConfigured)
	}
	return nil
}

// Run performs one scan. Errors are collected in the result; the returned
// result is never nil.
func (s *Service) Run(ctx context.Context, settings models.OrphanScanSettings) *models.OrphanResult {
	result := &models.OrphanResult{Errors: []string{}}

	dirs := models.NormalizeDirectories(settings.Directories)
	if err := s.checkPreconditions(settings, dirs); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	expected, torrentCount, err := buildExpectedSet(ctx, s.source, s.concurrency)
	if err != nil {
		log.Error().Err(err).Msg("orphanscan: aborting run")
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	log.Debug().Int("torrents", torrentCount).Int("paths", expected.Len()).Msg("orphanscan: expected set built")

	conn := settings.Connection
	session, err := s.dialer.Dial(ctx, remotefs.Connection{
		Host:     conn.Host,
		Port:     conn.Port,
		Username: conn.Username,
		Secret:   conn.Secret,
	}, s.dialTimeout)
	if err != nil {
		err = fmt.Errorf("connect to %s: %w", conn.Host, err)
		log.Error().Err(err).Msg("orphanscan: aborting run")
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Debug().Err(err).Msg("orphanscan: close session")
		}
	}()

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, err.Error())
			break
		}
		s.scanDirectory(ctx, session, dir, settings.DeleteEmptyDirs, expected, result)
	}

	log.Info().
		Int("scanned", result.Scanned).
		Int("orphaned", result.Orphaned).
		Int("deleted", result.Deleted).
		Int("errors", len(result.Errors)).
		Msg("orphanscan: run finished")

	return result
}

func (s *Service) scanDirectory(ctx context.Context, session remotefs.Session, dir string, prune bool, expected *ExpectedSet, result *models.OrphanResult) {
	s.publish(models.ProgressScanning, models.ProgressData{
		Directory: dir,
		Scanned:   result.Scanned,
		Orphaned:  result.Orphaned,
		Deleted:   result.Deleted,
	})

	walk, err := walkTree(ctx, session, dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("orphanscan: directory listing failed")
		result.Errors = append(result.Errors, fmt.Sprintf("list %s: %v", dir, err))
		return
	}
	result.Errors = append(result.Errors, walk.errs...)

	for _, file := range walk.files {
		result.Scanned++
		if expected.Has(file.norm) {
			continue
		}

		result.Orphaned++
		ok := true
		if err := safeDeleteFile(session, dir, file); err != nil {
			ok = false
			log.Warn().Err(err).Str("path", file.raw).Msg("orphanscan: delete failed")
			result.Errors = append(result.Errors, err.Error())
		} else {
			result.Deleted++
			log.Debug().Str("path", file.raw).Msg("orphanscan: deleted orphan")
		}

		s.publish(models.ProgressDeleting, models.ProgressData{
			Directory: dir,
			Path:      file.raw,
			Success:   &ok,
			Scanned:   result.Scanned,
			Orphaned:  result.Orphaned,
			Deleted:   result.Deleted,
		})
	}

	if prune && len(walk.dirs) > 0 {
		if n := pruneEmptyDirs(session, dir, walk.dirs); n > 0 {
			log.Debug().Int("removed", n).Str("dir", dir).Msg("orphanscan: pruned empty directories")
		}
	}
}

func (s *Service) publish(kind models.ProgressKind, data models.ProgressData) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(models.ProgressEvent{
		JobID:     models.JobOrphanScan,
		Kind:      kind,
		Timestamp: s.now(),
		Data:      data,
	})
}
