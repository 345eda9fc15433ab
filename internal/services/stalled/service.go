// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package stalled removes downloads that have been stuck for too long.
package stalled

import (
	"context"
	"fmt"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweepr/internal/models"
	"github.com/autobrr/sweepr/internal/qbittorrent"
)

// Publisher receives progress events. Implementations must not block.
type Publisher interface {
	Publish(event models.ProgressEvent)
}

type Service struct {
	source    qbittorrent.Source
	publisher Publisher
	now       func() time.Time
}

// NewService returns a reconciler. source may be nil when qBittorrent is not
// configured; every run then fails with qbittorrent.ErrNotConfigured.
func NewService(source qbittorrent.Source, publisher Publisher) *Service {
	return &Service{
		source:    source,
		publisher: publisher,
		now:       time.Now,
	}
}

// isStalled reports whether state is a download that makes no progress.
// stalledUP is excluded: it is a seeding torrent with no peers.
func isStalled(state qbt.TorrentState) bool {
	switch state {
	case qbt.TorrentStateStalledDl, qbt.TorrentStateMetaDl:
		return true
	}
	return false
}

// selectStalled returns torrents in a stalled download state that were added
// at least minAge before now.
func selectStalled(torrents []qbittorrent.Torrent, now time.Time, minAge time.Duration) []qbittorrent.Torrent {
	var out []qbittorrent.Torrent
	for _, t := range torrents {
		if !isStalled(t.State) {
			continue
		}
		if now.Sub(t.AddedOn) < minAge {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Run deletes every stalled torrent older than the configured minimum age,
// including its data. A failed delete is logged and the batch continues.
func (s *Service) Run(ctx context.Context, settings models.StalledCleanupSettings) *models.StalledResult {
	result := &models.StalledResult{}

	if s.source == nil {
		result.Error = qbittorrent.ErrNotConfigured.Error()
		return result
	}

	torrents, err := s.source.ListTorrents(ctx)
	if err != nil {
		log.Error().Err(err).Msg("stalled: failed to list torrents")
		result.Error = fmt.Sprintf("list torrents: %v", err)
		return result
	}

	now := s.now()
	selected := selectStalled(torrents, now, settings.MinAge())
	result.Attempted = len(selected)

	for _, t := range selected {
		if err := ctx.Err(); err != nil {
			result.Error = err.Error()
			break
		}

		ok := true
		if err := s.source.DeleteTorrent(ctx, t.Hash, true); err != nil {
			ok = false
			log.Error().Err(err).Str("hash", t.Hash).Str("name", t.Name).Msg("stalled: failed to delete torrent")
		} else {
			result.Removed++
			log.Info().
				Str("hash", t.Hash).
				Str("name", t.Name).
				Str("state", string(t.State)).
				Dur("age", now.Sub(t.AddedOn)).
				Msg("stalled: removed torrent")
		}

		s.publish(models.ProgressData{
			Hash:      t.Hash,
			Path:      t.Name,
			Success:   &ok,
			Attempted: result.Attempted,
			Removed:   result.Removed,
		})
	}

	log.Info().Int("attempted", result.Attempted).Int("removed", result.Removed).Msg("stalled: run finished")
	return result
}

func (s *Service) publish(data models.ProgressData) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(models.ProgressEvent{
		JobID:     models.JobStalledCleanup,
		Kind:      models.ProgressDeleting,
		Timestamp: s.now(),
		Data:      data,
	})
}
