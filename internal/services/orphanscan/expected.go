// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orphanscan

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/autobrr/sweepr/internal/qbittorrent"
	"github.com/autobrr/sweepr/pkg/pathcmp"
)

// ExpectedSet is the set of normalized remote paths owned by torrents. It is
// safe for concurrent use while it is being built.
type ExpectedSet struct {
	paths map[string]struct{}
	mu    sync.RWMutex
}

func NewExpectedSet() *ExpectedSet {
	return &ExpectedSet{paths: make(map[string]struct{})}
}

// Add inserts p after normalization.
func (s *ExpectedSet) Add(p string) {
	n := pathcmp.NormalizePath(p)
	if n == "" {
		return
	}
	s.mu.Lock()
	s.paths[n] = struct{}{}
	s.mu.Unlock()
}

// Has normalizes p and tests membership.
func (s *ExpectedSet) Has(p string) bool {
	n := pathcmp.NormalizePath(p)
	s.mu.RLock()
	_, ok := s.paths[n]
	s.mu.RUnlock()
	return ok
}

func (s *ExpectedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.paths)
}

// torrentBase is the directory a torrent's file names are relative to.
func torrentBase(t qbittorrent.Torrent) string {
	if t.SavePath != "" {
		return t.SavePath
	}
	return pathcmp.Parent(t.ContentPath)
}

// buildExpectedSet snapshots the torrent list and every file manifest. Any
// failed manifest call aborts the build: skipping that torrent would leave
// its files unprotected.
//
// Torrents added after the snapshot are not protected; a file they create
// during the scan may be classified as an orphan.
func buildExpectedSet(ctx context.Context, source qbittorrent.Source, concurrency int) (*ExpectedSet, int, error) {
	torrents, err := source.ListTorrents(ctx)
	if err != nil {
		return nil, 0, err
	}

	set := NewExpectedSet()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for _, t := range torrents {
		g.Go(func() error {
			files, err := source.ListFiles(gctx, t.Hash)
			if err != nil {
				return err
			}

			if len(files) == 0 {
				// degenerate manifest: protect whatever the content path is
				if t.ContentPath != "" {
					set.Add(t.ContentPath)
				}
				return nil
			}

			base := torrentBase(t)
			for _, f := range files {
				set.Add(pathcmp.Join(base, f.Name))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, len(torrents), fmt.Errorf("build expected file set: %w", err)
	}
	return set, len(torrents), nil
}
