// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orphanscan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/autobrr/sweepr/internal/models"
	"github.com/autobrr/sweepr/internal/qbittorrent"
	"github.com/autobrr/sweepr/internal/remotefs"
	"github.com/autobrr/sweepr/pkg/pathcmp"
)

type fakeSource struct {
	torrents []qbittorrent.Torrent
	files    map[string][]qbittorrent.File
	listErr  error
	fileErr  map[string]error

	mu        sync.Mutex
	fileCalls int
}

func (f *fakeSource) ListTorrents(context.Context) ([]qbittorrent.Torrent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.torrents, nil
}

func (f *fakeSource) ListFiles(_ context.Context, hash string) ([]qbittorrent.File, error) {
	f.mu.Lock()
	f.fileCalls++
	f.mu.Unlock()
	if err := f.fileErr[hash]; err != nil {
		return nil, err
	}
	return f.files[hash], nil
}

func (f *fakeSource) DeleteTorrent(context.Context, string, bool) error {
	return errors.New("not supported")
}

// memTree is an in-memory remote store.
type memTree struct {
	mu          sync.Mutex
	files       map[string]bool
	dirs        map[string]bool
	failList    map[string]bool
	failRemove  map[string]bool
	removedDirs []string
	closed      bool
}

func newMemTree(dirs []string, files ...string) *memTree {
	t := &memTree{
		files:      make(map[string]bool),
		dirs:       make(map[string]bool),
		failList:   make(map[string]bool),
		failRemove: make(map[string]bool),
	}
	for _, d := range dirs {
		t.dirs[d] = true
	}
	for _, f := range files {
		t.files[f] = true
	}
	return t
}

func (m *memTree) List(dir string) ([]remotefs.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir = pathcmp.NormalizePath(dir)
	if m.failList[dir] {
		return nil, fmt.Errorf("permission denied")
	}
	if !m.dirs[dir] {
		return nil, fmt.Errorf("no such file")
	}

	var out []remotefs.Entry
	for d := range m.dirs {
		if d != dir && pathcmp.Parent(d) == dir {
			out = append(out, remotefs.Entry{Path: d, Kind: remotefs.KindDir})
		}
	}
	for f := range m.files {
		if pathcmp.Parent(f) == dir {
			out = append(out, remotefs.Entry{Path: f, Kind: remotefs.KindFile})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memTree) RemoveFile(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failRemove[p] {
		return fmt.Errorf("permission denied")
	}
	if !m.files[p] {
		return fmt.Errorf("no such file")
	}
	delete(m.files, p)
	return nil
}

func (m *memTree) RemoveDir(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for d := range m.dirs {
		if d != p && pathcmp.Parent(d) == p {
			return fmt.Errorf("directory not empty")
		}
	}
	for f := range m.files {
		if pathcmp.Parent(f) == p {
			return fmt.Errorf("directory not empty")
		}
	}
	delete(m.dirs, p)
	m.removedDirs = append(m.removedDirs, p)
	return nil
}

func (m *memTree) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memTree) fileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// listedSession serves fixed listings keyed by the exact path asked for and
// records every mutation verbatim.
type listedSession struct {
	mu       sync.Mutex
	listings map[string][]remotefs.Entry
	removed  []string
	rmdirs   []string
}

func (l *listedSession) List(dir string) ([]remotefs.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, ok := l.listings[dir]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", dir)
	}
	return entries, nil
}

func (l *listedSession) RemoveFile(p string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed = append(l.removed, p)
	return nil
}

func (l *listedSession) RemoveDir(p string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rmdirs = append(l.rmdirs, p)
	return nil
}

func (l *listedSession) Close() error { return nil }

type fakeDialer struct {
	session remotefs.Session
	err     error
	calls   int
}

func (d *fakeDialer) Dial(context.Context, remotefs.Connection, time.Duration) (remotefs.Session, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (p *capturePublisher) Publish(e models.ProgressEvent) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *capturePublisher) kinds() []models.ProgressKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ProgressKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

func scanSettings(dirs ...string) models.OrphanScanSettings {
	return models.OrphanScanSettings{
		Enabled:         true,
		IntervalMinutes: 60,
		Connection: models.SFTPConnection{
			Host:     "seedbox.example",
			Port:     22,
			Username: "sweepr",
			Secret:   "hunter2",
		},
		Directories: dirs,
	}
}
