// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package stalled

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/sweepr/internal/models"
	"github.com/autobrr/sweepr/internal/qbittorrent"
)

type fakeSource struct {
	torrents  []qbittorrent.Torrent
	listErr   error
	deleteErr map[string]error

	mu       sync.Mutex
	deleted  []string
	withData []bool
}

func (f *fakeSource) ListTorrents(context.Context) ([]qbittorrent.Torrent, error) {
	return f.torrents, f.listErr
}

func (f *fakeSource) ListFiles(context.Context, string) ([]qbittorrent.File, error) {
	return nil, nil
}

func (f *fakeSource) DeleteTorrent(_ context.Context, hash string, deleteFiles bool) error {
	if err := f.deleteErr[hash]; err != nil {
		return err
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, hash)
	f.withData = append(f.withData, deleteFiles)
	f.mu.Unlock()
	return nil
}

type capturePublisher struct {
	events []models.ProgressEvent
}

func (p *capturePublisher) Publish(e models.ProgressEvent) {
	p.events = append(p.events, e)
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(source qbittorrent.Source, pub Publisher) *Service {
	s := NewService(source, pub)
	s.now = func() time.Time { return testNow }
	return s
}

func TestRun_RemovesOnlyOldStalledDownloads(t *testing.T) {
	t.Parallel()

	source := &fakeSource{torrents: []qbittorrent.Torrent{
		{Hash: "old-stalled", State: qbt.TorrentStateStalledDl, AddedOn: testNow.Add(-48 * time.Hour)},
		{Hash: "old-meta", State: qbt.TorrentStateMetaDl, AddedOn: testNow.Add(-25 * time.Hour)},
		{Hash: "young-stalled", State: qbt.TorrentStateStalledDl, AddedOn: testNow.Add(-time.Hour)},
		{Hash: "seeding", State: qbt.TorrentStateStalledUp, AddedOn: testNow.Add(-72 * time.Hour)},
		{Hash: "downloading", State: qbt.TorrentStateDownloading, AddedOn: testNow.Add(-72 * time.Hour)},
	}}
	pub := &capturePublisher{}

	res := newTestService(source, pub).Run(context.Background(), models.StalledCleanupSettings{MinAgeMinutes: 24 * 60})

	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 2, res.Removed)
	assert.Empty(t, res.Error)
	assert.ElementsMatch(t, []string{"old-stalled", "old-meta"}, source.deleted)
	assert.Equal(t, []bool{true, true}, source.withData)
	require.Len(t, pub.events, 2)
	assert.Equal(t, models.ProgressDeleting, pub.events[0].Kind)
	assert.Equal(t, models.JobStalledCleanup, pub.events[0].JobID)
}

func TestRun_AgeBoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	source := &fakeSource{torrents: []qbittorrent.Torrent{
		{Hash: "exact", State: qbt.TorrentStateStalledDl, AddedOn: testNow.Add(-30 * time.Minute)},
	}}

	res := newTestService(source, nil).Run(context.Background(), models.StalledCleanupSettings{MinAgeMinutes: 30})

	assert.Equal(t, 1, res.Removed)
}

func TestRun_DeleteFailureDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		torrents: []qbittorrent.Torrent{
			{Hash: "a", State: qbt.TorrentStateStalledDl},
			{Hash: "b", State: qbt.TorrentStateStalledDl},
			{Hash: "c", State: qbt.TorrentStateMetaDl},
		},
		deleteErr: map[string]error{"b": errors.New("forbidden")},
	}

	res := newTestService(source, nil).Run(context.Background(), models.StalledCleanupSettings{})

	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 2, res.Removed)
	assert.Empty(t, res.Error)
	assert.Equal(t, []string{"a", "c"}, source.deleted)
}

func TestRun_ListFailure(t *testing.T) {
	t.Parallel()

	source := &fakeSource{listErr: errors.New("connection refused")}

	res := newTestService(source, nil).Run(context.Background(), models.StalledCleanupSettings{})

	assert.Zero(t, res.Attempted)
	assert.Zero(t, res.Removed)
	assert.Contains(t, res.Error, "connection refused")
}

func TestRun_NotConfigured(t *testing.T) {
	t.Parallel()

	res := newTestService(nil, nil).Run(context.Background(), models.StalledCleanupSettings{})

	assert.Equal(t, qbittorrent.ErrNotConfigured.Error(), res.Error)
}

func TestIsStalled(t *testing.T) {
	t.Parallel()

	assert.True(t, isStalled(qbt.TorrentStateStalledDl))
	assert.True(t, isStalled(qbt.TorrentStateMetaDl))
	assert.True(t, isStalled("stalledDL"))
	assert.False(t, isStalled(qbt.TorrentStateStalledUp))
	assert.False(t, isStalled(qbt.TorrentStatePausedDl))
	assert.False(t, isStalled(""))
}
