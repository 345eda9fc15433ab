// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu          sync.Mutex
	loginErrs   []error
	logins      int
	torrents    []qbt.Torrent
	torrentsErr error
	files       map[string]*qbt.TorrentFiles
	filesErr    error
	deleted     []string
	deleteFiles []bool
	deleteErr   error
}

func (f *fakeAPI) LoginCtx(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if len(f.loginErrs) > 0 {
		err := f.loginErrs[0]
		f.loginErrs = f.loginErrs[1:]
		return err
	}
	return nil
}

func (f *fakeAPI) GetWebAPIVersionCtx(context.Context) (string, error) {
	return "2.11.4", nil
}

func (f *fakeAPI) GetTorrentsCtx(context.Context, qbt.TorrentFilterOptions) ([]qbt.Torrent, error) {
	return f.torrents, f.torrentsErr
}

func (f *fakeAPI) GetFilesInformationCtx(_ context.Context, hash string) (*qbt.TorrentFiles, error) {
	if f.filesErr != nil {
		return nil, f.filesErr
	}
	return f.files[hash], nil
}

func (f *fakeAPI) DeleteTorrentsCtx(_ context.Context, hashes []string, deleteFiles bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, hashes...)
	f.deleteFiles = append(f.deleteFiles, deleteFiles)
	return nil
}

func newTestClient(a api) *Client {
	c := newClient(a, "http://qbt:8080", 3)
	c.retryDelay = time.Millisecond
	return c
}

func TestNewClientRequiresHost(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Host: "  "})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestListTorrentsMapsFields(t *testing.T) {
	t.Parallel()

	fake := &fakeAPI{torrents: []qbt.Torrent{{
		Hash:        "abc",
		Name:        "Movie",
		State:       qbt.TorrentStateStalledDl,
		AddedOn:     1700000000,
		SavePath:    "/data/movies",
		ContentPath: "/data/movies/Movie",
	}}}
	c := newTestClient(fake)

	torrents, err := c.ListTorrents(context.Background())
	require.NoError(t, err)
	require.Len(t, torrents, 1)
	assert.Equal(t, Torrent{
		Hash:        "abc",
		Name:        "Movie",
		State:       qbt.TorrentStateStalledDl,
		AddedOn:     time.Unix(1700000000, 0),
		SavePath:    "/data/movies",
		ContentPath: "/data/movies/Movie",
	}, torrents[0])
	assert.Equal(t, 1, fake.logins)

	_, err = c.ListTorrents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fake.logins, "session is reused")
}

func TestLoginRetries(t *testing.T) {
	t.Parallel()

	fake := &fakeAPI{loginErrs: []error{errors.New("refused"), errors.New("refused")}}
	c := newTestClient(fake)

	_, err := c.ListTorrents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, fake.logins)
}

func TestLoginGivesUp(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad credentials")
	fake := &fakeAPI{loginErrs: []error{boom, boom, boom}}
	c := newTestClient(fake)

	_, err := c.ListTorrents(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad credentials")
	assert.Equal(t, 3, fake.logins)
}

func TestFailedCallForcesRelogin(t *testing.T) {
	t.Parallel()

	fake := &fakeAPI{torrentsErr: errors.New("403 forbidden")}
	c := newTestClient(fake)

	_, err := c.ListTorrents(context.Background())
	require.Error(t, err)
	fake.torrentsErr = nil

	_, err = c.ListTorrents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fake.logins)
}

func TestListFiles(t *testing.T) {
	t.Parallel()

	fake := &fakeAPI{files: map[string]*qbt.TorrentFiles{
		"abc": {{Name: "Pack/a.mkv", Size: 10}, {Name: "Pack/b.nfo", Size: 1}},
	}}
	c := newTestClient(fake)

	files, err := c.ListFiles(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []File{{Name: "Pack/a.mkv", Size: 10}, {Name: "Pack/b.nfo", Size: 1}}, files)

	empty, err := c.ListFiles(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)

	fake.filesErr = errors.New("timeout")
	_, err = c.ListFiles(context.Background(), "abc")
	require.Error(t, err)
}

func TestDeleteTorrent(t *testing.T) {
	t.Parallel()

	fake := &fakeAPI{}
	c := newTestClient(fake)

	require.NoError(t, c.DeleteTorrent(context.Background(), "abc", true))
	assert.Equal(t, []string{"abc"}, fake.deleted)
	assert.Equal(t, []bool{true}, fake.deleteFiles)

	fake.deleteErr = errors.New("nope")
	err := c.DeleteTorrent(context.Background(), "def", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "def")
}

func TestFilteredWriter(t *testing.T) {
	t.Parallel()

	var sink sinkWriter
	fw := &filteredWriter{writer: &sink}

	n, err := fw.Write([]byte("http: Unsolicited response received on idle HTTP channel starting with"))
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Empty(t, sink.data)

	_, err = fw.Write([]byte("other"))
	require.NoError(t, err)
	assert.Equal(t, "other", string(sink.data))
}

type sinkWriter struct{ data []byte }

func (s *sinkWriter) Write(p []byte) (int, error) {
	s.data = append(s.data, p...)
	return len(p), nil
}
