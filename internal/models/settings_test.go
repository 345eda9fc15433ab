// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/sweepr/internal/domain"
)

func TestDefaultSettings(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	assert.False(t, s.StalledCleanup.Enabled)
	assert.False(t, s.OrphanScan.Enabled)
	assert.Equal(t, 30*time.Minute, s.StalledCleanup.Interval())
	assert.Equal(t, 24*time.Hour, s.StalledCleanup.MinAge())
	assert.Equal(t, 24*time.Hour, s.OrphanScan.Interval())
	assert.Equal(t, 22, s.OrphanScan.Connection.Port)
	assert.Empty(t, s.OrphanScan.Directories)
	assert.False(t, s.OrphanScan.DeleteEmptyDirs)
}

func TestSettingsNormalize_Clamps(t *testing.T) {
	t.Parallel()

	s := Settings{
		StalledCleanup: StalledCleanupSettings{IntervalMinutes: 0, MinAgeMinutes: -5},
		OrphanScan:     OrphanScanSettings{IntervalMinutes: -10, Connection: SFTPConnection{Host: " nas ", Username: " user "}},
	}
	require.NoError(t, s.Normalize())

	assert.Equal(t, MinIntervalMinutes, s.StalledCleanup.IntervalMinutes)
	assert.Equal(t, 0, s.StalledCleanup.MinAgeMinutes)
	assert.Equal(t, MinIntervalMinutes, s.OrphanScan.IntervalMinutes)
	assert.Equal(t, DefaultSFTPPort, s.OrphanScan.Connection.Port)
	assert.Equal(t, "nas", s.OrphanScan.Connection.Host)
	assert.Equal(t, "user", s.OrphanScan.Connection.Username)
}

func TestSettingsNormalize_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{name: "port too high", mutate: func(s *Settings) { s.OrphanScan.Connection.Port = 70000 }, want: "port"},
		{name: "negative port", mutate: func(s *Settings) { s.OrphanScan.Connection.Port = -1 }, want: "port"},
		{name: "relative directory", mutate: func(s *Settings) { s.OrphanScan.Directories = []string{"data/movies"} }, want: "not absolute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Normalize()
			require.ErrorIs(t, err, ErrInvalidSettings)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNormalizeDirectories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "real newlines",
			in:   []string{"/data/movies\n/data/tv"},
			want: []string{"/data/movies", "/data/tv"},
		},
		{
			name: "literal newline artifacts",
			in:   []string{`/data/movies\n/data/tv\n`},
			want: []string{"/data/movies", "/data/tv"},
		},
		{
			name: "trim and drop empties",
			in:   []string{"  /data/movies  ", "", "   ", "\n"},
			want: []string{"/data/movies"},
		},
		{
			name: "dedupe by normalized form keeps first spelling",
			in:   []string{"/data/movies/", "/data/./movies", "/data/tv", "/data/movies"},
			want: []string{"/data/movies/", "/data/tv"},
		},
		{
			name: "case sensitive",
			in:   []string{"/Data", "/data"},
			want: []string{"/Data", "/data"},
		},
		{
			name: "nil",
			in:   nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeDirectories(tt.in))
		})
	}
}

func TestSettingsMerge(t *testing.T) {
	t.Parallel()

	base := DefaultSettings()
	base.OrphanScan.Connection = SFTPConnection{Host: "nas", Port: 22, Username: "u", Secret: "stored"}
	base.OrphanScan.Directories = []string{"/data"}

	enabled := true
	interval := 5
	secret := "********"
	dirs := []string{"/data/movies"}
	merged := base.Merge(SettingsPatch{
		StalledCleanup: &StalledCleanupPatch{Enabled: &enabled},
		OrphanScan: &OrphanScanPatch{
			IntervalMinutes: &interval,
			Directories:     &dirs,
			Connection:      &SFTPConnectionPatch{Secret: &secret},
		},
	})

	assert.True(t, merged.StalledCleanup.Enabled)
	assert.Equal(t, base.StalledCleanup.IntervalMinutes, merged.StalledCleanup.IntervalMinutes, "nil fields stay untouched")
	assert.Equal(t, 5, merged.OrphanScan.IntervalMinutes)
	assert.Equal(t, []string{"/data/movies"}, merged.OrphanScan.Directories)
	assert.Equal(t, "stored", merged.OrphanScan.Connection.Secret, "redacted secret keeps stored value")
	assert.Equal(t, "nas", merged.OrphanScan.Connection.Host)
	assert.Equal(t, []string{"/data"}, base.OrphanScan.Directories, "base must not be mutated")

	newSecret := "fresh"
	merged = base.Merge(SettingsPatch{OrphanScan: &OrphanScanPatch{Connection: &SFTPConnectionPatch{Secret: &newSecret}}})
	assert.Equal(t, "fresh", merged.OrphanScan.Connection.Secret)

	redacted := domain.RedactedStr
	merged = base.Merge(SettingsPatch{OrphanScan: &OrphanScanPatch{Connection: &SFTPConnectionPatch{Secret: &redacted}}})
	assert.Equal(t, "stored", merged.OrphanScan.Connection.Secret)
}

func TestSettingsRedacted(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	s.OrphanScan.Connection.Secret = "hunter2"
	r := s.Redacted()
	assert.Equal(t, domain.RedactedStr, r.OrphanScan.Connection.Secret)
	assert.Equal(t, "hunter2", s.OrphanScan.Connection.Secret)

	s.OrphanScan.Connection.Secret = ""
	assert.Empty(t, s.Redacted().OrphanScan.Connection.Secret)
}

func TestRunResultAffected(t *testing.T) {
	t.Parallel()

	now := time.Now()
	stalled := NewRunResult(JobStalledCleanup, TriggerManual, now)
	stalled.Stalled.Attempted = 3
	stalled.Stalled.Removed = 2
	assert.Equal(t, 2, stalled.Affected())
	assert.False(t, stalled.Failed())

	orphan := NewRunResult(JobOrphanScan, TriggerScheduled, now)
	orphan.Orphan.Orphaned = 5
	orphan.Orphan.Deleted = 4
	assert.Equal(t, 4, orphan.Affected(), "failed deletions never count")
	orphan.RecordError("delete /x: permission denied")
	assert.True(t, orphan.Failed())

	var nilResult *RunResult
	assert.Zero(t, nilResult.Affected())
}

func TestParseJobID(t *testing.T) {
	t.Parallel()

	id, err := ParseJobID("orphan_scan")
	require.NoError(t, err)
	assert.Equal(t, JobOrphanScan, id)

	_, err = ParseJobID("reboot")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestSettingsPatchReplacesSecret(t *testing.T) {
	secret := func(v string) SettingsPatch {
		return SettingsPatch{OrphanScan: &OrphanScanPatch{Connection: &SFTPConnectionPatch{Secret: &v}}}
	}
	enabled := true

	assert.False(t, SettingsPatch{}.ReplacesSecret())
	assert.False(t, SettingsPatch{StalledCleanup: &StalledCleanupPatch{Enabled: &enabled}}.ReplacesSecret())
	assert.False(t, SettingsPatch{OrphanScan: &OrphanScanPatch{Connection: &SFTPConnectionPatch{}}}.ReplacesSecret())
	assert.False(t, secret("********").ReplacesSecret())
	assert.True(t, secret("new-pw").ReplacesSecret())
}
