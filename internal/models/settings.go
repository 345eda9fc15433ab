// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/autobrr/sweepr/internal/domain"
	"github.com/autobrr/sweepr/pkg/pathcmp"
)

const (
	MinIntervalMinutes = 1
	DefaultSFTPPort    = 22

	defaultStalledIntervalMinutes = 30
	defaultStalledMinAgeMinutes   = 24 * 60
	defaultOrphanIntervalMinutes  = 24 * 60
)

// ErrInvalidSettings wraps validation failures from Normalize.
var ErrInvalidSettings = errors.New("invalid settings")

type StalledCleanupSettings struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"intervalMinutes"`
	MinAgeMinutes   int  `json:"minAgeMinutes"`
}

// SFTPConnection holds the remote store credentials. Secret is a password or
// a PEM private key and is sealed at rest.
type SFTPConnection struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

type OrphanScanSettings struct {
	Enabled         bool           `json:"enabled"`
	IntervalMinutes int            `json:"intervalMinutes"`
	Connection      SFTPConnection `json:"connection"`
	Directories     []string       `json:"directories"`
	DeleteEmptyDirs bool           `json:"deleteEmptyDirs"`
}

// Settings is the persisted configuration of both jobs.
type Settings struct {
	StalledCleanup StalledCleanupSettings `json:"stalledCleanup"`
	OrphanScan     OrphanScanSettings     `json:"orphanScan"`
}

// DefaultSettings is what a fresh database holds.
func DefaultSettings() Settings {
	return Settings{
		StalledCleanup: StalledCleanupSettings{
			IntervalMinutes: defaultStalledIntervalMinutes,
			MinAgeMinutes:   defaultStalledMinAgeMinutes,
		},
		OrphanScan: OrphanScanSettings{
			IntervalMinutes: defaultOrphanIntervalMinutes,
			Connection:      SFTPConnection{Port: DefaultSFTPPort},
			Directories:     []string{},
		},
	}
}

func (s StalledCleanupSettings) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

func (s StalledCleanupSettings) MinAge() time.Duration {
	return time.Duration(s.MinAgeMinutes) * time.Minute
}

func (s OrphanScanSettings) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Schedule returns whether job is enabled and how often it runs.
func (s Settings) Schedule(job JobID) (bool, time.Duration) {
	switch job {
	case JobStalledCleanup:
		return s.StalledCleanup.Enabled, s.StalledCleanup.Interval()
	case JobOrphanScan:
		return s.OrphanScan.Enabled, s.OrphanScan.Interval()
	}
	return false, 0
}

// Normalize clamps intervals and ages, defaults the port, cleans the
// directory list and rejects what cannot be fixed up.
func (s *Settings) Normalize() error {
	if s.StalledCleanup.IntervalMinutes < MinIntervalMinutes {
		s.StalledCleanup.IntervalMinutes = MinIntervalMinutes
	}
	if s.StalledCleanup.MinAgeMinutes < 0 {
		s.StalledCleanup.MinAgeMinutes = 0
	}
	if s.OrphanScan.IntervalMinutes < MinIntervalMinutes {
		s.OrphanScan.IntervalMinutes = MinIntervalMinutes
	}

	conn := &s.OrphanScan.Connection
	conn.Host = strings.TrimSpace(conn.Host)
	conn.Username = strings.TrimSpace(conn.Username)
	if conn.Port == 0 {
		conn.Port = DefaultSFTPPort
	}
	if conn.Port < 1 || conn.Port > 65535 {
		return fmt.Errorf("%w: sftp port %d out of range", ErrInvalidSettings, conn.Port)
	}

	s.OrphanScan.Directories = NormalizeDirectories(s.OrphanScan.Directories)
	for _, dir := range s.OrphanScan.Directories {
		n := pathcmp.NormalizePath(dir)
		if !strings.HasPrefix(n, "/") && !pathcmp.IsWindowsDriveAbs(n) {
			return fmt.Errorf("%w: directory %q is not absolute", ErrInvalidSettings, dir)
		}
	}
	return nil
}

// NormalizeDirectories splits entries on real newlines and on literal "\n"
// sequences left behind by form inputs, trims them, drops empties and
// dedupes by normalized path. The first spelling of each path wins and
// order is kept.
func NormalizeDirectories(entries []string) []string {
	out := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		entry = strings.ReplaceAll(entry, `\n`, "\n")
		for _, part := range strings.Split(entry, "\n") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			key := pathcmp.NormalizePath(part)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

// Redacted returns a copy safe to hand to API clients.
func (s Settings) Redacted() Settings {
	out := s
	out.OrphanScan.Directories = append([]string{}, s.OrphanScan.Directories...)
	out.OrphanScan.Connection.Secret = domain.RedactString(s.OrphanScan.Connection.Secret)
	return out
}

// SettingsPatch is a JSON merge-patch over Settings. Nil fields are left
// untouched.
type SettingsPatch struct {
	StalledCleanup *StalledCleanupPatch `json:"stalledCleanup,omitempty"`
	OrphanScan     *OrphanScanPatch     `json:"orphanScan,omitempty"`
}

type StalledCleanupPatch struct {
	Enabled         *bool `json:"enabled,omitempty"`
	IntervalMinutes *int  `json:"intervalMinutes,omitempty"`
	MinAgeMinutes   *int  `json:"minAgeMinutes,omitempty"`
}

type SFTPConnectionPatch struct {
	Host     *string `json:"host,omitempty"`
	Port     *int    `json:"port,omitempty"`
	Username *string `json:"username,omitempty"`
	Secret   *string `json:"secret,omitempty"`
}

type OrphanScanPatch struct {
	Enabled         *bool                `json:"enabled,omitempty"`
	IntervalMinutes *int                 `json:"intervalMinutes,omitempty"`
	Connection      *SFTPConnectionPatch `json:"connection,omitempty"`
	Directories     *[]string            `json:"directories,omitempty"`
	DeleteEmptyDirs *bool                `json:"deleteEmptyDirs,omitempty"`
}

// Merge applies patch to a copy of s. A redacted secret echoed back by a
// client keeps the stored one.
func (s Settings) Merge(patch SettingsPatch) Settings {
	out := s
	out.OrphanScan.Directories = append([]string{}, s.OrphanScan.Directories...)

	if p := patch.StalledCleanup; p != nil {
		setIf(&out.StalledCleanup.Enabled, p.Enabled)
		setIf(&out.StalledCleanup.IntervalMinutes, p.IntervalMinutes)
		setIf(&out.StalledCleanup.MinAgeMinutes, p.MinAgeMinutes)
	}

	if p := patch.OrphanScan; p != nil {
		setIf(&out.OrphanScan.Enabled, p.Enabled)
		setIf(&out.OrphanScan.IntervalMinutes, p.IntervalMinutes)
		setIf(&out.OrphanScan.DeleteEmptyDirs, p.DeleteEmptyDirs)
		if p.Directories != nil {
			out.OrphanScan.Directories = append([]string{}, (*p.Directories)...)
		}
		if c := p.Connection; c != nil {
			setIf(&out.OrphanScan.Connection.Host, c.Host)
			setIf(&out.OrphanScan.Connection.Port, c.Port)
			setIf(&out.OrphanScan.Connection.Username, c.Username)
			if c.Secret != nil && !domain.IsRedactedValue(*c.Secret) {
				out.OrphanScan.Connection.Secret = *c.Secret
			}
		}
	}
	return out
}

// ReplacesSecret reports whether the patch carries a new SFTP secret.
func (p SettingsPatch) ReplacesSecret() bool {
	if p.OrphanScan == nil || p.OrphanScan.Connection == nil || p.OrphanScan.Connection.Secret == nil {
		return false
	}
	return !domain.IsRedactedValue(*p.OrphanScan.Connection.Secret)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
