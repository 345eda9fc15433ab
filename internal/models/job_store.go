// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/autobrr/sweepr/internal/database"
)

// ErrSecretUnreadable is returned alongside otherwise valid settings when the
// stored SFTP secret cannot be opened, usually after sessionSecret changed.
var ErrSecretUnreadable = errors.New("stored sftp secret cannot be decrypted")

// SecretSealer seals credentials at rest.
type SecretSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// JobState is the cumulative, persisted record of a job.
type JobState struct {
	JobID         JobID      `json:"jobId"`
	TotalAffected int64      `json:"totalAffected"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	LastResult    *RunResult `json:"lastResult,omitempty"`
}

// JobStore persists job settings and cumulative state.
type JobStore struct {
	db     database.Querier
	sealer SecretSealer
}

func NewJobStore(db database.Querier, sealer SecretSealer) *JobStore {
	return &JobStore{db: db, sealer: sealer}
}

// GetSettings loads both jobs' settings with the secret opened. When only
// the secret fails to open, the settings are returned with an empty secret
// and an error wrapping ErrSecretUnreadable.
func (s *JobStore) GetSettings(ctx context.Context) (Settings, error) {
	settings := DefaultSettings()

	row := s.db.QueryRowContext(ctx, `
		SELECT enabled, interval_minutes, min_age_minutes
		FROM job_settings
		WHERE job_id = ?
	`, string(JobStalledCleanup))
	err := row.Scan(
		&settings.StalledCleanup.Enabled,
		&settings.StalledCleanup.IntervalMinutes,
		&settings.StalledCleanup.MinAgeMinutes,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return settings, fmt.Errorf("load stalled cleanup settings: %w", err)
	}

	var (
		sealedSecret    string
		directoriesJSON string
	)
	row = s.db.QueryRowContext(ctx, `
		SELECT enabled, interval_minutes, sftp_host, sftp_port, sftp_username,
		       sftp_secret_encrypted, directories, delete_empty_dirs
		FROM job_settings
		WHERE job_id = ?
	`, string(JobOrphanScan))
	err = row.Scan(
		&settings.OrphanScan.Enabled,
		&settings.OrphanScan.IntervalMinutes,
		&settings.OrphanScan.Connection.Host,
		&settings.OrphanScan.Connection.Port,
		&settings.OrphanScan.Connection.Username,
		&sealedSecret,
		&directoriesJSON,
		&settings.OrphanScan.DeleteEmptyDirs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("load orphan scan settings: %w", err)
	}

	if directoriesJSON != "" {
		if err := json.Unmarshal([]byte(directoriesJSON), &settings.OrphanScan.Directories); err != nil {
			return settings, fmt.Errorf("decode orphan scan directories: %w", err)
		}
	}
	if settings.OrphanScan.Directories == nil {
		settings.OrphanScan.Directories = []string{}
	}

	secret, err := s.sealer.Open(sealedSecret)
	if err != nil {
		return settings, fmt.Errorf("%w: %v", ErrSecretUnreadable, err)
	}
	settings.OrphanScan.Connection.Secret = secret

	return settings, nil
}

// SaveSettings normalizes settings, seals the secret and writes both rows in
// one transaction. The normalized value is returned.
func (s *JobStore) SaveSettings(ctx context.Context, settings Settings) (Settings, error) {
	return s.saveSettings(ctx, settings, false)
}

// SaveSettingsKeepSecret saves everything except the sealed SFTP secret,
// which stays as stored. It is used when the stored secret cannot be opened
// and the caller has no new one.
func (s *JobStore) SaveSettingsKeepSecret(ctx context.Context, settings Settings) (Settings, error) {
	return s.saveSettings(ctx, settings, true)
}

func (s *JobStore) saveSettings(ctx context.Context, settings Settings, keepSecret bool) (Settings, error) {
	if err := settings.Normalize(); err != nil {
		return settings, err
	}

	sealedSecret, err := s.sealer.Seal(settings.OrphanScan.Connection.Secret)
	if err != nil {
		return settings, fmt.Errorf("seal sftp secret: %w", err)
	}

	directoriesJSON, err := json.Marshal(settings.OrphanScan.Directories)
	if err != nil {
		return settings, fmt.Errorf("encode orphan scan directories: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return settings, fmt.Errorf("begin settings transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_settings (job_id, enabled, interval_minutes, min_age_minutes, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(job_id) DO UPDATE SET
			enabled = excluded.enabled,
			interval_minutes = excluded.interval_minutes,
			min_age_minutes = excluded.min_age_minutes,
			updated_at = CURRENT_TIMESTAMP
	`, string(JobStalledCleanup), settings.StalledCleanup.Enabled,
		settings.StalledCleanup.IntervalMinutes, settings.StalledCleanup.MinAgeMinutes); err != nil {
		return settings, fmt.Errorf("save stalled cleanup settings: %w", err)
	}

	conn := settings.OrphanScan.Connection
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_settings (job_id, enabled, interval_minutes, sftp_host, sftp_port,
		                          sftp_username, sftp_secret_encrypted, directories,
		                          delete_empty_dirs, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(job_id) DO UPDATE SET
			enabled = excluded.enabled,
			interval_minutes = excluded.interval_minutes,
			sftp_host = excluded.sftp_host,
			sftp_port = excluded.sftp_port,
			sftp_username = excluded.sftp_username,
			sftp_secret_encrypted = CASE WHEN ? THEN job_settings.sftp_secret_encrypted
			                             ELSE excluded.sftp_secret_encrypted END,
			directories = excluded.directories,
			delete_empty_dirs = excluded.delete_empty_dirs,
			updated_at = CURRENT_TIMESTAMP
	`, string(JobOrphanScan), settings.OrphanScan.Enabled, settings.OrphanScan.IntervalMinutes,
		conn.Host, conn.Port, conn.Username, sealedSecret, string(directoriesJSON),
		settings.OrphanScan.DeleteEmptyDirs, keepSecret); err != nil {
		return settings, fmt.Errorf("save orphan scan settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return settings, fmt.Errorf("commit settings: %w", err)
	}
	return settings, nil
}

// GetState returns the cumulative record of job. A job that never ran has a
// zero state.
func (s *JobStore) GetState(ctx context.Context, job JobID) (JobState, error) {
	state := JobState{JobID: job}

	var (
		lastRunAt  sql.NullTime
		lastResult sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT total_affected, last_run_at, last_result
		FROM job_state
		WHERE job_id = ?
	`, string(job)).Scan(&state.TotalAffected, &lastRunAt, &lastResult)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("load %s state: %w", job, err)
	}

	if lastRunAt.Valid {
		t := lastRunAt.Time
		state.LastRunAt = &t
	}
	if lastResult.Valid && lastResult.String != "" {
		var result RunResult
		if err := json.Unmarshal([]byte(lastResult.String), &result); err != nil {
			return state, fmt.Errorf("decode %s last result: %w", job, err)
		}
		state.LastResult = &result
	}
	return state, nil
}

// RecordRun stores result as the job's last run and adds Affected() to the
// cumulative counter in a single statement. Failed runs are recorded too;
// they never reset the counter.
func (s *JobStore) RecordRun(ctx context.Context, result *RunResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}

	affected := result.Affected()
	if affected < 0 {
		affected = 0
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE job_state
		SET total_affected = total_affected + ?,
		    last_run_at = ?,
		    last_result = ?
		WHERE job_id = ?
	`, affected, result.CompletedAt.UTC(), string(payload), string(result.JobID))
	if err != nil {
		return fmt.Errorf("record %s run: %w", result.JobID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO job_state (job_id, total_affected, last_run_at, last_result)
			VALUES (?, ?, ?, ?)
		`, string(result.JobID), affected, result.CompletedAt.UTC(), string(payload)); err != nil {
			return fmt.Errorf("record %s run: %w", result.JobID, err)
		}
	}
	return nil
}
