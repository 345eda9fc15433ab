// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "sweepr.db")
	db, err := New(dbPath)
	require.NoError(t, err, "Failed to initialize database")
	t.Cleanup(func() { _ = db.Close() })
	return db, dbPath
}

func TestNew_CreatesSchemaAndSeedsJobs(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"job_settings", "job_state", "migrations"} {
		var count int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "Table %s should exist", table)
	}

	var jobs int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_settings`).Scan(&jobs))
	assert.Equal(t, 2, jobs)

	var total int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT total_affected FROM job_state WHERE job_id = ?`, "orphan_scan").Scan(&total))
	assert.Zero(t, total)
}

func TestMigrationIdempotency(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sweepr.db")

	db, err := New(dbPath)
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(), `UPDATE job_state SET total_affected = total_affected + ? WHERE job_id = ?`, 3, "orphan_scan")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(dbPath)
	require.NoError(t, err)
	defer db.Close()

	var applied int
	require.NoError(t, db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM migrations`).Scan(&applied))
	assert.Equal(t, 1, applied)

	var total int
	require.NoError(t, db.QueryRowContext(context.Background(), `SELECT total_affected FROM job_state WHERE job_id = ?`, "orphan_scan").Scan(&total))
	assert.Equal(t, 3, total, "reopening must not reseed state")
}

func TestExecContext_SerializesConcurrentWrites(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.ExecContext(ctx, `UPDATE job_state SET total_affected = total_affected + ? WHERE job_id = ?`, 1, "stalled_cleanup")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var total int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT total_affected FROM job_state WHERE job_id = ?`, "stalled_cleanup").Scan(&total))
	assert.Equal(t, 20, total)
}

func TestExecContext_AfterCloseFails(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sweepr.db")
	db, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.ExecContext(context.Background(), `UPDATE job_state SET total_affected = 0`)
	assert.ErrorIs(t, err, ErrClosing)
}

func TestIsWriteQuery(t *testing.T) {
	t.Parallel()

	assert.True(t, isWriteQuery("  insert into x values (1)"))
	assert.True(t, isWriteQuery("\nUPDATE job_state SET x = 1"))
	assert.True(t, isWriteQuery("DELETE FROM x"))
	assert.False(t, isWriteQuery("SELECT 1"))
	assert.False(t, isWriteQuery(""))
}
