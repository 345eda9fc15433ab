// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"errors"
	"fmt"
	"time"
)

// JobID names one of the fixed background jobs.
type JobID string

const (
	JobStalledCleanup JobID = "stalled_cleanup"
	JobOrphanScan     JobID = "orphan_scan"
)

// AllJobs lists every job in display order.
var AllJobs = []JobID{JobStalledCleanup, JobOrphanScan}

// ErrUnknownJob is returned for identifiers outside AllJobs.
var ErrUnknownJob = errors.New("unknown job")

// ParseJobID validates s as a JobID.
func ParseJobID(s string) (JobID, error) {
	for _, id := range AllJobs {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownJob, s)
}

// Trigger records what started a run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// StalledResult is the outcome of one stalled cleanup run.
type StalledResult struct {
	Attempted int    `json:"attempted"`
	Removed   int    `json:"removed"`
	Error     string `json:"error,omitempty"`
}

// OrphanResult is the outcome of one orphan scan run. Errors holds
// per-directory and per-item diagnostics, or the single reason a run aborted.
type OrphanResult struct {
	Scanned  int      `json:"scanned"`
	Orphaned int      `json:"orphaned"`
	Deleted  int      `json:"deleted"`
	Errors   []string `json:"errors"`
}

// RunResult carries exactly one of Stalled or Orphan.
type RunResult struct {
	JobID       JobID          `json:"jobId"`
	Trigger     Trigger        `json:"trigger"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt"`
	Stalled     *StalledResult `json:"stalled,omitempty"`
	Orphan      *OrphanResult  `json:"orphan,omitempty"`
}

// NewRunResult returns an empty result shaped for job.
func NewRunResult(job JobID, trigger Trigger, startedAt time.Time) *RunResult {
	r := &RunResult{JobID: job, Trigger: trigger, StartedAt: startedAt}
	switch job {
	case JobStalledCleanup:
		r.Stalled = &StalledResult{}
	case JobOrphanScan:
		r.Orphan = &OrphanResult{Errors: []string{}}
	}
	return r
}

// Affected is the amount added to the cumulative counter: torrents removed
// or files deleted. Orphans that failed to delete do not count.
func (r *RunResult) Affected() int {
	if r == nil {
		return 0
	}
	switch {
	case r.Stalled != nil:
		return r.Stalled.Removed
	case r.Orphan != nil:
		return r.Orphan.Deleted
	}
	return 0
}

// Failed reports whether the run recorded any error.
func (r *RunResult) Failed() bool {
	if r == nil {
		return false
	}
	if r.Stalled != nil && r.Stalled.Error != "" {
		return true
	}
	return r.Orphan != nil && len(r.Orphan.Errors) > 0
}

// RecordError stores msg in the job-specific error slot.
func (r *RunResult) RecordError(msg string) {
	switch {
	case r.Stalled != nil:
		if r.Stalled.Error == "" {
			r.Stalled.Error = msg
		} else {
			r.Stalled.Error += "; " + msg
		}
	case r.Orphan != nil:
		r.Orphan.Errors = append(r.Orphan.Errors, msg)
	}
}

// ProgressKind classifies a ProgressEvent.
type ProgressKind string

const (
	ProgressScanning ProgressKind = "scanning"
	ProgressDeleting ProgressKind = "deleting"
	ProgressSummary  ProgressKind = "summary"
)

// ProgressEvent is a best-effort observability message. Nothing reads it
// for control flow.
type ProgressEvent struct {
	JobID     JobID        `json:"jobId"`
	Kind      ProgressKind `json:"kind"`
	Timestamp time.Time    `json:"timestamp"`
	Data      any          `json:"data,omitempty"`
}

// ProgressData is the payload of scanning and deleting events.
type ProgressData struct {
	Directory string `json:"directory,omitempty"`
	Path      string `json:"path,omitempty"`
	Hash      string `json:"hash,omitempty"`
	Success   *bool  `json:"success,omitempty"`
	Scanned   int    `json:"scanned"`
	Orphaned  int    `json:"orphaned"`
	Deleted   int    `json:"deleted"`
	Attempted int    `json:"attempted"`
	Removed   int    `json:"removed"`
}
