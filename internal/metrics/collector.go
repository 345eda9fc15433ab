// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweepr/internal/services/scheduler"
)

// StatusSource is satisfied by *scheduler.Scheduler.
type StatusSource interface {
	StatusAll(ctx context.Context) ([]scheduler.JobStatus, error)
}

// JobStateCollector exposes the persisted job state at scrape time.
type JobStateCollector struct {
	source StatusSource

	enabledDesc       *prometheus.Desc
	runningDesc       *prometheus.Desc
	totalAffectedDesc *prometheus.Desc
	lastRunDesc       *prometheus.Desc
}

func NewJobStateCollector(source StatusSource) *JobStateCollector {
	return &JobStateCollector{
		source: source,

		enabledDesc: prometheus.NewDesc(
			"sweepr_job_enabled",
			"Whether the job is scheduled (1=enabled, 0=disabled)",
			[]string{"job"},
			nil,
		),
		runningDesc: prometheus.NewDesc(
			"sweepr_job_running",
			"Whether the job is currently running",
			[]string{"job"},
			nil,
		),
		totalAffectedDesc: prometheus.NewDesc(
			"sweepr_job_total_affected",
			"Cumulative number of items removed by the job, persisted across restarts",
			[]string{"job"},
			nil,
		),
		lastRunDesc: prometheus.NewDesc(
			"sweepr_job_last_run_timestamp_seconds",
			"Unix time the job last completed",
			[]string{"job"},
			nil,
		),
	}
}

func (c *JobStateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.enabledDesc
	ch <- c.runningDesc
	ch <- c.totalAffectedDesc
	ch <- c.lastRunDesc
}

func (c *JobStateCollector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		log.Debug().Msg("Status source is nil, skipping job state metrics")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	statuses, err := c.source.StatusAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load job state for metrics")
		return
	}

	for _, st := range statuses {
		job := string(st.JobID)

		ch <- prometheus.MustNewConstMetric(c.enabledDesc, prometheus.GaugeValue, boolToFloat(st.Enabled), job)
		ch <- prometheus.MustNewConstMetric(c.runningDesc, prometheus.GaugeValue, boolToFloat(st.Running), job)
		ch <- prometheus.MustNewConstMetric(c.totalAffectedDesc, prometheus.CounterValue, float64(st.TotalAffected), job)

		if st.LastRunAt != nil {
			ch <- prometheus.MustNewConstMetric(c.lastRunDesc, prometheus.GaugeValue, float64(st.LastRunAt.Unix()), job)
		}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
