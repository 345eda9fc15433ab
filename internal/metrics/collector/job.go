// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package collector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/autobrr/sweepr/internal/models"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

type JobCollector struct {
	RunsTotal         *prometheus.CounterVec
	ItemsRemovedTotal *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
}

func NewJobCollector(r *prometheus.Registry) *JobCollector {
	m := &JobCollector{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sweepr",
			Subsystem: "job",
			Name:      "runs_total",
			Help:      "Total number of job runs by outcome",
		}, []string{"job", "outcome"}),
		ItemsRemovedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sweepr",
			Subsystem: "job",
			Name:      "items_removed_total",
			Help:      "Total number of torrents removed or files deleted",
		}, []string{"job"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sweepr",
			Subsystem: "job",
			Name:      "run_duration_seconds",
			Help:      "Duration of job runs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"job"}),
	}

	r.MustRegister(m.RunsTotal)
	r.MustRegister(m.ItemsRemovedTotal)
	r.MustRegister(m.RunDuration)
	return m
}

// ObserveRun records one finished run.
func (m *JobCollector) ObserveRun(result *models.RunResult, elapsed time.Duration) {
	if result == nil {
		return
	}
	job := string(result.JobID)

	outcome := OutcomeSuccess
	if result.Failed() {
		outcome = OutcomeError
	}

	m.RunsTotal.With(prometheus.Labels{"job": job, "outcome": outcome}).Inc()
	m.ItemsRemovedTotal.With(prometheus.Labels{"job": job}).Add(float64(result.Affected()))
	m.RunDuration.With(prometheus.Labels{"job": job}).Observe(elapsed.Seconds())
}
