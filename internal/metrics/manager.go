// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweepr/internal/database"
	"github.com/autobrr/sweepr/internal/metrics/collector"
)

type Manager struct {
	registry       *prometheus.Registry
	JobCollector   *collector.JobCollector
	stateCollector *JobStateCollector
}

func NewManager(source StatusSource) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(database.NewMetricsCollector())

	stateCollector := NewJobStateCollector(source)
	registry.MustRegister(stateCollector)

	jobCollector := collector.NewJobCollector(registry)

	log.Info().Msg("Metrics manager initialized with job collectors")

	return &Manager{
		registry:       registry,
		JobCollector:   jobCollector,
		stateCollector: stateCollector,
	}
}

// SetStatusSource wires the job state collector. It must be called before
// the registry is served.
func (m *Manager) SetStatusSource(source StatusSource) {
	m.stateCollector.source = source
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
