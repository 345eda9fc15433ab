// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweepr/internal/models"
	"github.com/autobrr/sweepr/internal/services/scheduler"
)

// JobService is the scheduler surface the admin API needs.
type JobService interface {
	StatusAll(ctx context.Context) ([]scheduler.JobStatus, error)
	Status(ctx context.Context, job models.JobID) (scheduler.JobStatus, error)
	RunNow(ctx context.Context, job models.JobID) (*models.RunResult, error)
	UpdateSettings(ctx context.Context, patch models.SettingsPatch) (models.Settings, error)
}

type JobsHandler struct {
	jobs JobService
}

func NewJobsHandler(jobs JobService) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

func (h *JobsHandler) Routes(r chi.Router) {
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{job}", h.GetJob)
	r.Post("/jobs/{job}/run", h.RunJob)
	r.Patch("/settings", h.UpdateSettings)
}

func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.jobs.StatusAll(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load job status")
		RespondError(w, http.StatusInternalServerError, "Failed to load job status")
		return
	}
	RespondJSON(w, http.StatusOK, statuses)
}

func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := ParseJobID(w, r)
	if !ok {
		return
	}

	status, err := h.jobs.Status(r.Context(), job)
	if err != nil {
		log.Error().Err(err).Str("job", string(job)).Msg("Failed to load job status")
		RespondError(w, http.StatusInternalServerError, "Failed to load job status")
		return
	}
	RespondJSON(w, http.StatusOK, status)
}

// RunJob runs the job synchronously and returns its result. A job that is
// already running yields 409 without waiting.
func (h *JobsHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	job, ok := ParseJobID(w, r)
	if !ok {
		return
	}

	// a client disconnect must not abort a half-finished deletion pass
	ctx := context.WithoutCancel(r.Context())

	result, err := h.jobs.RunNow(ctx, job)
	switch {
	case errors.Is(err, scheduler.ErrJobBusy):
		RespondError(w, http.StatusConflict, scheduler.ErrJobBusy.Error())
		return
	case errors.Is(err, scheduler.ErrStopped):
		RespondError(w, http.StatusServiceUnavailable, "Shutting down")
		return
	case err != nil && result == nil:
		log.Error().Err(err).Str("job", string(job)).Msg("Failed to run job")
		RespondError(w, http.StatusInternalServerError, "Failed to run job")
		return
	case err != nil:
		log.Error().Err(err).Str("job", string(job)).Msg("Job ran but its result was not persisted")
	}

	RespondJSON(w, http.StatusOK, result)
}

func (h *JobsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.SettingsPatch
	if !DecodeJSON(w, r, &patch) {
		return
	}

	settings, err := h.jobs.UpdateSettings(r.Context(), patch)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSettings) {
			RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("Failed to update settings")
		RespondError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}
	RespondJSON(w, http.StatusOK, settings)
}
