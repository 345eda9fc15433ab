// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scheduler owns job timers and serializes runs of each job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweepr/internal/models"
)

var (
	// ErrJobBusy is returned by RunNow while the job is already running.
	ErrJobBusy = errors.New("job busy")
	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("scheduler stopped")
)

const recordTimeout = 10 * time.Second

// Store persists settings and cumulative job state.
type Store interface {
	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) (models.Settings, error)
	SaveSettingsKeepSecret(ctx context.Context, settings models.Settings) (models.Settings, error)
	GetState(ctx context.Context, job models.JobID) (models.JobState, error)
	RecordRun(ctx context.Context, result *models.RunResult) error
}

type StalledRunner interface {
	Run(ctx context.Context, settings models.StalledCleanupSettings) *models.StalledResult
}

type OrphanRunner interface {
	Run(ctx context.Context, settings models.OrphanScanSettings) *models.OrphanResult
}

type Publisher interface {
	Publish(event models.ProgressEvent)
}

// RunObserver is told about every finished run, e.g. for metrics.
type RunObserver interface {
	ObserveRun(result *models.RunResult, elapsed time.Duration)
}

type Config struct {
	Store     Store
	Stalled   StalledRunner
	Orphan    OrphanRunner
	Publisher Publisher
	Observer  RunObserver
}

// JobStatus is the persisted view of one job plus its running flag.
type JobStatus struct {
	JobID           models.JobID      `json:"jobId"`
	Enabled         bool              `json:"enabled"`
	IntervalMinutes int               `json:"intervalMinutes"`
	Running         bool              `json:"running"`
	TotalAffected   int64             `json:"totalAffected"`
	LastRunAt       *time.Time        `json:"lastRunAt,omitempty"`
	LastResult      *models.RunResult `json:"lastResult,omitempty"`
	Settings        any               `json:"settings"`
}

type jobControl struct {
	cancel  context.CancelFunc
	running atomic.Bool
}

type Scheduler struct {
	store     Store
	stalled   StalledRunner
	orphan    OrphanRunner
	publisher Publisher
	observer  RunObserver
	now       func() time.Time

	jobs map[models.JobID]*jobControl

	mu       sync.Mutex
	ctx      context.Context //nolint:containedctx // root for timers and timer-driven runs
	cancel   context.CancelFunc
	stopped  bool
	timers   sync.WaitGroup
	runs     sync.WaitGroup
	updateMu sync.Mutex
}

func New(cfg Config) *Scheduler {
	jobs := make(map[models.JobID]*jobControl, len(models.AllJobs))
	for _, id := range models.AllJobs {
		jobs[id] = &jobControl{}
	}
	return &Scheduler{
		store:     cfg.Store,
		stalled:   cfg.Stalled,
		orphan:    cfg.Orphan,
		publisher: cfg.Publisher,
		observer:  cfg.Observer,
		now:       time.Now,
		jobs:      jobs,
	}
}

// Start loads the persisted settings and arms the enabled jobs. Timers live
// until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	settings, err := s.store.GetSettings(ctx)
	if err != nil && !errors.Is(err, models.ErrSecretUnreadable) {
		return fmt.Errorf("load settings: %w", err)
	}
	if err != nil {
		log.Warn().Err(err).Msg("scheduler: orphan scan will fail until the sftp secret is saved again")
	}

	s.Apply(settings)
	log.Info().Msg("scheduler: started")
	return nil
}

// Apply cancels every timer and re-arms the enabled jobs. Runs already in
// flight are not interrupted.
func (s *Scheduler) Apply(settings models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range models.AllJobs {
		jc := s.jobs[id]
		if jc.cancel != nil {
			jc.cancel()
			jc.cancel = nil
		}

		if s.stopped || s.ctx == nil {
			continue
		}

		enabled, interval := settings.Schedule(id)
		if !enabled || interval <= 0 {
			log.Debug().Str("job", string(id)).Msg("scheduler: job disabled")
			continue
		}

		tctx, cancel := context.WithCancel(s.ctx)
		jc.cancel = cancel
		s.timers.Add(1)
		go s.loop(tctx, id, interval)

		log.Debug().Str("job", string(id)).Dur("interval", interval).Msg("scheduler: job armed")
	}
}

func (s *Scheduler) loop(ctx context.Context, job models.JobID, interval time.Duration) {
	defer s.timers.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			root := s.ctx
			s.mu.Unlock()

			// the run uses the root context so disabling the job lets it finish
			_, err := s.execute(root, job, models.TriggerScheduled)
			switch {
			case err == nil:
			case errors.Is(err, ErrJobBusy):
				log.Debug().Str("job", string(job)).Msg("scheduler: tick dropped, job still running")
			default:
				log.Error().Err(err).Str("job", string(job)).Msg("scheduler: scheduled run failed")
			}

			// ticks that fell inside the run are dropped, not replayed
			select {
			case <-ticker.C:
				log.Debug().Str("job", string(job)).Msg("scheduler: tick dropped, job still running")
			default:
			}
			ticker.Reset(interval)
		}
	}
}

// RunNow executes job synchronously. It fails fast with ErrJobBusy instead of
// waiting for or cancelling a run in progress.
func (s *Scheduler) RunNow(ctx context.Context, job models.JobID) (*models.RunResult, error) {
	return s.execute(ctx, job, models.TriggerManual)
}

func (s *Scheduler) execute(ctx context.Context, job models.JobID, trigger models.Trigger) (*models.RunResult, error) {
	jc, ok := s.jobs[job]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownJob, job)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	s.runs.Add(1)
	s.mu.Unlock()
	defer s.runs.Done()

	if !jc.running.CompareAndSwap(false, true) {
		return nil, ErrJobBusy
	}
	defer jc.running.Store(false)

	started := s.now()
	result := models.NewRunResult(job, trigger, started)

	log.Info().Str("job", string(job)).Str("trigger", string(trigger)).Msg("scheduler: run started")

	settings, err := s.store.GetSettings(ctx)
	switch {
	case err == nil,
		errors.Is(err, models.ErrSecretUnreadable) && job != models.JobOrphanScan:
		s.runJob(ctx, job, settings, result)
	default:
		result.RecordError(fmt.Sprintf("load settings: %v", err))
	}

	result.CompletedAt = s.now()
	elapsed := result.CompletedAt.Sub(started)

	var recordErr error
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	if err := s.store.RecordRun(rctx, result); err != nil {
		recordErr = fmt.Errorf("record run: %w", err)
		log.Error().Err(err).Str("job", string(job)).Msg("scheduler: failed to persist run result")
	}
	cancel()

	if s.observer != nil {
		s.observer.ObserveRun(result, elapsed)
	}
	if s.publisher != nil {
		s.publisher.Publish(models.ProgressEvent{
			JobID:     job,
			Kind:      models.ProgressSummary,
			Timestamp: result.CompletedAt,
			Data:      result,
		})
	}

	log.Info().
		Str("job", string(job)).
		Int("affected", result.Affected()).
		Bool("failed", result.Failed()).
		Dur("elapsed", elapsed).
		Msg("scheduler: run finished")

	return result, recordErr
}

// runJob dispatches to the reconciler. A panic is recorded as the run's
// error and never escapes.
func (s *Scheduler) runJob(ctx context.Context, job models.JobID, settings models.Settings, result *models.RunResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job", string(job)).Interface("panic", r).Msg("scheduler: recovered from panic")
			result.RecordError(fmt.Sprintf("panic: %v", r))
		}
	}()

	switch job {
	case models.JobStalledCleanup:
		if s.stalled == nil {
			result.RecordError("stalled cleanup is not available")
			return
		}
		if res := s.stalled.Run(ctx, settings.StalledCleanup); res != nil {
			result.Stalled = res
		}
	case models.JobOrphanScan:
		if s.orphan == nil {
			result.RecordError("orphan scan is not available")
			return
		}
		if res := s.orphan.Run(ctx, settings.OrphanScan); res != nil {
			if res.Errors == nil {
				res.Errors = []string{}
			}
			result.Orphan = res
		}
	}
}

// Status reads the persisted view of job. It performs no external I/O.
func (s *Scheduler) Status(ctx context.Context, job models.JobID) (JobStatus, error) {
	jc, ok := s.jobs[job]
	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %q", models.ErrUnknownJob, job)
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil && !errors.Is(err, models.ErrSecretUnreadable) {
		return JobStatus{}, fmt.Errorf("load settings: %w", err)
	}
	return s.status(ctx, job, jc, settings.Redacted())
}

// StatusAll returns every job in display order.
func (s *Scheduler) StatusAll(ctx context.Context) ([]JobStatus, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil && !errors.Is(err, models.ErrSecretUnreadable) {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	redacted := settings.Redacted()

	out := make([]JobStatus, 0, len(models.AllJobs))
	for _, id := range models.AllJobs {
		st, err := s.status(ctx, id, s.jobs[id], redacted)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Scheduler) status(ctx context.Context, job models.JobID, jc *jobControl, settings models.Settings) (JobStatus, error) {
	state, err := s.store.GetState(ctx, job)
	if err != nil {
		return JobStatus{}, fmt.Errorf("load %s state: %w", job, err)
	}

	enabled, interval := settings.Schedule(job)
	st := JobStatus{
		JobID:           job,
		Enabled:         enabled,
		IntervalMinutes: int(interval / time.Minute),
		Running:         jc.running.Load(),
		TotalAffected:   state.TotalAffected,
		LastRunAt:       state.LastRunAt,
		LastResult:      state.LastResult,
	}
	switch job {
	case models.JobStalledCleanup:
		st.Settings = settings.StalledCleanup
	case models.JobOrphanScan:
		st.Settings = settings.OrphanScan
	}
	return st, nil
}

// UpdateSettings merge-patches the stored settings, persists them and
// re-arms the timers. The redacted result is returned.
func (s *Scheduler) UpdateSettings(ctx context.Context, patch models.SettingsPatch) (models.Settings, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	current, err := s.store.GetSettings(ctx)
	keepSecret := false
	if err != nil {
		if !errors.Is(err, models.ErrSecretUnreadable) {
			return models.Settings{}, fmt.Errorf("load settings: %w", err)
		}
		if patch.ReplacesSecret() {
			log.Warn().Err(err).Msg("scheduler: unreadable sftp secret replaced")
		} else {
			keepSecret = true
		}
	}

	save := s.store.SaveSettings
	if keepSecret {
		save = s.store.SaveSettingsKeepSecret
	}
	saved, err := save(ctx, current.Merge(patch))
	if err != nil {
		return models.Settings{}, err
	}

	s.Apply(saved)
	return saved.Redacted(), nil
}

// Stop cancels all timers and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, jc := range s.jobs {
		if jc.cancel != nil {
			jc.cancel()
			jc.cancel = nil
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.timers.Wait()
	s.runs.Wait()
	log.Info().Msg("scheduler: stopped")
}
