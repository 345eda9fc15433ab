// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/sweepr/internal/api"
	"github.com/autobrr/sweepr/internal/buildinfo"
)

const shutdownTimeout = 30 * time.Second

func RunServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			log.Info().Str("version", buildinfo.Version).Str("config", a.cfg.ConfigPath()).Msg("Starting sweepr")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.scheduler.Start(ctx); err != nil {
				return errors.Wrap(err, "start scheduler")
			}

			deps := &api.Dependencies{
				Config: a.cfg,
				Jobs:   a.scheduler,
				Events: a.broker,
			}
			if a.metrics != nil {
				deps.Metrics = a.metrics.Handler()
			}
			server := api.NewServer(deps)

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return errors.Wrap(server.ListenAndServe(), "admin api")
			})

			g.Go(func() error {
				<-gctx.Done()
				log.Info().Msg("Shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()

				// close streams first so the HTTP server is not held open by them
				if err := a.broker.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("failed to shut down event stream")
				}
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("failed to shut down admin api")
				}
				a.scheduler.Stop()
				return nil
			})

			if err := g.Wait(); err != nil {
				return err
			}
			log.Info().Msg("sweepr stopped")
			return nil
		},
	}
}
