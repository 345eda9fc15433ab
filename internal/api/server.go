// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api serves the admin HTTP surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweepr/internal/api/handlers"
	"github.com/autobrr/sweepr/internal/api/middleware"
	"github.com/autobrr/sweepr/internal/config"
)

// EventStream serves the SSE progress stream.
type EventStream interface {
	Serve(w http.ResponseWriter, r *http.Request)
}

type Dependencies struct {
	Config *config.AppConfig
	Jobs   handlers.JobService
	Events EventStream
	// Metrics is nil when metricsEnabled is false.
	Metrics http.Handler
}

type Server struct {
	deps *Dependencies

	mu     sync.Mutex
	server *http.Server
}

func NewServer(deps *Dependencies) *Server {
	return &Server{deps: deps}
}

// Handler builds the router. The SSE route is kept out of response
// compression so events are flushed as they are published.
func (s *Server) Handler() (http.Handler, error) {
	compress, err := httpcompression.DefaultAdapter(
		httpcompression.ContentTypes([]string{"text/event-stream"}, true),
	)
	if err != nil {
		return nil, fmt.Errorf("create compression adapter: %w", err)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)

	if origins := s.allowedOrigins(); len(origins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler)
	}

	jobsHandler := handlers.NewJobsHandler(s.deps.Jobs)
	healthHandler := handlers.NewHealthHandler()
	versionHandler := handlers.NewVersionHandler()

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(compress)
			jobsHandler.Routes(r)
			healthHandler.Routes(r)
			r.Get("/version", versionHandler.GetVersion)
		})

		if s.deps.Events != nil {
			r.Get("/events", s.deps.Events.Serve)
		}
	})

	if s.deps.Metrics != nil {
		r.With(compress).Get("/metrics", s.deps.Metrics.ServeHTTP)
	}

	base := s.baseURL()
	if base == "/" {
		return r, nil
	}

	root := chi.NewRouter()
	root.Mount(strings.TrimSuffix(base, "/"), r)
	return root, nil
}

func (s *Server) baseURL() string {
	if s.deps.Config == nil || s.deps.Config.Config == nil {
		return "/"
	}
	base := strings.TrimSpace(s.deps.Config.Config.BaseURL)
	if base == "" || base == "/" {
		return "/"
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return base
}

func (s *Server) allowedOrigins() []string {
	if s.deps.Config == nil || s.deps.Config.Config == nil {
		return nil
	}
	var out []string
	for _, o := range s.deps.Config.Config.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	cfg := s.deps.Config.Config
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	log.Info().Str("addr", addr).Str("baseUrl", s.baseURL()).Msg("Starting admin API server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
