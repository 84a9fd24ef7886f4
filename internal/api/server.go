// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api wires the HTTP surface consumed by the kiosk UI shell.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/koro-app/koro/internal/api/handlers"
	"github.com/koro-app/koro/internal/domain"
	"github.com/koro-app/koro/internal/services/activation"
	"github.com/koro-app/koro/internal/services/library"
	"github.com/koro-app/koro/internal/services/sync"
)

type Server struct {
	config *domain.Config
	srv    *http.Server
}

func NewServer(
	config *domain.Config,
	activationService *activation.Service,
	syncService *sync.Service,
	libraryService *library.Service,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/api", func(r chi.Router) {
		handlers.NewActivationHandler(activationService).RegisterRoutes(r)
		handlers.NewSyncHandler(syncService, config.BatchSize()).RegisterRoutes(r)
		handlers.NewLibraryHandler(libraryService, syncService).RegisterRoutes(r)

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return &Server{
		config: config,
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Handler:      r,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.srv.Addr).Msg("Starting HTTP server")
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
