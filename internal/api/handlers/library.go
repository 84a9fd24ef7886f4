// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/koro-app/koro/internal/models"
	"github.com/koro-app/koro/internal/services/library"
	"github.com/koro-app/koro/internal/services/sync"
)

// LibraryHandler handles local track index HTTP requests
type LibraryHandler struct {
	libraryService *library.Service
	syncService    *sync.Service
}

func NewLibraryHandler(libraryService *library.Service, syncService *sync.Service) *LibraryHandler {
	return &LibraryHandler{
		libraryService: libraryService,
		syncService:    syncService,
	}
}

// RecordPlaybackRequest represents the request body for a playback event
type RecordPlaybackRequest struct {
	Code string `json:"code"`
}

// RegisterRoutes registers library routes
func (h *LibraryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/tracks", func(r chi.Router) {
		r.Get("/search", h.Search)
		r.Get("/random", h.RandomCode)
		r.Get("/count", h.Count)
		r.Get("/{code}", h.Lookup)
		r.Get("/{code}/file", h.AssetPath)
	})
	r.Post("/history", h.RecordPlayback)
}

// Search matches tracks by code, artist, or title substring. Queries
// shorter than two characters return an empty list.
func (h *LibraryHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	tracks, err := h.libraryService.Search(r.Context(), query)
	if err != nil {
		log.Error().Err(err).Msg("Track search failed")
		RespondError(w, http.StatusInternalServerError, "Track search failed")
		return
	}
	if tracks == nil {
		tracks = []*models.Track{}
	}

	RespondJSON(w, http.StatusOK, tracks)
}

// Lookup resolves a code (any candidate form) to its track record.
func (h *LibraryHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	code, ok := ParseStringParam(w, r, "code", "Track code")
	if !ok {
		return
	}

	track, err := h.libraryService.Lookup(r.Context(), code)
	if err != nil {
		if errors.Is(err, models.ErrTrackNotFound) {
			RespondError(w, http.StatusNotFound, "Track not found")
			return
		}
		log.Error().Err(err).Str("code", code).Msg("Track lookup failed")
		RespondError(w, http.StatusInternalServerError, "Track lookup failed")
		return
	}

	RespondJSON(w, http.StatusOK, track)
}

// AssetPath resolves a code to the on-disk asset path for the player.
func (h *LibraryHandler) AssetPath(w http.ResponseWriter, r *http.Request) {
	code, ok := ParseStringParam(w, r, "code", "Track code")
	if !ok {
		return
	}

	path, err := h.syncService.ResolveAssetPath(code)
	if err != nil {
		if errors.Is(err, sync.ErrAssetNotFound) {
			RespondError(w, http.StatusNotFound, "Asset not found")
			return
		}
		log.Error().Err(err).Str("code", code).Msg("Asset resolution failed")
		RespondError(w, http.StatusInternalServerError, "Asset resolution failed")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"path": path})
}

// RandomCode returns a random indexed track code.
func (h *LibraryHandler) RandomCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.libraryService.RandomCode(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrTrackNotFound) {
			RespondError(w, http.StatusNotFound, "No tracks indexed")
			return
		}
		log.Error().Err(err).Msg("Random track failed")
		RespondError(w, http.StatusInternalServerError, "Random track failed")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"code": code})
}

// Count returns the number of indexed tracks.
func (h *LibraryHandler) Count(w http.ResponseWriter, r *http.Request) {
	count, err := h.libraryService.Count(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Track count failed")
		RespondError(w, http.StatusInternalServerError, "Track count failed")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// RecordPlayback appends one playback history event.
func (h *LibraryHandler) RecordPlayback(w http.ResponseWriter, r *http.Request) {
	var req RecordPlaybackRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		RespondError(w, http.StatusBadRequest, "Track code is required")
		return
	}

	if err := h.libraryService.RecordPlayback(r.Context(), req.Code); err != nil {
		log.Error().Err(err).Str("code", req.Code).Msg("Failed to record playback")
		RespondError(w, http.StatusInternalServerError, "Failed to record playback")
		return
	}

	RespondJSON(w, http.StatusCreated, map[string]string{"message": "Playback recorded"})
}
