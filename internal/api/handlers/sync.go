// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/koro-app/koro/internal/services/sync"
)

// SyncHandler handles media synchronization HTTP requests
type SyncHandler struct {
	syncService      *sync.Service
	defaultBatchSize int
}

func NewSyncHandler(syncService *sync.Service, defaultBatchSize int) *SyncHandler {
	return &SyncHandler{
		syncService:      syncService,
		defaultBatchSize: defaultBatchSize,
	}
}

// DownloadBatchRequest represents the request body for a download pass
type DownloadBatchRequest struct {
	BatchSize int `json:"batchSize"`
}

// RegisterRoutes registers sync routes
func (h *SyncHandler) RegisterRoutes(r chi.Router) {
	r.Route("/sync", func(r chi.Router) {
		r.Get("/status", h.GetOfflineStatus)
		r.Post("/download", h.DownloadBatch)
		r.Post("/reindex", h.Reindex)
	})
}

// GetOfflineStatus reports local holdings plus catalog totals when the
// remote is reachable.
func (h *SyncHandler) GetOfflineStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.syncService.GetOfflineStatus(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to get offline status")
		RespondError(w, http.StatusInternalServerError, "Failed to get offline status")
		return
	}

	RespondJSON(w, http.StatusOK, status)
}

// DownloadBatch downloads up to batchSize pending catalog entries.
// Per-item errors are returned as non-blocking warnings; a catalog fetch
// failure fails the whole call.
func (h *SyncHandler) DownloadBatch(w http.ResponseWriter, r *http.Request) {
	req := DownloadBatchRequest{BatchSize: h.defaultBatchSize}
	if r.ContentLength > 0 && !DecodeJSON(w, r, &req) {
		return
	}
	if req.BatchSize <= 0 {
		req.BatchSize = h.defaultBatchSize
	}

	result, err := h.syncService.DownloadBatch(r.Context(), req.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Download batch failed")
		RespondError(w, http.StatusBadGateway, "Download batch failed: "+err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// Reindex reconciles on-disk assets that have no index record against
// the remote catalog.
func (h *SyncHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncService.ReindexTracks(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Reindex failed")
		RespondError(w, http.StatusInternalServerError, "Reindex failed")
		return
	}

	RespondJSON(w, http.StatusOK, result)
}
