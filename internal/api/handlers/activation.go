// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/koro-app/koro/internal/remote"
	"github.com/koro-app/koro/internal/services/activation"
)

// ActivationHandler handles activation related HTTP requests
type ActivationHandler struct {
	activationService *activation.Service
}

func NewActivationHandler(activationService *activation.Service) *ActivationHandler {
	return &ActivationHandler{
		activationService: activationService,
	}
}

// SubmitKeyRequest represents the request body for key submission
type SubmitKeyRequest struct {
	Key string `json:"key"`
}

// RegisterRoutes registers activation routes
func (h *ActivationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/activation", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Post("/validate", h.SubmitKey)
		r.Delete("/", h.RemoveActivation)
	})
}

// GetStatus reports the current activation state. Remote failures are
// absorbed by offline decay and never surface here.
func (h *ActivationHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.activationService.QueryStatus(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to query activation status")
		RespondError(w, http.StatusInternalServerError, "Failed to query activation status")
		return
	}

	RespondJSON(w, http.StatusOK, status)
}

// SubmitKey validates a user-entered activation key and adopts it when
// the remote reports it active.
func (h *ActivationHandler) SubmitKey(w http.ResponseWriter, r *http.Request) {
	var req SubmitKeyRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if req.Key == "" {
		RespondError(w, http.StatusBadRequest, "Activation key is required")
		return
	}

	result, err := h.activationService.ValidateAndAdopt(r.Context(), req.Key)
	if err != nil {
		log.Error().
			Err(err).
			Str("key", remote.MaskKey(req.Key)).
			Msg("Failed to validate activation key")
		RespondError(w, http.StatusInternalServerError, "Failed to validate activation key")
		return
	}

	if !result.Valid {
		RespondJSON(w, http.StatusForbidden, result)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// RemoveActivation deletes the stored activation. Idempotent.
func (h *ActivationHandler) RemoveActivation(w http.ResponseWriter, r *http.Request) {
	if err := h.activationService.RemoveActivation(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to remove activation")
		RespondError(w, http.StatusInternalServerError, "Failed to remove activation")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"message": "Activation removed",
	})
}
