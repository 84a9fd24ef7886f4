// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package library exposes read access to the local track index plus the
// playback history append. Everything here works fully offline.
package library

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/koro-app/koro/internal/models"
)

// minSearchLength filters out one-character queries that would match most
// of the index.
const minSearchLength = 2

type Service struct {
	tracks  *models.TrackStore
	history *models.HistoryStore
}

func NewService(tracks *models.TrackStore, history *models.HistoryStore) *Service {
	return &Service{
		tracks:  tracks,
		history: history,
	}
}

// Search returns indexed tracks matching the query by code, artist, or
// title. Queries shorter than two characters return an empty result.
func (s *Service) Search(ctx context.Context, query string) ([]*models.Track, error) {
	if len(strings.TrimSpace(query)) < minSearchLength {
		return []*models.Track{}, nil
	}
	return s.tracks.Search(ctx, query)
}

// Lookup resolves a code to its track record, trying every candidate code
// form before declaring not found.
func (s *Service) Lookup(ctx context.Context, code string) (*models.Track, error) {
	for _, candidate := range models.CandidateCodes(code) {
		track, err := s.tracks.GetByCode(ctx, candidate)
		if err == nil {
			return track, nil
		}
		if !errors.Is(err, models.ErrTrackNotFound) {
			return nil, err
		}
	}
	return nil, models.ErrTrackNotFound
}

// RandomCode picks a uniformly random indexed track code.
func (s *Service) RandomCode(ctx context.Context) (string, error) {
	return s.tracks.RandomCode(ctx)
}

// Count returns the number of indexed tracks.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.tracks.Count(ctx)
}

// RecordPlayback appends one playback event for the code.
func (s *Service) RecordPlayback(ctx context.Context, code string) error {
	return s.history.Append(ctx, code)
}
