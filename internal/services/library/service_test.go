// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package library

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koro-app/koro/internal/database"
	"github.com/koro-app/koro/internal/models"
)

func newLibraryService(t *testing.T) (*Service, *models.TrackStore, *models.HistoryStore) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "koro.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	tracks := models.NewTrackStore(db)
	history := models.NewHistoryStore(db)

	return NewService(tracks, history), tracks, history
}

func insertTrack(t *testing.T, tracks *models.TrackStore, code, artist, title string) {
	t.Helper()

	require.NoError(t, tracks.Insert(context.Background(), &models.Track{
		ID:        "track-" + code,
		Code:      code,
		Artist:    artist,
		Title:     title,
		LocalPath: "/data/tracks/" + code + ".mp4",
	}))
}

func TestSearch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("short queries return empty without hitting the index", func(t *testing.T) {
		t.Parallel()

		svc, tracks, _ := newLibraryService(t)
		insertTrack(t, tracks, "01009", "Queen", "Bohemian Rhapsody")

		for _, q := range []string{"", "q", " q ", "  "} {
			results, err := svc.Search(ctx, q)
			require.NoError(t, err)
			assert.Empty(t, results)
		}
	})

	t.Run("matching queries return tracks", func(t *testing.T) {
		t.Parallel()

		svc, tracks, _ := newLibraryService(t)
		insertTrack(t, tracks, "01009", "Queen", "Bohemian Rhapsody")
		insertTrack(t, tracks, "01010", "ABBA", "Dancing Queen")

		results, err := svc.Search(ctx, "queen")
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})
}

func TestLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("resolves regardless of leading zeros", func(t *testing.T) {
		t.Parallel()

		svc, tracks, _ := newLibraryService(t)
		insertTrack(t, tracks, "01009", "Queen", "Bohemian Rhapsody")

		for _, code := range []string{"01009", "1009"} {
			track, err := svc.Lookup(ctx, code)
			require.NoError(t, err, "code %s", code)
			assert.Equal(t, "01009", track.Code)
		}
	})

	t.Run("resolves a stored stripped code from padded input", func(t *testing.T) {
		t.Parallel()

		svc, tracks, _ := newLibraryService(t)
		insertTrack(t, tracks, "1009", "Queen", "Bohemian Rhapsody")

		track, err := svc.Lookup(ctx, "01009")
		require.NoError(t, err)
		assert.Equal(t, "1009", track.Code)
	})

	t.Run("unknown code is not found", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newLibraryService(t)

		_, err := svc.Lookup(ctx, "77777")
		assert.ErrorIs(t, err, models.ErrTrackNotFound)
	})
}

func TestRandomCodeAndCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, tracks, _ := newLibraryService(t)

	_, err := svc.RandomCode(ctx)
	assert.ErrorIs(t, err, models.ErrTrackNotFound)

	insertTrack(t, tracks, "01009", "Queen", "Bohemian Rhapsody")

	code, err := svc.RandomCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "01009", code)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecordPlayback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _, history := newLibraryService(t)

	require.NoError(t, svc.RecordPlayback(ctx, "01009"))
	require.NoError(t, svc.RecordPlayback(ctx, "01009"))

	count, err := history.CountForCode(ctx, "01009")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
