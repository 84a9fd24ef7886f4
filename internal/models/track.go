// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/koro-app/koro/internal/dbinterface"
)

var ErrTrackNotFound = errors.New("track not found")

const searchResultLimit = 50

// Track is one row of the local track index. A row exists only for assets
// that were downloaded and indexed together, or reconciled via reindex.
type Track struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Artist    string     `json:"artist"`
	Title     string     `json:"title"`
	LocalPath string     `json:"localPath"`
	FileName  *string    `json:"fileName,omitempty"`
	Size      *int64     `json:"size,omitempty"`
	Duration  *int64     `json:"duration,omitempty"`
	OwnerID   *string    `json:"ownerId,omitempty"`
	SyncedAt  *time.Time `json:"syncedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type TrackStore struct {
	db dbinterface.Querier
}

func NewTrackStore(db dbinterface.Querier) *TrackStore {
	return &TrackStore{db: db}
}

const trackColumns = `id, code, artist, title, local_path, file_name, size, duration, owner_id, synced_at, created_at, updated_at`

func scanTrack(scan func(dest ...any) error) (*Track, error) {
	t := &Track{}
	var fileName, ownerID sql.NullString
	var size, duration, syncedAt sql.NullInt64
	var createdAt, updatedAt int64

	if err := scan(
		&t.ID,
		&t.Code,
		&t.Artist,
		&t.Title,
		&t.LocalPath,
		&fileName,
		&size,
		&duration,
		&ownerID,
		&syncedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if fileName.Valid {
		t.FileName = &fileName.String
	}
	if size.Valid {
		t.Size = &size.Int64
	}
	if duration.Valid {
		t.Duration = &duration.Int64
	}
	if ownerID.Valid {
		t.OwnerID = &ownerID.String
	}
	if syncedAt.Valid {
		ts := time.UnixMilli(syncedAt.Int64).UTC()
		t.SyncedAt = &ts
	}
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	t.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	return t, nil
}

// Search returns tracks whose code, artist, or title contains the query,
// capped at 50 rows.
func (s *TrackStore) Search(ctx context.Context, query string) ([]*Track, error) {
	q := `
		SELECT ` + trackColumns + `
		FROM tracks_local
		WHERE code LIKE ?1 OR artist LIKE ?1 OR title LIKE ?1
		ORDER BY artist ASC, title ASC
		LIMIT ?2
	`

	term := "%" + strings.TrimSpace(query) + "%"
	rows, err := s.db.QueryContext(ctx, q, term, searchResultLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		t, err := scanTrack(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracks: %w", err)
	}

	return tracks, nil
}

// GetByCode returns the track stored under the exact code.
func (s *TrackStore) GetByCode(ctx context.Context, code string) (*Track, error) {
	q := `
		SELECT ` + trackColumns + `
		FROM tracks_local
		WHERE code = ?
	`

	t, err := scanTrack(s.db.QueryRowContext(ctx, q, code).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}

	return t, nil
}

// RandomCode returns the code of a uniformly random indexed track, or
// ErrTrackNotFound when the index is empty.
func (s *TrackStore) RandomCode(ctx context.Context) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx, `SELECT code FROM tracks_local ORDER BY RANDOM() LIMIT 1`).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTrackNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to pick random track: %w", err)
	}
	return code, nil
}

func (s *TrackStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks_local`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return count, nil
}

// Insert stores a track with replace-by-code semantics: inserting a code
// that already exists replaces the whole row.
func (s *TrackStore) Insert(ctx context.Context, t *Track) error {
	q := `
		INSERT OR REPLACE INTO tracks_local
			(id, code, artist, title, local_path, file_name, size, duration, owner_id, synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC().UnixMilli()

	var ownerID, fileName sql.NullString
	if t.OwnerID != nil {
		ownerID = sql.NullString{String: *t.OwnerID, Valid: true}
	}
	if t.FileName != nil {
		fileName = sql.NullString{String: *t.FileName, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, q,
		t.ID,
		t.Code,
		t.Artist,
		t.Title,
		t.LocalPath,
		fileName,
		nullInt64(t.Size),
		nullInt64(t.Duration),
		ownerID,
		now,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert track %s: %w", t.Code, err)
	}

	return nil
}

func (s *TrackStore) Exists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks_local WHERE code = ?`, code).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check track existence: %w", err)
	}
	return count > 0, nil
}

// TotalBytes sums the recorded sizes of all indexed tracks.
func (s *TrackStore) TotalBytes(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM tracks_local`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum track sizes: %w", err)
	}
	return total, nil
}
