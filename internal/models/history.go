// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/koro-app/koro/internal/dbinterface"
)

// PlayHistory records one playback event. Rows are append-only and never
// mutated or deleted locally; synced_at is reserved for a future upstream
// history sync.
type PlayHistory struct {
	ID        string     `json:"id"`
	OwnerID   *string    `json:"ownerId,omitempty"`
	TrackID   *string    `json:"trackId,omitempty"`
	Code      string     `json:"code"`
	PlayedAt  time.Time  `json:"playedAt"`
	SyncedAt  *time.Time `json:"syncedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type HistoryStore struct {
	db dbinterface.Querier
}

func NewHistoryStore(db dbinterface.Querier) *HistoryStore {
	return &HistoryStore{db: db}
}

// Append records a playback event for the given code.
func (s *HistoryStore) Append(ctx context.Context, code string) error {
	q := `
		INSERT INTO play_history (id, code, played_at, created_at)
		VALUES (?, ?, ?, ?)
	`

	now := time.Now().UTC().UnixMilli()
	if _, err := s.db.ExecContext(ctx, q, uuid.New().String(), code, now, now); err != nil {
		return fmt.Errorf("failed to append history for %s: %w", code, err)
	}

	return nil
}

// CountForCode returns how many playback events exist for a code.
func (s *HistoryStore) CountForCode(ctx context.Context, code string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM play_history WHERE code = ?`, code).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count history for %s: %w", code, err)
	}
	return count, nil
}
