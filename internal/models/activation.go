// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/koro-app/koro/internal/dbinterface"
)

var ErrActivationNotFound = errors.New("activation not found")

// Activation kinds. Subscription keys decay in whole days against an
// absolute expiry; machine-bound keys decay continuously in hours.
const (
	KindSubscription = "subscription"
	KindMachine      = "machine-bound"
)

// Activation is the singleton license record. It is always written
// wholesale: a successful remote validation replaces the entire row, and
// offline decay never writes back.
type Activation struct {
	Key             string     `json:"key"`
	Kind            string     `json:"kind"`
	RemainingDays   *int64     `json:"remainingDays,omitempty"`
	RemainingHours  *float64   `json:"remainingHours,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	LastValidatedAt time.Time  `json:"lastValidatedAt"`
}

type ActivationStore struct {
	db dbinterface.Querier
}

func NewActivationStore(db dbinterface.Querier) *ActivationStore {
	return &ActivationStore{db: db}
}

// Get returns the singleton activation record, or ErrActivationNotFound
// when no key has ever been provisioned.
func (s *ActivationStore) Get(ctx context.Context) (*Activation, error) {
	query := `
		SELECT key, kind, remaining_days, remaining_hours, expires_at, last_validated_at
		FROM activation
		WHERE id = '1'
	`

	a := &Activation{}
	var remainingDays sql.NullInt64
	var remainingHours sql.NullFloat64
	var expiresAt sql.NullInt64
	var lastValidatedAt int64

	err := s.db.QueryRowContext(ctx, query).Scan(
		&a.Key,
		&a.Kind,
		&remainingDays,
		&remainingHours,
		&expiresAt,
		&lastValidatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrActivationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activation: %w", err)
	}

	if remainingDays.Valid {
		a.RemainingDays = &remainingDays.Int64
	}
	if remainingHours.Valid {
		a.RemainingHours = &remainingHours.Float64
	}
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64).UTC()
		a.ExpiresAt = &t
	}
	a.LastValidatedAt = time.UnixMilli(lastValidatedAt).UTC()

	return a, nil
}

// Save replaces the singleton record wholesale. LastValidatedAt is set to
// the current time; partial updates are deliberately not supported.
func (s *ActivationStore) Save(ctx context.Context, a *Activation) error {
	query := `
		INSERT OR REPLACE INTO activation
			(id, key, kind, remaining_days, remaining_hours, expires_at, last_validated_at, created_at, updated_at)
		VALUES ('1', ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	a.LastValidatedAt = now

	var expiresAt sql.NullInt64
	if a.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: a.ExpiresAt.UnixMilli(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		a.Key,
		a.Kind,
		nullInt64(a.RemainingDays),
		nullFloat64(a.RemainingHours),
		expiresAt,
		now.UnixMilli(),
		now.UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save activation: %w", err)
	}

	return nil
}

// Delete removes the singleton record. Idempotent: deleting an absent
// record is not an error.
func (s *ActivationStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM activation WHERE id = '1'`); err != nil {
		return fmt.Errorf("failed to delete activation: %w", err)
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
