// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koro-app/koro/internal/models"
)

func TestActivationKindConstants(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "subscription", models.KindSubscription)
	assert.Equal(t, "machine-bound", models.KindMachine)
}

func TestActivationStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("get without record returns not found", func(t *testing.T) {
		t.Parallel()

		store := models.NewActivationStore(newTestDB(t))

		_, err := store.Get(ctx)
		assert.ErrorIs(t, err, models.ErrActivationNotFound)
	})

	t.Run("save and get roundtrip", func(t *testing.T) {
		t.Parallel()

		store := models.NewActivationStore(newTestDB(t))

		days := int64(30)
		expiresAt := time.Now().UTC().Add(30 * 24 * time.Hour).Truncate(time.Millisecond)

		err := store.Save(ctx, &models.Activation{
			Key:           "KORO-12345",
			Kind:          models.KindSubscription,
			RemainingDays: &days,
			ExpiresAt:     &expiresAt,
		})
		require.NoError(t, err)

		got, err := store.Get(ctx)
		require.NoError(t, err)

		assert.Equal(t, "KORO-12345", got.Key)
		assert.Equal(t, models.KindSubscription, got.Kind)
		require.NotNil(t, got.RemainingDays)
		assert.Equal(t, int64(30), *got.RemainingDays)
		require.NotNil(t, got.ExpiresAt)
		assert.Equal(t, expiresAt, *got.ExpiresAt)
		assert.Nil(t, got.RemainingHours)
		assert.WithinDuration(t, time.Now().UTC(), got.LastValidatedAt, 5*time.Second)
	})

	t.Run("save replaces the singleton wholesale", func(t *testing.T) {
		t.Parallel()

		store := models.NewActivationStore(newTestDB(t))

		days := int64(10)
		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:           "KORO-OLD",
			Kind:          models.KindSubscription,
			RemainingDays: &days,
		}))

		hours := 24.5
		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:            "KORO-NEW",
			Kind:           models.KindMachine,
			RemainingHours: &hours,
		}))

		got, err := store.Get(ctx)
		require.NoError(t, err)

		assert.Equal(t, "KORO-NEW", got.Key)
		assert.Equal(t, models.KindMachine, got.Kind)
		require.NotNil(t, got.RemainingHours)
		assert.InDelta(t, 24.5, *got.RemainingHours, 0.001)
		// Fields from the previous record must not survive the replace.
		assert.Nil(t, got.RemainingDays)
		assert.Nil(t, got.ExpiresAt)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		t.Parallel()

		store := models.NewActivationStore(newTestDB(t))

		require.NoError(t, store.Delete(ctx))

		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:  "KORO-GONE",
			Kind: models.KindSubscription,
		}))
		require.NoError(t, store.Delete(ctx))
		require.NoError(t, store.Delete(ctx))

		_, err := store.Get(ctx)
		assert.ErrorIs(t, err, models.ErrActivationNotFound)
	})
}
