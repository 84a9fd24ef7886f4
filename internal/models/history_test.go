// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koro-app/koro/internal/models"
)

func TestHistoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("append is append-only", func(t *testing.T) {
		t.Parallel()

		store := models.NewHistoryStore(newTestDB(t))

		require.NoError(t, store.Append(ctx, "01009"))
		require.NoError(t, store.Append(ctx, "01009"))
		require.NoError(t, store.Append(ctx, "02000"))

		count, err := store.CountForCode(ctx, "01009")
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		count, err = store.CountForCode(ctx, "02000")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("count for unknown code is zero", func(t *testing.T) {
		t.Parallel()

		store := models.NewHistoryStore(newTestDB(t))

		count, err := store.CountForCode(ctx, "99999")
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})
}
