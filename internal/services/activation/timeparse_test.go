// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package activation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRemoteTime(t *testing.T) {
	t.Parallel()

	t.Run("rfc3339 with zone", func(t *testing.T) {
		t.Parallel()

		got, ok := ParseRemoteTime("2026-03-15T10:30:00+02:00")
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC), got)
	})

	t.Run("rfc3339 utc", func(t *testing.T) {
		t.Parallel()

		got, ok := ParseRemoteTime("2026-03-15T10:30:00Z")
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC), got)
	})

	t.Run("iso8601 without zone assumes utc", func(t *testing.T) {
		t.Parallel()

		got, ok := ParseRemoteTime("2026-03-15T10:30:00")
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC), got)
	})

	t.Run("iso8601 with fractional seconds", func(t *testing.T) {
		t.Parallel()

		got, ok := ParseRemoteTime("2026-03-15T10:30:00.123456")
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 3, 15, 10, 30, 0, 123456000, time.UTC), got)
	})

	t.Run("date only becomes end of day utc", func(t *testing.T) {
		t.Parallel()

		got, ok := ParseRemoteTime("2026-03-15")
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 3, 15, 23, 59, 59, 0, time.UTC), got)
	})

	t.Run("garbage and empty are absent, not errors", func(t *testing.T) {
		t.Parallel()

		_, ok := ParseRemoteTime("not-a-date")
		assert.False(t, ok)

		_, ok = ParseRemoteTime("")
		assert.False(t, ok)
	})
}
