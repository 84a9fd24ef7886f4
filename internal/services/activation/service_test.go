// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package activation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koro-app/koro/internal/database"
	"github.com/koro-app/koro/internal/models"
	"github.com/koro-app/koro/internal/remote"
)

type fakeGateway struct {
	record      *remote.KeyRecord
	err         error
	touched     []string
	fingerprint string
}

func (f *fakeGateway) FetchKeyRecord(_ context.Context, _, fingerprint string) (*remote.KeyRecord, error) {
	f.fingerprint = fingerprint
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func (f *fakeGateway) TouchLastUsed(_ context.Context, keyID string) error {
	f.touched = append(f.touched, keyID)
	return nil
}

func newTestStore(t *testing.T) (*models.ActivationStore, *database.DB) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "koro.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	return models.NewActivationStore(db), db
}

// backdate rewrites the stored last-validated timestamp so decay tests can
// simulate elapsed wall-clock time.
func backdate(t *testing.T, db *database.DB, by time.Duration) {
	t.Helper()

	past := time.Now().UTC().Add(-by).UnixMilli()
	_, err := db.ExecContext(context.Background(), `UPDATE activation SET last_validated_at = ?`, past)
	require.NoError(t, err)
}

func strptr(s string) *string        { return &s }
func f64ptr(f float64) *float64      { return &f }
func i64ptr(i int64) *int64          { return &i }
func timeptr(t time.Time) *time.Time { return &t }

func TestComputeRemaining(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("subscription counts days until expiry", func(t *testing.T) {
		t.Parallel()

		record := &remote.KeyRecord{
			Key:       "KORO-SUB",
			Kind:      models.KindSubscription,
			Status:    remote.KeyStatusActive,
			ExpiresAt: strptr(now.Add(10 * 24 * time.Hour).Format(time.RFC3339)),
		}

		merged, expired := computeRemaining(record, now)
		assert.False(t, expired)
		require.NotNil(t, merged.RemainingDays)
		assert.Equal(t, int64(10), *merged.RemainingDays)
		require.NotNil(t, merged.ExpiresAt)
	})

	t.Run("subscription rounds a partial day up", func(t *testing.T) {
		t.Parallel()

		record := &remote.KeyRecord{
			Key:       "KORO-SUB",
			Kind:      models.KindSubscription,
			Status:    remote.KeyStatusActive,
			ExpiresAt: strptr(now.Add(36 * time.Hour).Format(time.RFC3339)),
		}

		merged, expired := computeRemaining(record, now)
		assert.False(t, expired)
		require.NotNil(t, merged.RemainingDays)
		assert.Equal(t, int64(2), *merged.RemainingDays)
	})

	t.Run("subscription past expiry clamps to zero and expires", func(t *testing.T) {
		t.Parallel()

		record := &remote.KeyRecord{
			Key:       "KORO-SUB",
			Kind:      models.KindSubscription,
			Status:    remote.KeyStatusActive,
			ExpiresAt: strptr(now.Add(-48 * time.Hour).Format(time.RFC3339)),
		}

		merged, expired := computeRemaining(record, now)
		assert.True(t, expired)
		require.NotNil(t, merged.RemainingDays)
		assert.Equal(t, int64(0), *merged.RemainingDays)
	})

	t.Run("subscription expiring this instant is expired", func(t *testing.T) {
		t.Parallel()

		record := &remote.KeyRecord{
			Key:       "KORO-SUB",
			Kind:      models.KindSubscription,
			Status:    remote.KeyStatusActive,
			ExpiresAt: strptr(now.Format(time.RFC3339)),
		}

		_, expired := computeRemaining(record, now)
		assert.True(t, expired)
	})

	t.Run("subscription without expiry has no countdown", func(t *testing.T) {
		t.Parallel()

		record := &remote.KeyRecord{
			Key:    "KORO-SUB",
			Kind:   models.KindSubscription,
			Status: remote.KeyStatusActive,
		}

		merged, expired := computeRemaining(record, now)
		assert.False(t, expired)
		assert.Nil(t, merged.RemainingDays)
		assert.Nil(t, merged.ExpiresAt)
	})

	t.Run("machine-bound subtracts elapsed hours from the limit", func(t *testing.T) {
		t.Parallel()

		record := &remote.KeyRecord{
			Key:       "KORO-MACH",
			Kind:      models.KindMachine,
			Status:    remote.KeyStatusActive,
			HourLimit: f64ptr(100),
			StartsAt:  strptr(now.Add(-40 * time.Hour).Format(time.RFC3339)),
		}

		merged, expired := computeRemaining(record, now)
		assert.False(t, expired)
		require.NotNil(t, merged.RemainingHours)
		assert.InDelta(t, 60.0, *merged.RemainingHours, 0.001)
	})

	t.Run("machine-bound exhausted clamps to zero and expires", func(t *testing.T) {
		t.Parallel()

		record := &remote.KeyRecord{
			Key:       "KORO-MACH",
			Kind:      models.KindMachine,
			Status:    remote.KeyStatusActive,
			HourLimit: f64ptr(10),
			StartsAt:  strptr(now.Add(-20 * time.Hour).Format(time.RFC3339)),
		}

		merged, expired := computeRemaining(record, now)
		assert.True(t, expired)
		require.NotNil(t, merged.RemainingHours)
		assert.Equal(t, 0.0, *merged.RemainingHours)
	})
}

func TestQueryStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("no record means inactive, not expired", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		svc := NewService(store, &fakeGateway{err: remote.ErrNetwork})

		status, err := svc.QueryStatus(ctx)
		require.NoError(t, err)
		assert.False(t, status.Active)
		assert.False(t, status.Expired)
		assert.Equal(t, "offline", status.Mode)
	})

	t.Run("online validation replaces the local snapshot", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)

		// Stale local record, more generous than the remote truth.
		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:           "KORO-12345",
			Kind:          models.KindSubscription,
			RemainingDays: i64ptr(99),
		}))

		gw := &fakeGateway{record: &remote.KeyRecord{
			ID:        "key-1",
			Key:       "KORO-12345",
			Kind:      models.KindSubscription,
			Status:    remote.KeyStatusActive,
			ExpiresAt: strptr(time.Now().UTC().Add(5 * 24 * time.Hour).Format(time.RFC3339)),
		}}
		svc := NewService(store, gw)

		status, err := svc.QueryStatus(ctx)
		require.NoError(t, err)
		assert.True(t, status.Active)
		assert.Equal(t, "online", status.Mode)
		require.NotNil(t, status.RemainingDays)
		assert.Equal(t, int64(5), *status.RemainingDays)

		// The remote answer must have been persisted wholesale.
		saved, err := store.Get(ctx)
		require.NoError(t, err)
		require.NotNil(t, saved.RemainingDays)
		assert.Equal(t, int64(5), *saved.RemainingDays)
		assert.Equal(t, []string{"key-1"}, gw.touched)
	})

	t.Run("online validation is idempotent", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:  "KORO-12345",
			Kind: models.KindSubscription,
		}))

		gw := &fakeGateway{record: &remote.KeyRecord{
			ID:        "key-1",
			Key:       "KORO-12345",
			Kind:      models.KindSubscription,
			Status:    remote.KeyStatusActive,
			ExpiresAt: strptr(time.Now().UTC().Add(30*24*time.Hour + time.Hour).Format(time.RFC3339)),
		}}
		svc := NewService(store, gw)

		first, err := svc.QueryStatus(ctx)
		require.NoError(t, err)
		second, err := svc.QueryStatus(ctx)
		require.NoError(t, err)

		assert.Equal(t, first.Active, second.Active)
		require.NotNil(t, first.RemainingDays)
		require.NotNil(t, second.RemainingDays)
		assert.Equal(t, *first.RemainingDays, *second.RemainingDays)
	})

	t.Run("revoked key deletes the local record", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:  "KORO-12345",
			Kind: models.KindSubscription,
		}))

		gw := &fakeGateway{record: &remote.KeyRecord{
			ID:     "key-1",
			Key:    "KORO-12345",
			Kind:   models.KindSubscription,
			Status: "revoked",
		}}
		svc := NewService(store, gw)

		status, err := svc.QueryStatus(ctx)
		require.NoError(t, err)
		assert.False(t, status.Active)
		assert.True(t, status.Expired)
		assert.Equal(t, "online", status.Mode)

		_, err = store.Get(ctx)
		assert.ErrorIs(t, err, models.ErrActivationNotFound)
	})

	t.Run("offline decay against absolute expiry rounds days up", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:       "KORO-12345",
			Kind:      models.KindSubscription,
			ExpiresAt: timeptr(time.Now().UTC().Add(36 * time.Hour)),
		}))

		svc := NewService(store, &fakeGateway{err: remote.ErrNetwork})

		status, err := svc.QueryStatus(ctx)
		require.NoError(t, err)
		assert.True(t, status.Active)
		assert.Equal(t, "offline", status.Mode)
		require.NotNil(t, status.RemainingDays)
		assert.Equal(t, int64(2), *status.RemainingDays)
	})

	t.Run("offline decay against past expiry reports expired", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:       "KORO-12345",
			Kind:      models.KindSubscription,
			ExpiresAt: timeptr(time.Now().UTC().Add(-time.Hour)),
		}))

		svc := NewService(store, &fakeGateway{err: remote.ErrNetwork})

		status, err := svc.QueryStatus(ctx)
		require.NoError(t, err)
		assert.False(t, status.Active)
		assert.True(t, status.Expired)
		require.NotNil(t, status.RemainingDays)
		assert.Equal(t, int64(0), *status.RemainingDays)
	})

	t.Run("offline decay subtracts whole elapsed days from the counter", func(t *testing.T) {
		t.Parallel()

		store, db := newTestStore(t)
		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:           "KORO-12345",
			Kind:          models.KindSubscription,
			RemainingDays: i64ptr(10),
		}))
		backdate(t, db, 36*time.Hour)

		svc := NewService(store, &fakeGateway{err: remote.ErrNetwork})

		status, err := svc.QueryStatus(ctx)
		require.NoError(t, err)
		assert.True(t, status.Active)
		require.NotNil(t, status.RemainingDays)
		assert.Equal(t, int64(9), *status.RemainingDays)
	})

	t.Run("offline day counter clamps at zero and expires", func(t *testing.T) {
		t.Parallel()

		store, db := newTestStore(t)
		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:           "KORO-12345",
			Kind:          models.KindSubscription,
			RemainingDays: i64ptr(1),
		}))
		backdate(t, db, 72*time.Hour)

		svc := NewService(store, &fakeGateway{err: remote.ErrNetwork})

		status, err := svc.QueryStatus(ctx)
		require.NoError(t, err)
		assert.False(t, status.Active)
		assert.True(t, status.Expired)
		require.NotNil(t, status.RemainingDays)
		assert.Equal(t, int64(0), *status.RemainingDays)
	})

	t.Run("offline machine-bound decays continuously in hours", func(t *testing.T) {
		t.Parallel()

		store, db := newTestStore(t)
		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:            "KORO-MACH",
			Kind:           models.KindMachine,
			RemainingHours: f64ptr(10),
		}))
		backdate(t, db, 2*time.Hour)

		svc := NewService(store, &fakeGateway{err: remote.ErrRejected})

		status, err := svc.QueryStatus(ctx)
		require.NoError(t, err)
		assert.True(t, status.Active)
		require.NotNil(t, status.RemainingHours)
		assert.InDelta(t, 8.0, *status.RemainingHours, 0.1)
	})

	t.Run("offline machine-bound with zero hours is expired", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:            "KORO-MACH",
			Kind:           models.KindMachine,
			RemainingHours: f64ptr(0),
		}))

		svc := NewService(store, &fakeGateway{err: remote.ErrNetwork})

		status, err := svc.QueryStatus(ctx)
		require.NoError(t, err)
		assert.False(t, status.Active)
		assert.True(t, status.Expired)
		require.NotNil(t, status.RemainingHours)
		assert.Equal(t, 0.0, *status.RemainingHours)
	})

	t.Run("offline record without countdown fields stays active", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		require.NoError(t, store.Save(ctx, &models.Activation{
			Key:  "KORO-12345",
			Kind: models.KindSubscription,
		}))

		svc := NewService(store, &fakeGateway{err: remote.ErrNotConfigured})

		status, err := svc.QueryStatus(ctx)
		require.NoError(t, err)
		assert.True(t, status.Active)
		assert.False(t, status.Expired)
		assert.Nil(t, status.RemainingDays)
		assert.Nil(t, status.RemainingHours)
	})
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ABC-123", NormalizeKey("  abc 123  "))
	assert.Equal(t, "KORO-12345", NormalizeKey("koro-12345"))
	assert.Equal(t, "A-B-C", NormalizeKey("a b c"))
}

func TestValidateAndAdopt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("unknown key", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		svc := NewService(store, &fakeGateway{err: remote.ErrKeyNotFound})

		result, err := svc.ValidateAndAdopt(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, "key not found", result.Error)
	})

	t.Run("network failure is reported, not recovered", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		svc := NewService(store, &fakeGateway{err: remote.ErrNetwork})

		result, err := svc.ValidateAndAdopt(ctx, "KORO-12345")
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Error, "connection error")

		_, err = store.Get(ctx)
		assert.ErrorIs(t, err, models.ErrActivationNotFound)
	})

	t.Run("inactive key is rejected", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		svc := NewService(store, &fakeGateway{record: &remote.KeyRecord{
			ID:     "key-1",
			Key:    "KORO-12345",
			Kind:   models.KindSubscription,
			Status: "inactive",
		}})

		result, err := svc.ValidateAndAdopt(ctx, "KORO-12345")
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, "key expired or inactive", result.Error)
	})

	t.Run("active key is adopted and persisted", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		gw := &fakeGateway{record: &remote.KeyRecord{
			ID:        "key-1",
			Key:       "KORO-12345",
			Kind:      models.KindSubscription,
			Status:    remote.KeyStatusActive,
			ExpiresAt: strptr(time.Now().UTC().Add(30 * 24 * time.Hour).Format(time.RFC3339)),
		}}
		svc := NewService(store, gw)

		result, err := svc.ValidateAndAdopt(ctx, "koro 12345")
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, models.KindSubscription, result.Kind)
		require.NotNil(t, result.RemainingDays)
		assert.Equal(t, int64(30), *result.RemainingDays)

		saved, err := store.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "KORO-12345", saved.Key)
		assert.Equal(t, []string{"key-1"}, gw.touched)
	})
}

func TestRemoveActivation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.Save(ctx, &models.Activation{
		Key:  "KORO-12345",
		Kind: models.KindSubscription,
	}))

	svc := NewService(store, &fakeGateway{})
	require.NoError(t, svc.RemoveActivation(ctx))

	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, models.ErrActivationNotFound)
}
