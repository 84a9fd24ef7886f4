// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package activation reconciles the local activation record against the
// remote authority. The remote is the source of truth: every successful
// validation replaces the local snapshot wholesale. When the remote is
// unreachable, remaining validity is decayed locally from the last
// persisted snapshot by elapsed wall-clock time.
package activation

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/keygen-sh/machineid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/koro-app/koro/internal/models"
	"github.com/koro-app/koro/internal/remote"
)

const fingerprintAppID = "koro"

// Gateway is the slice of the remote client the reconciler depends on.
// Tests inject failing or succeeding implementations to force the
// online-merge and offline-decay branches independently.
type Gateway interface {
	FetchKeyRecord(ctx context.Context, key, fingerprint string) (*remote.KeyRecord, error)
	TouchLastUsed(ctx context.Context, keyID string) error
}

// Status is the answer to "is this kiosk licensed right now".
type Status struct {
	Active         bool     `json:"active"`
	Expired        bool     `json:"expired"`
	Mode           string   `json:"mode"` // "online" or "offline"
	Key            string   `json:"key,omitempty"`
	Kind           string   `json:"kind"`
	RemainingDays  *int64   `json:"remainingDays,omitempty"`
	RemainingHours *float64 `json:"remainingHours,omitempty"`
}

// ValidationResult is returned by ValidateAndAdopt. Remote failures are
// reported in Error rather than as a Go error: there is no offline
// fallback for activating a never-seen key.
type ValidationResult struct {
	Valid          bool     `json:"valid"`
	Error          string   `json:"error,omitempty"`
	Kind           string   `json:"kind,omitempty"`
	RemainingDays  *int64   `json:"remainingDays,omitempty"`
	RemainingHours *float64 `json:"remainingHours,omitempty"`
}

type Service struct {
	activations *models.ActivationStore
	gateway     Gateway

	fingerprintOnce sync.Once
	fingerprint     string
}

func NewService(activations *models.ActivationStore, gateway Gateway) *Service {
	return &Service{
		activations: activations,
		gateway:     gateway,
	}
}

// machineFingerprint identifies this machine to the remote authority so
// machine-bound keys can be pinned. Best-effort: an empty fingerprint is
// sent when the platform does not expose a machine ID.
func (s *Service) machineFingerprint() string {
	s.fingerprintOnce.Do(func() {
		fp, err := machineid.ProtectedID(fingerprintAppID)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to derive machine fingerprint")
			return
		}
		s.fingerprint = fp
	})
	return s.fingerprint
}

// QueryStatus reports the current activation state. It always tries the
// remote first; any remote failure falls back to decaying the last
// persisted snapshot and is never surfaced to the caller.
func (s *Service) QueryStatus(ctx context.Context) (*Status, error) {
	record, err := s.activations.Get(ctx)
	if errors.Is(err, models.ErrActivationNotFound) {
		return &Status{
			Active:  false,
			Expired: false,
			Mode:    "offline",
			Kind:    models.KindSubscription,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	if status, err := s.validateOnline(ctx, record.Key); err == nil {
		log.Info().
			Str("key", remote.MaskKey(record.Key)).
			Interface("remainingDays", status.RemainingDays).
			Interface("remainingHours", status.RemainingHours).
			Msg("Online validation succeeded")
		return status, nil
	} else if !remote.IsRecoverable(err) {
		return nil, err
	}

	log.Info().
		Str("key", remote.MaskKey(record.Key)).
		Msg("Remote unreachable, using offline decay")

	return s.offlineStatus(record), nil
}

// validateOnline fetches the key record, merges it into the local store,
// and returns the online status. Any classified remote failure is
// returned for the caller to recover from.
func (s *Service) validateOnline(ctx context.Context, key string) (*Status, error) {
	record, err := s.gateway.FetchKeyRecord(ctx, key, s.machineFingerprint())
	if err != nil {
		return nil, err
	}

	if record.Status != remote.KeyStatusActive {
		// Remote revoked the key; drop the local record so the kiosk
		// does not keep running on a stale grant.
		if err := s.activations.Delete(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to remove revoked activation")
		}
		return &Status{
			Active:  false,
			Expired: true,
			Mode:    "online",
			Key:     record.Key,
			Kind:    record.Kind,
		}, nil
	}

	merged, expired := computeRemaining(record, time.Now().UTC())

	if err := s.activations.Save(ctx, merged); err != nil {
		return nil, err
	}

	if err := s.gateway.TouchLastUsed(ctx, record.ID); err != nil {
		log.Debug().Err(err).Msg("Failed to update last-used timestamp")
	}

	return &Status{
		Active:         !expired,
		Expired:        expired,
		Mode:           "online",
		Key:            merged.Key,
		Kind:           merged.Kind,
		RemainingDays:  merged.RemainingDays,
		RemainingHours: merged.RemainingHours,
	}, nil
}

// computeRemaining derives the countdown fields from a remote key record.
// The returned Activation fully replaces the local snapshot, even if the
// local one was more generous: an administrator may have extended or
// revoked the key remotely.
func computeRemaining(record *remote.KeyRecord, now time.Time) (*models.Activation, bool) {
	merged := &models.Activation{
		Key:  record.Key,
		Kind: record.Kind,
	}
	expired := false

	switch record.Kind {
	case models.KindSubscription:
		if record.ExpiresAt == nil {
			break
		}
		exp, ok := ParseRemoteTime(*record.ExpiresAt)
		if !ok {
			break
		}
		merged.ExpiresAt = &exp
		diff := exp.Sub(now)
		days := int64(math.Ceil(diff.Hours() / 24))
		if days < 0 {
			days = 0
		}
		merged.RemainingDays = &days
		if diff <= 0 {
			expired = true
		}

	case models.KindMachine:
		if record.HourLimit == nil || record.StartsAt == nil {
			break
		}
		start, ok := ParseRemoteTime(*record.StartsAt)
		if !ok {
			break
		}
		elapsed := now.Sub(start).Hours()
		remaining := *record.HourLimit - elapsed
		if remaining < 0 {
			remaining = 0
		}
		merged.RemainingHours = &remaining
		if remaining <= 0 {
			expired = true
		}
	}

	return merged, expired
}

// offlineStatus decays the last persisted snapshot by elapsed wall-clock
// time. This is only ever a fallback estimate, never authoritative.
func (s *Service) offlineStatus(record *models.Activation) *Status {
	now := time.Now().UTC()
	status := &Status{
		Mode: "offline",
		Key:  record.Key,
		Kind: record.Kind,
	}

	switch {
	case record.Kind == models.KindSubscription && record.ExpiresAt != nil:
		if !now.Before(*record.ExpiresAt) {
			zero := int64(0)
			status.Expired = true
			status.RemainingDays = &zero
			return status
		}
		days := int64(math.Ceil(record.ExpiresAt.Sub(now).Hours() / 24))
		status.Active = true
		status.RemainingDays = &days
		return status

	case record.Kind == models.KindSubscription && record.RemainingDays != nil:
		elapsedDays := int64(math.Floor(now.Sub(record.LastValidatedAt).Hours() / 24))
		remaining := *record.RemainingDays - elapsedDays
		if remaining < 0 {
			remaining = 0
		}
		status.Active = remaining > 0
		status.Expired = remaining <= 0
		status.RemainingDays = &remaining
		return status

	case record.Kind == models.KindMachine && record.RemainingHours != nil:
		elapsed := now.Sub(record.LastValidatedAt).Hours()
		remaining := *record.RemainingHours - elapsed
		status.Active = remaining > 0
		status.Expired = remaining <= 0
		if remaining < 0 {
			remaining = 0
		}
		status.RemainingHours = &remaining
		return status
	}

	// Activated but no countdown fields populated: treated as active
	// with unknown remaining time.
	status.Active = true
	status.RemainingDays = record.RemainingDays
	status.RemainingHours = record.RemainingHours
	return status
}

// NormalizeKey canonicalizes user-entered activation keys: trimmed,
// uppercased, spaces collapsed to the key separator.
func NormalizeKey(raw string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), " ", "-")
}

// ValidateAndAdopt validates a user-entered key against the remote
// authority and, when the key is active, adopts it as this kiosk's
// activation (replacing any prior key). Remote failures are surfaced in
// the result: there is no valid fallback for activating a new key.
func (s *Service) ValidateAndAdopt(ctx context.Context, rawKey string) (*ValidationResult, error) {
	key := NormalizeKey(rawKey)

	record, err := s.gateway.FetchKeyRecord(ctx, key, s.machineFingerprint())
	switch {
	case errors.Is(err, remote.ErrKeyNotFound):
		return &ValidationResult{Valid: false, Error: "key not found"}, nil
	case err != nil:
		log.Error().
			Err(err).
			Str("key", remote.MaskKey(key)).
			Msg("Key validation failed")
		return &ValidationResult{Valid: false, Error: "connection error: " + err.Error()}, nil
	}

	if record.Status != remote.KeyStatusActive {
		return &ValidationResult{Valid: false, Error: "key expired or inactive"}, nil
	}

	merged, _ := computeRemaining(record, time.Now().UTC())

	if err := s.activations.Save(ctx, merged); err != nil {
		return nil, err
	}

	if err := s.gateway.TouchLastUsed(ctx, record.ID); err != nil {
		log.Debug().Err(err).Msg("Failed to update last-used timestamp")
	}

	log.Info().
		Str("key", remote.MaskKey(key)).
		Str("kind", merged.Kind).
		Msg("Activation key adopted")

	return &ValidationResult{
		Valid:          true,
		Kind:           merged.Kind,
		RemainingDays:  merged.RemainingDays,
		RemainingHours: merged.RemainingHours,
	}, nil
}

// RemoveActivation deletes the stored activation unconditionally.
func (s *Service) RemoveActivation(ctx context.Context) error {
	return s.activations.Delete(ctx)
}
