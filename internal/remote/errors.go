// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package remote

import "github.com/pkg/errors"

// Failure classes for remote operations. Callers decide per class whether
// to surface the error or fall back to local state.
var (
	// ErrNotConfigured means remote credentials are absent.
	ErrNotConfigured = errors.New("remote not configured")

	// ErrNetwork wraps transport-level failures.
	ErrNetwork = errors.New("remote network failure")

	// ErrRejected means the remote answered with a non-success status.
	ErrRejected = errors.New("remote rejected request")

	// ErrMalformedResponse means the payload failed to parse.
	ErrMalformedResponse = errors.New("remote response malformed")

	// ErrKeyNotFound means no key record matched.
	ErrKeyNotFound = errors.New("activation key not found")
)

// IsRecoverable reports whether a failure class permits falling back to
// locally cached state (everything except a hard programming error is).
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNotConfigured) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrKeyNotFound)
}
