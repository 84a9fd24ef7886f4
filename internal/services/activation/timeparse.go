// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package activation

import (
	"time"

	"github.com/rs/zerolog/log"
)

// ParseRemoteTime parses the flexible textual date-times the remote
// authority serves: RFC3339 first, then ISO8601 without a zone (assumed
// UTC), then date-only (assumed end of day UTC). Total failure returns
// false and the field is treated as absent, never as a hard error.
func ParseRemoteTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}

	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}

	if d, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return d.Add(23*time.Hour + 59*time.Minute + 59*time.Second), true
	}

	log.Warn().Str("value", s).Msg("Could not parse remote datetime")

	return time.Time{}, false
}
