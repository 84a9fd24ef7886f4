// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import "strings"

// codeWidth is the canonical width for numeric track codes. The remote
// catalog and on-disk filenames disagree about leading zeros, so every
// lookup tries all candidate forms instead of assuming one width.
const codeWidth = 5

// CandidateCodes expands a caller-supplied or file-derived code into the
// ordered list of forms to try when matching against the index or catalog:
// the exact string, the zero-padded canonical form, then the zero-stripped
// form. The first match wins; duplicates are collapsed. Non-numeric codes
// yield only the exact form.
func CandidateCodes(code string) []string {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}

	candidates := []string{code}

	if !isDigits(code) {
		return candidates
	}

	if padded := padCode(code); padded != code {
		candidates = append(candidates, padded)
	}

	if stripped := strings.TrimLeft(code, "0"); stripped != "" && stripped != code {
		candidates = append(candidates, stripped)
	}

	return candidates
}

func padCode(code string) string {
	if len(code) >= codeWidth {
		return code
	}
	return strings.Repeat("0", codeWidth-len(code)) + code
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
