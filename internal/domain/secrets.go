// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// RedactedStr replaces secrets in API responses. Its length is fixed so the
// secret length does not leak.
const RedactedStr = "<redacted>"

// RedactString replaces a non-empty string with RedactedStr.
func RedactString(s string) string {
	if len(s) == 0 {
		return ""
	}
	return RedactedStr
}

// IsRedactedValue reports whether value is a redaction placeholder echoed
// back by a client, either RedactedStr or a run of asterisks.
func IsRedactedValue(value string) bool {
	if value == "" {
		return false
	}
	if value == RedactedStr {
		return true
	}
	for _, char := range value {
		if char != '*' {
			return false
		}
	}
	return true
}
