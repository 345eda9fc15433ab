// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pathcmp normalizes remote paths so that paths reported by
// qBittorrent and paths listed over SFTP compare equal. Remote paths always
// use path (forward slash) semantics, never filepath.
package pathcmp

import (
	"path"
	"strings"
)

// IsWindowsDriveAbs reports whether p looks like C:/... after separator
// normalization.
func IsWindowsDriveAbs(p string) bool {
	if len(p) < 3 {
		return false
	}
	return hasDrivePrefix(p) && p[2] == '/'
}

func hasDrivePrefix(p string) bool {
	if len(p) < 2 {
		return false
	}
	c := p[0]
	return ((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) && p[1] == ':'
}

// NormalizePath returns the canonical form of p used for membership tests.
// Backslashes become forward slashes, "." and ".." are resolved and trailing
// slashes are trimmed. Drive roots such as C:/ are kept. Comparison stays
// case-sensitive.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")

	if hasDrivePrefix(p) {
		drive, rest := p[:2], p[2:]
		if rest == "" {
			return drive
		}
		rest = path.Clean(rest)
		if rest == "/" || rest == "." {
			return drive + "/"
		}
		return drive + rest
	}

	return path.Clean(p)
}

// Join joins base and name with forward-slash semantics and normalizes the
// result. Separators inside name are normalized as well.
func Join(base, name string) string {
	base = strings.ReplaceAll(base, "\\", "/")
	name = strings.ReplaceAll(name, "\\", "/")
	if base == "" {
		return NormalizePath(name)
	}
	return NormalizePath(base + "/" + name)
}

// Parent returns the normalized parent directory of p.
func Parent(p string) string {
	n := NormalizePath(p)
	if n == "" {
		return ""
	}
	if IsWindowsDriveAbs(n) && len(n) == 3 {
		return n
	}
	dir := path.Dir(n)
	if hasDrivePrefix(n) && !strings.Contains(dir, "/") {
		return n[:2] + "/"
	}
	return dir
}

// IsWithin reports whether target lies strictly below root. Both paths are
// normalized before comparison; target equal to root is not within it.
func IsWithin(root, target string) bool {
	r := NormalizePath(root)
	t := NormalizePath(target)
	if r == "" || t == "" || r == t {
		return false
	}
	if !strings.HasSuffix(r, "/") {
		r += "/"
	}
	return strings.HasPrefix(t, r)
}
