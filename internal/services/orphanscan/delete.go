// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orphanscan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweepr/internal/remotefs"
	"github.com/autobrr/sweepr/pkg/pathcmp"
)

// validateDeleteTarget refuses anything that is not strictly below scanRoot.
func validateDeleteTarget(scanRoot, target string) error {
	root := pathcmp.NormalizePath(scanRoot)
	t := pathcmp.NormalizePath(target)
	if !strings.HasPrefix(t, "/") && !pathcmp.IsWindowsDriveAbs(t) {
		return fmt.Errorf("refusing non-absolute path: %s", target)
	}
	if t == root {
		return fmt.Errorf("refusing to delete scan root: %s", scanRoot)
	}
	if !pathcmp.IsWithin(root, t) {
		return fmt.Errorf("path escapes scan root: %s", target)
	}
	return nil
}

// safeDeleteFile removes one orphan after the root checks. The check runs on
// the normalized path, the delete on the name the server listed.
func safeDeleteFile(session remotefs.Session, scanRoot string, target remotePath) error {
	if err := validateDeleteTarget(scanRoot, target.norm); err != nil {
		return err
	}
	if err := session.RemoveFile(target.raw); err != nil {
		return fmt.Errorf("delete %s: %w", target.raw, err)
	}
	return nil
}

// sortDeepestFirst orders dirs by normalized path length, longest first, so
// children are always evaluated before their parents.
func sortDeepestFirst(dirs []remotePath) []remotePath {
	out := append([]remotePath(nil), dirs...)
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].norm) != len(out[j].norm) {
			return len(out[i].norm) > len(out[j].norm)
		}
		return out[i].norm < out[j].norm
	})
	return out
}

// pruneEmptyDirs re-lists every directory found during the walk, deepest
// first, and removes the ones that are empty by then. The scan root is never
// touched. Failures are expected terminal states and are not reported.
func pruneEmptyDirs(session remotefs.Session, scanRoot string, dirs []remotePath) int {
	removed := 0
	for _, dir := range sortDeepestFirst(dirs) {
		if validateDeleteTarget(scanRoot, dir.norm) != nil {
			continue
		}
		entries, err := session.List(dir.raw)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := session.RemoveDir(dir.raw); err != nil {
			log.Trace().Err(err).Str("dir", dir.raw).Msg("orphanscan: empty directory not removed")
			continue
		}
		removed++
	}
	return removed
}
