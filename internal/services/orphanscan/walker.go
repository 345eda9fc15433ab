// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orphanscan

import (
	"context"
	"fmt"

	"github.com/autobrr/sweepr/internal/remotefs"
	"github.com/autobrr/sweepr/pkg/pathcmp"
)

// remotePath is one listed entry. raw is the name the server reported and is
// the only form used for I/O; norm is used for comparisons.
type remotePath struct {
	raw  string
	norm string
}

func newRemotePath(raw string) remotePath {
	return remotePath{raw: raw, norm: pathcmp.NormalizePath(raw)}
}

// walkResult is a point-in-time listing of one configured directory.
type walkResult struct {
	files []remotePath
	dirs  []remotePath
	// errs holds listing failures of subdirectories below the root.
	errs []string
}

// walkTree lists root recursively. Only a failure to list root itself is
// returned as an error; subdirectories that fail are recorded and skipped.
// Symlinks are never reported by the session, so they are never followed.
func walkTree(ctx context.Context, session remotefs.Session, root string) (walkResult, error) {
	var res walkResult

	entries, err := session.List(root)
	if err != nil {
		return res, err
	}

	stack := [][]remotefs.Entry{entries}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		batch := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, e := range batch {
			p := newRemotePath(e.Path)
			switch e.Kind {
			case remotefs.KindFile:
				res.files = append(res.files, p)
			case remotefs.KindDir:
				res.dirs = append(res.dirs, p)
				children, err := session.List(p.raw)
				if err != nil {
					res.errs = append(res.errs, fmt.Sprintf("list %s: %v", p.raw, err))
					continue
				}
				stack = append(stack, children)
			}
		}
	}
	return res, nil
}
