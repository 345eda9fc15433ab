// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package remotefs reaches the remote storage tree over SFTP.
package remotefs

import (
	"context"
	"time"
)

// Kind distinguishes files from directories. Symlinks and special files are
// never reported.
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// Entry is one child of a listed directory. Path is absolute with forward
// slashes.
type Entry struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// Connection describes how to reach the remote store. Secret is a password
// or a PEM encoded private key.
type Connection struct {
	Host     string
	Port     int
	Username string
	Secret   string
}

// Session is an open connection to the remote store.
type Session interface {
	// List returns the direct children of dir.
	List(dir string) ([]Entry, error)
	RemoveFile(path string) error
	// RemoveDir removes an empty directory.
	RemoveDir(path string) error
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, conn Connection, timeout time.Duration) (Session, error)
}
