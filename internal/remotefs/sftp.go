// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package remotefs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/autobrr/sweepr/pkg/pathcmp"
)

// SFTPDialer dials SSH and starts an SFTP subsystem on top of it.
type SFTPDialer struct {
	// KnownHostsPath enables host key verification when set.
	KnownHostsPath string
}

var _ Dialer = (*SFTPDialer)(nil)

func (d *SFTPDialer) Dial(ctx context.Context, conn Connection, timeout time.Duration) (Session, error) {
	if timeout <= 0 {
		return nil, errors.New("sftp dial timeout must be positive")
	}

	hostKeyCallback, err := d.hostKeyCallback(conn.Host)
	if err != nil {
		return nil, err
	}

	auth, err := authMethods(conn.Secret)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))
	cfg := &ssh.ClientConfig{
		User:            conn.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	netConn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	// bound the SSH handshake by the same deadline
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = netConn.SetDeadline(time.Time{})

	sshClient := ssh.NewClient(sshConn, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("start sftp subsystem on %s: %w", addr, err)
	}

	return &sftpSession{client: client, closer: sshClient}, nil
}

func (d *SFTPDialer) hostKeyCallback(host string) (ssh.HostKeyCallback, error) {
	if d.KnownHostsPath == "" {
		log.Warn().Str("host", host).Msg("remotefs: no known_hosts configured, accepting any host key")
		return ssh.InsecureIgnoreHostKey(), nil
	}

	p := d.KnownHostsPath
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = home + p[1:]
		}
	}
	cb, err := knownhosts.New(p)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", p, err)
	}
	return cb, nil
}

// authMethods uses secret as a private key when it parses as one and as a
// password otherwise.
func authMethods(secret string) ([]ssh.AuthMethod, error) {
	if strings.Contains(secret, "PRIVATE KEY-----") {
		signer, err := ssh.ParsePrivateKey([]byte(secret))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{
		ssh.Password(secret),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = secret
			}
			return answers, nil
		}),
	}, nil
}

type sftpSession struct {
	client *sftp.Client
	closer interface{ Close() error }
}

// NewSession wraps an established SFTP client. closer, when non-nil, is
// closed after the client.
func NewSession(client *sftp.Client, closer interface{ Close() error }) Session {
	return &sftpSession{client: client, closer: closer}
}

func (s *sftpSession) List(dir string) ([]Entry, error) {
	infos, err := s.client.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	base := pathcmp.NormalizePath(dir)
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if name == "." || name == ".." {
			continue
		}
		mode := info.Mode()
		var kind Kind
		switch {
		case mode.IsDir():
			kind = KindDir
		case mode.IsRegular():
			kind = KindFile
		default:
			continue
		}
		entries = append(entries, Entry{Path: path.Join(base, name), Kind: kind})
	}
	return entries, nil
}

func (s *sftpSession) RemoveFile(p string) error {
	return s.client.Remove(p)
}

func (s *sftpSession) RemoveDir(p string) error {
	return s.client.RemoveDirectory(p)
}

func (s *sftpSession) Close() error {
	err := s.client.Close()
	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
