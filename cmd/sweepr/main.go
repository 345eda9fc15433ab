// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "sweepr",
		Short:         "Reconcile qBittorrent with remote storage",
		Long:          "sweepr removes stalled downloads from qBittorrent and deletes files on an SFTP store that no torrent owns.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml or its directory (default: $XDG_CONFIG_HOME/sweepr)")

	cmd.AddCommand(
		RunServeCommand(&configPath),
		RunJobCommand(&configPath),
		RunStatusCommand(&configPath),
		RunVersionCommand(),
	)
	return cmd
}
