// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/autobrr/sweepr/internal/models"
)

// errRunFailed makes the process exit non-zero after printing the result.
var errRunFailed = errors.New("run finished with errors")

func RunJobCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "run <job>",
		Short:     "Run one job now and print its result",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.JobStalledCleanup), string(models.JobOrphanScan)},
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := models.ParseJobID(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.scheduler.RunNow(cmd.Context(), job)
			if result == nil {
				return errors.Wrapf(err, "run %s", job)
			}

			out, merr := json.MarshalIndent(result, "", "  ")
			if merr != nil {
				return errors.Wrap(merr, "encode result")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if err != nil {
				return errors.Wrapf(err, "run %s", job)
			}
			if result.Failed() {
				return errRunFailed
			}
			return nil
		},
	}
}
