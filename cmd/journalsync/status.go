package main

import (
	"github.com/spf13/cobra"

	"github.com/openmined/journalsync/internal/sync"
)

// status is a dry-run push that records nothing and does not take the lock.
func newStatusCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show files a push would upload and remote files with no local copy",
		Args:    cobra.NoArgs,
		PreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			engine, err := a.newEngine(cmd.OutOrStdout(), nil)
			if err != nil {
				return err
			}

			mode := sync.ModeIncremental
			if all {
				mode = sync.ModeAll
			}
			_, err = engine.Push(cmd.Context(), sync.PushOptions{Mode: mode, DryRun: true})
			return err
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Compare every file, not only those changed since the last push")
	return cmd
}
